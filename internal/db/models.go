package db

import "github.com/bookmarketapp/bookmarket/internal/models"

type Order = models.Order
type OrderStatus = models.OrderStatus
type PaymentStatus = models.PaymentStatus
type Invoice = models.Invoice

const (
	StatusPending   = models.StatusPending
	StatusCancelled = models.StatusCancelled
	StatusShipped   = models.StatusShipped
	StatusDelivered = models.StatusDelivered

	PaymentUnpaid = models.PaymentUnpaid
	PaymentPaid   = models.PaymentPaid
)
