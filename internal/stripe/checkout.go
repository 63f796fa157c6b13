// Package stripe wraps the hosted checkout API used to collect order payments.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"
)

// Metadata keys attached to every checkout session. Confirmation reads them back.
const (
	MetadataOrderID  = "order_id"
	MetadataItemID   = "item_id"
	MetadataCustomer = "customer"
)

const currencyUSD = "usd"

var ErrInvalidSession = errors.New("invalid checkout session parameters")

type CheckoutSessionParams struct {
	OrderID         uuid.UUID
	ItemID          string
	ItemName        string
	UnitAmountCents int64
	Quantity        int64
	CustomerEmail   string
	SuccessURL      string
	CancelURL       string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// SessionSnapshot is the part of a retrieved checkout session that settlement depends on.
type SessionSnapshot struct {
	ID              string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

func (s SessionSnapshot) IsPaid() bool {
	return s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

type BreakerSettings struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
}

// CheckoutClient creates and retrieves hosted checkout sessions behind a circuit breaker.
type CheckoutClient struct {
	client  *stripe.Client
	breaker *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

func NewCheckoutClient(secretKey string, httpClient *http.Client, settings BreakerSettings) *CheckoutClient {
	opts := []stripe.ClientOption{}
	if httpClient != nil {
		opts = append(opts, stripe.WithBackends(stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			HTTPClient: httpClient,
		})))
	}

	return &CheckoutClient{
		client:  stripe.NewClient(secretKey, opts...),
		breaker: newBreaker(settings),
	}
}

func newBreaker(settings BreakerSettings) *gobreaker.CircuitBreaker[*stripe.CheckoutSession] {
	failures := settings.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !isGatewayFailure(err)
		},
	})
}

// isGatewayFailure reports whether err points at the gateway being unhealthy.
// Client errors such as an unknown session id do not count against the breaker.
func isGatewayFailure(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}

// CreateSession opens a single-line-item payment session for an order.
func (c *CheckoutClient) CreateSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sessionParams, err := buildSessionParams(params)
	if err != nil {
		return nil, err
	}

	sess, err := c.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return c.client.V1CheckoutSessions.Create(ctx, sessionParams)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("checkout session %s has no redirect url", sess.ID)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// RetrieveSession fetches the current state of a checkout session.
func (c *CheckoutClient) RetrieveSession(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidSession)
	}

	sess, err := c.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return c.client.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}

	snapshot := newSnapshot(sess)
	return &snapshot, nil
}

func buildSessionParams(params CheckoutSessionParams) (*stripe.CheckoutSessionCreateParams, error) {
	switch {
	case params.OrderID == uuid.Nil:
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidSession)
	case params.ItemName == "":
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidSession)
	case params.CustomerEmail == "":
		return nil, fmt.Errorf("%w: customer email is required", ErrInvalidSession)
	case params.UnitAmountCents <= 0:
		return nil, fmt.Errorf("%w: unit amount must be positive", ErrInvalidSession)
	case params.Quantity <= 0:
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidSession)
	case params.SuccessURL == "" || params.CancelURL == "":
		return nil, fmt.Errorf("%w: success and cancel urls are required", ErrInvalidSession)
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		CustomerEmail:      stripe.String(params.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(currencyUSD),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(params.ItemName),
					},
					UnitAmount: stripe.Int64(params.UnitAmountCents),
				},
				Quantity: stripe.Int64(params.Quantity),
			},
		},
		Metadata: map[string]string{
			MetadataOrderID:  params.OrderID.String(),
			MetadataItemID:   params.ItemID,
			MetadataCustomer: params.CustomerEmail,
		},
	}

	return sessionParams, nil
}

func newSnapshot(sess *stripe.CheckoutSession) SessionSnapshot {
	snapshot := SessionSnapshot{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      map[string]string{},
	}
	for k, v := range sess.Metadata {
		snapshot.Metadata[k] = v
	}
	if sess.PaymentIntent != nil {
		snapshot.PaymentIntentID = sess.PaymentIntent.ID
	}
	return snapshot
}
