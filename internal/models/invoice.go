package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Currency is the only settlement currency.
const Currency = "usd"

type Invoice struct {
	ID              uuid.UUID `json:"id"`
	PaymentIntentID string    `json:"paymentId"`
	OrderID         uuid.UUID `json:"orderId"`
	ItemID          string    `json:"itemId"`
	CustomerEmail   string    `json:"customer"`
	Quantity        int64     `json:"quantity"`
	AmountCents     int64     `json:"-"`
	Currency        string    `json:"currency"`
	IssuedAt        time.Time `json:"issuedAt"`
}

// Amount is the charged total in major currency units.
func (i *Invoice) Amount() float64 {
	return CentsToAmount(i.AmountCents)
}

// AmountToCents converts a decimal currency amount to integer cents.
func AmountToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func CentsToAmount(cents int64) float64 {
	return float64(cents) / 100
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sameEmail(a, b string) bool {
	na := NormalizeEmail(a)
	return na != "" && na == NormalizeEmail(b)
}

func (i Invoice) MarshalJSON() ([]byte, error) {
	type plain Invoice
	return json.Marshal(struct {
		plain
		Amount float64 `json:"amount"`
	}{
		plain:  plain(i),
		Amount: i.Amount(),
	})
}
