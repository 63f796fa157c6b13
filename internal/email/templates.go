package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

// ReceiptInfo is the data rendered into settlement and cancellation emails.
type ReceiptInfo struct {
	CustomerEmail string
	OrderID       string
	InvoiceID     string
	PaymentID     string
	ItemName      string
	Quantity      int64
	Total         string
	Currency      string
	Date          time.Time
}

const (
	TemplatePaymentReceipt = "payment_receipt"
	TemplateOrderCancelled = "order_cancelled"
	receiptDateLayout      = "January 2, 2006"
	paymentReceiptSubject  = "Payment received for %s"
	orderCancelledSubject  = "Your order for %s was cancelled"
)

type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

var templateFuncs = map[string]any{
	"formatDate": func(t time.Time) string {
		return t.Format(receiptDateLayout)
	},
}

func NewRenderer() (*Renderer, error) {
	sources := map[string][2]string{
		TemplatePaymentReceipt: {paymentReceiptHTML, paymentReceiptText},
		TemplateOrderCancelled: {orderCancelledHTML, orderCancelledText},
	}

	html := htmltemplate.New("email").Funcs(templateFuncs)
	text := texttemplate.New("email").Funcs(templateFuncs)
	for name, src := range sources {
		if _, err := html.New(name).Parse(src[0]); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
		if _, err := text.New(name).Parse(src[1]); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
	}

	return &Renderer{html: html, text: text}, nil
}

func (r *Renderer) Render(_ context.Context, templateName string, data *ReceiptInfo) (*Email, error) {
	if data == nil {
		return nil, fmt.Errorf("receipt data is required")
	}

	var subject string
	switch templateName {
	case TemplatePaymentReceipt:
		subject = fmt.Sprintf(paymentReceiptSubject, data.ItemName)
	case TemplateOrderCancelled:
		subject = fmt.Sprintf(orderCancelledSubject, data.ItemName)
	default:
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// Send renders templateName for data and hands it to p. A nil provider sends nothing.
func Send(ctx context.Context, p Provider, r *Renderer, templateName string, data *ReceiptInfo) error {
	if p == nil {
		return nil
	}
	if r == nil {
		return fmt.Errorf("email renderer is required")
	}

	email, err := r.Render(ctx, templateName, data)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return p.SendEmail(ctx, email)
}

const paymentReceiptText = `Thank you for your purchase!

Item: {{.ItemName}}
Quantity: {{.Quantity}}
Total: {{.Total}} {{.Currency}}

Invoice: {{.InvoiceID}}
Payment: {{.PaymentID}}
Order: {{.OrderID}}
Date: {{formatDate .Date}}
`

const paymentReceiptHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <h2>Thank you for your purchase!</h2>
  <table cellpadding="4">
    <tr><td>Item</td><td><strong>{{.ItemName}}</strong></td></tr>
    <tr><td>Quantity</td><td>{{.Quantity}}</td></tr>
    <tr><td>Total</td><td>{{.Total}} {{.Currency}}</td></tr>
    <tr><td>Invoice</td><td>{{.InvoiceID}}</td></tr>
    <tr><td>Payment</td><td>{{.PaymentID}}</td></tr>
    <tr><td>Order</td><td>{{.OrderID}}</td></tr>
    <tr><td>Date</td><td>{{formatDate .Date}}</td></tr>
  </table>
</body>
</html>
`

const orderCancelledText = `Your order for {{.ItemName}} (x{{.Quantity}}) was cancelled on {{formatDate .Date}}.

Order: {{.OrderID}}
`

const orderCancelledHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <p>Your order for <strong>{{.ItemName}}</strong> (x{{.Quantity}}) was cancelled on {{formatDate .Date}}.</p>
  <p>Order: {{.OrderID}}</p>
</body>
</html>
`
