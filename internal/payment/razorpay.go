// Package payment implements the gateway collaborator on top of Razorpay.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/instavisa/instavisa/internal/application"
)

type Gateway struct {
	client    *razorpay.Client
	keySecret string
}

// NewGateway builds a Razorpay-backed gateway. Every outbound call is
// bounded by timeout; the engine never waits on the gateway indefinitely.
func NewGateway(keyID, keySecret string, timeout time.Duration) *Gateway {
	client := razorpay.NewClient(keyID, keySecret)
	client.SetTimeout(int16(timeout.Seconds()))

	return &Gateway{
		client:    client,
		keySecret: keySecret,
	}
}

// CreateOrder registers a payment order with the gateway. The receipt is the
// application number, so gateway dashboards line up with the audit trail.
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*application.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}

	if len(notes) > 0 {
		data["notes"] = notes
	}

	order, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order create: %w", err)
	}

	id, _ := order["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay order create: response missing order id")
	}

	return &application.PaymentOrder{
		ID:       id,
		Amount:   amount,
		Currency: currency,
	}, nil
}

// VerifySignature checks the HMAC-SHA256 the gateway computes over
// "<orderID>|<paymentID>" with the key secret.
func (g *Gateway) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)

	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// FetchPayment retrieves the gateway's record of a captured payment.
func (g *Gateway) FetchPayment(ctx context.Context, paymentID string) (*application.PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay payment fetch: %w", err)
	}

	details := &application.PaymentDetails{ID: paymentID}

	if v, ok := p["order_id"].(string); ok {
		details.OrderID = v
	}

	if v, ok := p["status"].(string); ok {
		details.Status = v
	}

	if v, ok := p["method"].(string); ok {
		details.Method = v
	}

	if v, ok := p["amount"].(float64); ok {
		details.Amount = int64(v)
	}

	return details, nil
}
