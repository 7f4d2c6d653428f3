package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signPayload(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)

	return hex.EncodeToString(mac.Sum(nil))
}

func TestGateway_VerifySignature(t *testing.T) {
	const secret = "test_key_secret"

	gateway := NewGateway("rzp_test_key", secret, 15*time.Second)

	type testCase struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}

	tests := []testCase{
		{
			name:      "ValidSignature",
			orderID:   "order_IluGWxBm9U8zJ8",
			paymentID: "pay_29QQoUBi66xm2f",
			signature: signPayload(secret, "order_IluGWxBm9U8zJ8", "pay_29QQoUBi66xm2f"),
			want:      true,
		},
		{
			name:      "WrongSecret",
			orderID:   "order_IluGWxBm9U8zJ8",
			paymentID: "pay_29QQoUBi66xm2f",
			signature: signPayload("other_secret", "order_IluGWxBm9U8zJ8", "pay_29QQoUBi66xm2f"),
			want:      false,
		},
		{
			name:      "SwappedOrderAndPayment",
			orderID:   "order_IluGWxBm9U8zJ8",
			paymentID: "pay_29QQoUBi66xm2f",
			signature: signPayload(secret, "pay_29QQoUBi66xm2f", "order_IluGWxBm9U8zJ8"),
			want:      false,
		},
		{
			name:      "EmptySignature",
			orderID:   "order_IluGWxBm9U8zJ8",
			paymentID: "pay_29QQoUBi66xm2f",
			signature: "",
			want:      false,
		},
		{
			name:      "DifferentOrder",
			orderID:   "order_DIFFERENT00000",
			paymentID: "pay_29QQoUBi66xm2f",
			signature: signPayload(secret, "order_IluGWxBm9U8zJ8", "pay_29QQoUBi66xm2f"),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gateway.VerifySignature(tt.orderID, tt.paymentID, tt.signature))
		})
	}
}
