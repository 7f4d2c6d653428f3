// Package webhook receives asynchronous payment confirmations from the
// gateway. Deliveries are at-least-once; the engine makes re-delivery a
// no-op, so this handler can always answer retries with success.
package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
)

type Handler struct {
	svc *application.Service
}

func NewHandler(svc *application.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/razorpay", h.confirmPayment)
}

type confirmRequest struct {
	ApplicationID     uuid.UUID `json:"application_id"`
	RazorpayOrderID   string    `json:"razorpay_order_id"`
	RazorpayPaymentID string    `json:"razorpay_payment_id"`
	RazorpaySignature string    `json:"razorpay_signature"`
}

type confirmResponse struct {
	Number        string                    `json:"number"`
	Status        application.Status        `json:"status"`
	PaymentStatus application.PaymentStatus `json:"payment_status"`
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.ConfirmPayment(r.Context(), req.ApplicationID,
		req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrNotFound):
			http.Error(w, "application not found", http.StatusNotFound)
		case errors.Is(err, application.ErrInvalidSignature):
			http.Error(w, "signature verification failed", http.StatusBadRequest)
		case errors.Is(err, application.ErrConflict):
			http.Error(w, "conflict", http.StatusConflict)
		default:
			slog.Error("payment confirmation failed",
				"application", req.ApplicationID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(confirmResponse{
		Number:        app.Number,
		Status:        app.Status,
		PaymentStatus: app.PaymentStatus,
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
