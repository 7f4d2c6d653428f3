package applicant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
	"github.com/instavisa/instavisa/internal/http/authn"
)

// Artifacts is the slice of the object store the handler needs: upload
// bytes, get back a stable URL.
type Artifacts interface {
	Store(ctx context.Context, data []byte, name, folder string) (string, error)
}

type Handler struct {
	svc       *application.Service
	artifacts Artifacts
}

func NewHandler(svc *application.Service, artifacts Artifacts) *Handler {
	return &Handler{svc: svc, artifacts: artifacts}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.updateForm)
	r.Post("/{id}/payment-intent", h.paymentIntent)
	r.Post("/{id}/documents", h.uploadDocuments)
}

type createApplicationRequest struct {
	VisaTypeID uuid.UUID       `json:"visa_type_id"`
	Form       json.RawMessage `json:"form"`
	ESIM       bool            `json:"esim"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := authn.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.CreateDraft(r.Context(), actor, req.VisaTypeID, req.Form, req.ESIM)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(toResponse(app)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := authn.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	app, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponse(app))
}

type updateFormRequest struct {
	Form json.RawMessage `json:"form"`
}

func (h *Handler) updateForm(w http.ResponseWriter, r *http.Request) {
	actor, ok := authn.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req updateFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.UpdateDraft(r.Context(), actor, id, req.Form)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponse(app))
}

type paymentIntentRequest struct {
	Amount int64 `json:"amount"`
}

type paymentIntentResponse struct {
	Application applicationResponse `json:"application"`
	OrderID     string              `json:"order_id"`
}

func (h *Handler) paymentIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := authn.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req paymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.RecordPaymentIntent(r.Context(), actor, id, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, paymentIntentResponse{
		Application: toResponse(app),
		OrderID:     app.PaymentOrderID,
	})
}

const maxUploadBytes = 32 << 20

// uploadDocuments streams multipart files to the artifact store, then
// records the resulting descriptors through the engine. The engine enforces
// that re-submission is only open while documents are required.
func (h *Handler) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := authn.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	var docs []application.DocumentRef

	for _, fh := range r.MultipartForm.File["documents"] {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "reading upload", http.StatusBadRequest)
			return
		}

		data, err := io.ReadAll(f)
		f.Close()

		if err != nil {
			http.Error(w, "reading upload", http.StatusBadRequest)
			return
		}

		url, err := h.artifacts.Store(r.Context(), data, fh.Filename, "additional-documents/"+id.String())
		if err != nil {
			slog.Error("artifact upload failed", "application", id, "error", err)
			http.Error(w, "storing document", http.StatusBadGateway)

			return
		}

		docs = append(docs, application.DocumentRef{
			Filename: fh.Filename,
			URL:      url,
			Size:     fh.Size,
		})
	}

	app, err := h.svc.SubmitAdditionalDocuments(r.Context(), actor, id, docs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponse(app))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		http.Error(w, "application not found", http.StatusNotFound)
	case errors.Is(err, application.ErrNotOwner):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, application.ErrInvalidState), errors.Is(err, application.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, application.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
