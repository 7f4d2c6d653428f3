package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
	"github.com/instavisa/instavisa/internal/http/authn"
)

type Handler struct {
	svc    *application.Service
	events *application.Hub
}

func NewHandler(svc *application.Service, events *application.Hub) *Handler {
	return &Handler{svc: svc, events: events}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/applications", h.list)
	r.Get("/applications/events", h.streamEvents)
	r.Get("/applications/{id}", h.get)
	r.Patch("/applications/{id}/status", h.transition)
	r.Post("/applications/{id}/notes", h.addNote)
	r.Patch("/applications/{id}/esim", h.updateESIM)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := authn.ActorFrom(r.Context())

	filter := application.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(application.Status(s))
	}

	if s := r.URL.Query().Get("payment_status"); s != "" {
		filter.PaymentStatus = new(application.PaymentStatus(s))
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}

	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Offset = n
		}
	}

	apps, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponseList(apps))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := authn.ActorFrom(r.Context())

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

type transitionRequest struct {
	Status  application.Status `json:"status"`
	Remarks string             `json:"remarks"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actor, _ := authn.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.TransitionStatus(r.Context(), actor, id, req.Status, req.Remarks)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponse(app))
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := authn.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.AppendAdminNote(r.Context(), actor, id, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponse(app))
}

type esimRequest struct {
	Status application.ESIMStatus `json:"status"`
}

func (h *Handler) updateESIM(w http.ResponseWriter, r *http.Request) {
	actor, _ := authn.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req esimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.svc.UpdateESIM(r.Context(), actor, id, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toResponse(app))
}

type eventPayload struct {
	Kind          application.EventKind     `json:"kind"`
	ApplicationID uuid.UUID                 `json:"application_id"`
	Number        string                    `json:"number"`
	Status        application.Status        `json:"status"`
	PaymentStatus application.PaymentStatus `json:"payment_status"`
	Remarks       string                    `json:"remarks,omitempty"`
	OccurredAt    string                    `json:"occurred_at"`
}

// streamEvents pushes lifecycle events over SSE. Events are emitted only
// after a state change has committed; a slow consumer misses events rather
// than slowing the engine down.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := h.events.Subscribe(16)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			payload, err := json.Marshal(eventPayload{
				Kind:          e.Kind,
				ApplicationID: e.ApplicationID,
				Number:        e.Number,
				Status:        e.Status,
				PaymentStatus: e.PaymentStatus,
				Remarks:       e.Remarks,
				OccurredAt:    e.OccurredAt.Format(time.RFC3339),
			})
			if err != nil {
				slog.Error("failed to encode event", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, payload)
			flusher.Flush()
		}
	}
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
		http.Error(w, "conflict, refresh and retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
