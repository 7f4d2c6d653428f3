package application

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies lifecycle events published after a successful commit.
type EventKind string

const (
	EventStatusChanged      EventKind = "status_changed"
	EventPaymentCompleted   EventKind = "payment_completed"
	EventDocumentsSubmitted EventKind = "documents_submitted"
	EventESIMUpdated        EventKind = "esim_updated"
)

// Event is a lifecycle notification for real-time observers. Events are
// emitted only after the authoritative state change has been persisted.
type Event struct {
	Kind          EventKind
	ApplicationID uuid.UUID
	Number        string
	Status        Status
	PaymentStatus PaymentStatus
	Remarks       string
	OccurredAt    time.Time
}

// Hub fans lifecycle events out to in-process subscribers. Delivery is
// best-effort: a subscriber whose buffer is full misses the event rather
// than blocking the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers an observer. The returned cancel func must be called
// to release the subscription; the channel is closed on cancel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++

	ch := make(chan Event, buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
