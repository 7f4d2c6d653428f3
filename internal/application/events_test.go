package application_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instavisa/instavisa/internal/application"
)

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := application.NewHub()

	first, cancelFirst := hub.Subscribe(1)
	defer cancelFirst()

	second, cancelSecond := hub.Subscribe(1)
	defer cancelSecond()

	event := application.Event{
		Kind:          application.EventStatusChanged,
		ApplicationID: uuid.New(),
		Number:        "IV2026000007",
		Status:        application.StatusUnderReview,
	}

	hub.Publish(event)

	for _, ch := range []<-chan application.Event{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, event, got)
		default:
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestHub_FullSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := application.NewHub()

	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(application.Event{Kind: application.EventStatusChanged})
	hub.Publish(application.Event{Kind: application.EventPaymentCompleted})

	got := <-ch
	assert.Equal(t, application.EventStatusChanged, got.Kind)

	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := application.NewHub()

	ch, cancel := hub.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel must not panic on the closed channel.
	hub.Publish(application.Event{Kind: application.EventStatusChanged})
}

func TestHub_NilHubIsInert(t *testing.T) {
	var hub *application.Hub
	hub.Publish(application.Event{Kind: application.EventStatusChanged})
}
