package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=application

// Repository is the entity store. UpdateApplication must apply the whole
// patch atomically and fail with ErrConflict when expectedVersion no longer
// matches, so concurrent writers on the same application are serialized.
type Repository interface {
	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*Application, error)
	ListApplications(ctx context.Context, filter ListFilter) ([]*Application, error)
	UpdateApplication(ctx context.Context, id uuid.UUID, expectedVersion int64, patch Patch) (*Application, error)

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetVisaType(ctx context.Context, id uuid.UUID) (*VisaType, error)
}

// Patch is the unit of mutation applied to one application. Scalar fields
// are overwritten when non-nil; History, Notes and Documents are appended,
// never replaced.
type Patch struct {
	Status         *Status
	PaymentStatus  *PaymentStatus
	PaymentOrderID *string
	PaymentID      *string
	PaymentAmount  *int64
	PaidAt         *time.Time
	SubmittedAt    *time.Time
	FormData       json.RawMessage
	ESIMStatus     *ESIMStatus

	History   []StatusHistoryEntry
	Notes     []AdminNote
	Documents []DocumentRef
}

type ListFilter struct {
	Status        *Status
	PaymentStatus *PaymentStatus
	OwnerID       *uuid.UUID
	Limit         int
	Offset        int
}

// PaymentOrder is the gateway's order handle for a payment intent.
type PaymentOrder struct {
	ID       string
	Amount   int64
	Currency string
}

// PaymentDetails is the gateway's view of a captured payment.
type PaymentDetails struct {
	ID      string
	OrderID string
	Status  string
	Amount  int64
	Method  string
}

// PaymentGateway is the payment collaborator. Every call must be safe to
// retry from the engine's perspective.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*PaymentOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
}

type NotificationKind string

const (
	NotifyStatusChanged   NotificationKind = "status_changed"
	NotifyPaymentReceived NotificationKind = "payment_received"
	NotifyESIMUpdated     NotificationKind = "esim_updated"
)

// Notifier delivers status-change messages to the applicant. Failures are
// logged by the engine, never propagated: the committed transition is the
// source of truth.
type Notifier interface {
	Notify(ctx context.Context, recipient *User, kind NotificationKind, app *Application, remarks string) error
}

// Service is the lifecycle engine: the single authority for status and
// payment transitions, the audit trail, and downstream notification.
type Service struct {
	repo     Repository
	gateway  PaymentGateway
	notifier Notifier
	events   *Hub
}

func NewService(repo Repository, gateway PaymentGateway, notifier Notifier, events *Hub) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		events:   events,
	}
}

// CreateDraft opens a new application for the actor. The application number
// is assigned by the store from a collision-free sequence; the draft carries
// no payment intent and no notification is sent.
func (s *Service) CreateDraft(ctx context.Context, actor Actor, visaTypeID uuid.UUID, form json.RawMessage, withESIM bool) (*Application, error) {
	owner, err := s.repo.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("looking up owner: %w", err)
	}

	if _, err := s.repo.GetVisaType(ctx, visaTypeID); err != nil {
		return nil, fmt.Errorf("looking up visa type: %w", err)
	}

	now := time.Now().UTC()

	app := &Application{
		OwnerID:       owner.ID,
		VisaTypeID:    visaTypeID,
		Status:        StatusDraft,
		PaymentStatus: PaymentPending,
		FormData:      form,
		ESIM:          ESIM{Selected: withESIM, Status: ESIMPending},
		History: []StatusHistoryEntry{{
			Status:    StatusDraft,
			ChangedBy: ledgerName(actor),
			ChangedAt: now,
			Remarks:   "application created",
		}},
	}

	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	return app, nil
}

// UpdateDraft replaces the opaque form payload. Only the owner may call it,
// and only before the payment boundary.
func (s *Service) UpdateDraft(ctx context.Context, actor Actor, id uuid.UUID, form json.RawMessage) (*Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if app.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}

	if app.Submitted() {
		return nil, ErrInvalidState
	}

	return s.repo.UpdateApplication(ctx, app.ID, app.Version, Patch{FormData: form})
}

// RecordPaymentIntent creates a gateway order for the application and stores
// its reference. The gateway is called before anything is persisted: a
// gateway failure leaves the application untouched.
func (s *Service) RecordPaymentIntent(ctx context.Context, actor Actor, id uuid.UUID, amount int64) (*Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if app.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}

	if app.PaymentStatus == PaymentCompleted {
		return nil, ErrConflict
	}

	if app.Status != StatusDraft && app.Status != StatusPendingPayment {
		return nil, ErrInvalidState
	}

	if amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidState)
	}

	order, err := s.gateway.CreateOrder(ctx, amount, "INR", app.Number, map[string]string{
		"application_id": app.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway order: %w", err)
	}

	processing := PaymentProcessing

	// Status stays put: only a verified confirmation moves the application
	// forward. The order reference is what reconciliation keys on.
	return s.repo.UpdateApplication(ctx, app.ID, app.Version, Patch{
		PaymentOrderID: &order.ID,
		PaymentAmount:  &amount,
		PaymentStatus:  &processing,
	})
}

// ConfirmPayment applies a signed gateway confirmation. It is idempotent:
// re-delivering the same confirmation (webhook retries, user double-click)
// is a successful no-op with no second notification. A completed payment
// with a different gateway payment id is rejected with ErrConflict.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, orderID, paymentID, signature string) (*Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		return nil, ErrInvalidSignature
	}

	if app.PaymentStatus == PaymentCompleted {
		if app.PaymentID == paymentID {
			return app, nil
		}

		return nil, ErrConflict
	}

	if app.PaymentOrderID != "" && app.PaymentOrderID != orderID {
		return nil, ErrConflict
	}

	now := time.Now().UTC()
	completed := PaymentCompleted

	patch := Patch{
		PaymentStatus: &completed,
		PaymentID:     &paymentID,
		PaidAt:        &now,
	}

	if app.PaymentOrderID == "" {
		patch.PaymentOrderID = &orderID
	}

	if app.SubmittedAt == nil {
		patch.SubmittedAt = &now
	}

	if CanTransition(app.Status, StatusPending) {
		pending := StatusPending
		patch.Status = &pending
		patch.History = []StatusHistoryEntry{{
			Status:    StatusPending,
			ChangedBy: ledgerName(SystemActor),
			ChangedAt: now,
			Remarks:   "payment confirmed",
		}}
	}

	updated, err := s.repo.UpdateApplication(ctx, app.ID, app.Version, patch)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the race against a concurrent confirmation. If that
			// confirmation carried the same payment id this delivery is
			// already satisfied.
			fresh, getErr := s.repo.GetApplication(ctx, id)
			if getErr == nil && fresh.PaymentStatus == PaymentCompleted && fresh.PaymentID == paymentID {
				return fresh, nil
			}
		}

		return nil, err
	}

	s.notify(ctx, updated, NotifyPaymentReceived, "payment received")
	s.publish(EventPaymentCompleted, updated, "")

	return updated, nil
}

// TransitionStatus applies an operator-driven status change. Illegal target
// states fail with ErrInvalidTransition; terminal applications fail with
// ErrInvalidState. Exactly one history entry is appended per successful
// call, in commit order.
func (s *Service) TransitionStatus(ctx context.Context, actor Actor, id uuid.UUID, newStatus Status, remarks string) (*Application, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrNotOwner
	}

	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, newStatus)
	}

	if app.Status.Terminal() {
		return nil, ErrInvalidState
	}

	if !CanTransition(app.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, app.Status, newStatus)
	}

	// Review may only begin once payment intent exists.
	if requiresPayment(newStatus) && app.PaymentStatus != PaymentProcessing && app.PaymentStatus != PaymentCompleted {
		return nil, ErrInvalidState
	}

	patch := Patch{
		Status: &newStatus,
		History: []StatusHistoryEntry{{
			Status:    newStatus,
			ChangedBy: ledgerName(actor),
			ChangedAt: time.Now().UTC(),
			Remarks:   remarks,
		}},
	}

	updated, err := s.repo.UpdateApplication(ctx, app.ID, app.Version, patch)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, NotifyStatusChanged, remarks)
	s.publish(EventStatusChanged, updated, remarks)

	return updated, nil
}

// AppendAdminNote attaches a free-text operator note. Legal in every status,
// including terminal ones; never a transition.
func (s *Service) AppendAdminNote(ctx context.Context, actor Actor, id uuid.UUID, note string) (*Application, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrNotOwner
	}

	if note == "" {
		return nil, fmt.Errorf("%w: empty note", ErrInvalidState)
	}

	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.repo.UpdateApplication(ctx, app.ID, app.Version, Patch{
		Notes: []AdminNote{{
			Note:    note,
			AddedBy: ledgerName(actor),
			AddedAt: time.Now().UTC(),
		}},
	})
}

// SubmitAdditionalDocuments records artifact-store descriptors for files the
// applicant re-submitted. The upload itself happens outside the engine; only
// while documents_required may the result be recorded.
func (s *Service) SubmitAdditionalDocuments(ctx context.Context, actor Actor, id uuid.UUID, docs []DocumentRef) (*Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if app.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}

	if app.Status != StatusDocumentsRequired {
		return nil, ErrInvalidState
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents supplied", ErrInvalidState)
	}

	now := time.Now().UTC()
	for i := range docs {
		if docs[i].UploadedAt.IsZero() {
			docs[i].UploadedAt = now
		}
	}

	updated, err := s.repo.UpdateApplication(ctx, app.ID, app.Version, Patch{
		Documents: docs,
		Notes: []AdminNote{{
			Note:    fmt.Sprintf("applicant uploaded %d additional document(s)", len(docs)),
			AddedBy: ledgerName(SystemActor),
			AddedAt: time.Now().UTC(),
		}},
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventDocumentsSubmitted, updated, "")

	return updated, nil
}

// UpdateESIM advances the eSIM add-on through its fulfillment queue. The
// queue is independent from the visa transition table.
func (s *Service) UpdateESIM(ctx context.Context, actor Actor, id uuid.UUID, newStatus ESIMStatus) (*Application, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrNotOwner
	}

	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if !app.ESIM.Selected {
		return nil, ErrInvalidState
	}

	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown esim status %q", ErrInvalidTransition, newStatus)
	}

	if app.ESIM.Status.Terminal() {
		return nil, ErrInvalidState
	}

	if !CanTransitionESIM(app.ESIM.Status, newStatus) {
		return nil, fmt.Errorf("%w: esim %s -> %s", ErrInvalidTransition, app.ESIM.Status, newStatus)
	}

	updated, err := s.repo.UpdateApplication(ctx, app.ID, app.Version, Patch{ESIMStatus: &newStatus})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, NotifyESIMUpdated, string(newStatus))
	s.publish(EventESIMUpdated, updated, string(newStatus))

	return updated, nil
}

// Get returns the application to its owner or to an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role != RoleAdmin && app.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}

	return app, nil
}

// List is the admin review-queue query.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) ([]*Application, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrNotOwner
	}

	return s.repo.ListApplications(ctx, filter)
}

// notify delivers a message to the applicant, best-effort. The state change
// has already committed; a sink failure is logged and swallowed.
func (s *Service) notify(ctx context.Context, app *Application, kind NotificationKind, remarks string) {
	if s.notifier == nil {
		return
	}

	owner, err := s.repo.GetUser(ctx, app.OwnerID)
	if err != nil {
		slog.Error("notification skipped: owner lookup failed",
			"application", app.Number, "error", err)
		return
	}

	if err := s.notifier.Notify(ctx, owner, kind, app, remarks); err != nil {
		slog.Error("notification failed",
			"application", app.Number, "kind", kind, "error", err)
	}
}

func (s *Service) publish(kind EventKind, app *Application, remarks string) {
	s.events.Publish(Event{
		Kind:          kind,
		ApplicationID: app.ID,
		Number:        app.Number,
		Status:        app.Status,
		PaymentStatus: app.PaymentStatus,
		Remarks:       remarks,
		OccurredAt:    time.Now().UTC(),
	})
}

func ledgerName(a Actor) string {
	if a.Role == RoleSystem {
		return "system"
	}

	return a.ID.String()
}
