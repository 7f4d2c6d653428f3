package application

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a visa application.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingPayment    Status = "pending_payment"
	StatusPending           Status = "pending"
	StatusUnderReview       Status = "under_review"
	StatusDocumentsRequired Status = "documents_required"
	StatusDocumentsApproved Status = "documents_approved"
	StatusSentToEmbassy     Status = "sent_to_embassy"
	StatusEmbassyApproved   Status = "embassy_approved"
	StatusEmbassyRejected   Status = "embassy_rejected"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
)

// PaymentStatus tracks the payment side of an application, independently
// from Status.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// ESIMStatus is the fulfillment state of the optional eSIM add-on.
type ESIMStatus string

const (
	ESIMPending    ESIMStatus = "pending"
	ESIMProcessing ESIMStatus = "processing"
	ESIMActivated  ESIMStatus = "activated"
	ESIMDelivered  ESIMStatus = "delivered"
	ESIMCancelled  ESIMStatus = "cancelled"
)

// Role identifies what kind of actor is performing an operation.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// Actor is the identity performing an engine operation. It is passed
// explicitly into every call rather than read from ambient request state.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used for changes applied by the platform itself, such as
// gateway payment confirmations.
var SystemActor = Actor{Role: RoleSystem}

// StatusHistoryEntry is one record in the append-only audit ledger.
type StatusHistoryEntry struct {
	Status    Status
	ChangedBy string
	ChangedAt time.Time
	Remarks   string
}

// AdminNote is a free-text operator annotation. Notes are append-only and
// never participate in status transitions.
type AdminNote struct {
	Note    string
	AddedBy string
	AddedAt time.Time
}

// DocumentRef describes a file already persisted in the artifact store.
type DocumentRef struct {
	Filename   string
	URL        string
	Size       int64
	UploadedAt time.Time
}

// ESIM is the optional add-on sub-record with its own fulfillment lifecycle.
type ESIM struct {
	Selected  bool
	Status    ESIMStatus
	UpdatedAt *time.Time
}

// Application is the central entity. The large set of applicant-entered form
// fields is kept opaque in FormData; the engine only interprets the fields
// that participate in the state machine.
type Application struct {
	ID         uuid.UUID
	Number     string // e.g. IV2026000042, assigned once on first persistence
	OwnerID    uuid.UUID
	VisaTypeID uuid.UUID

	Status        Status
	PaymentStatus PaymentStatus

	PaymentOrderID string // gateway order reference
	PaymentID      string // gateway payment identifier
	PaymentAmount  int64  // minor currency units
	PaidAt         *time.Time

	SubmittedAt *time.Time

	FormData json.RawMessage

	History   []StatusHistoryEntry
	Notes     []AdminNote
	Documents []DocumentRef
	ESIM      ESIM

	Version   int64
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Submitted reports whether the application has passed the payment boundary
// and is no longer editable by its owner.
func (a *Application) Submitted() bool {
	return a.SubmittedAt != nil
}

// User is an opaque owner/operator lookup; only the fields the engine and
// the notification sink need are carried here.
type User struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

// VisaType is an opaque product lookup: the fee is the only field the
// engine interprets.
type VisaType struct {
	ID      uuid.UUID
	Name    string
	Country string
	Fee     int64 // minor currency units
}
