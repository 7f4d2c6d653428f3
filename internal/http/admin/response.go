package admin

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
)

// applicationResponse is the operator projection: everything, including the
// audit ledger and internal notes.
type applicationResponse struct {
	ID             uuid.UUID                 `json:"id"`
	Number         string                    `json:"number"`
	OwnerID        uuid.UUID                 `json:"owner_id"`
	VisaTypeID     uuid.UUID                 `json:"visa_type_id"`
	Status         application.Status        `json:"status"`
	PaymentStatus  application.PaymentStatus `json:"payment_status"`
	PaymentOrderID string                    `json:"payment_order_id,omitempty"`
	PaymentID      string                    `json:"payment_id,omitempty"`
	PaymentAmount  int64                     `json:"payment_amount"`
	PaidAt         *time.Time                `json:"paid_at,omitempty"`
	SubmittedAt    *time.Time                `json:"submitted_at,omitempty"`
	Form           json.RawMessage           `json:"form,omitempty"`
	History        []historyResponse         `json:"history"`
	Notes          []noteResponse            `json:"notes,omitempty"`
	Documents      []documentResponse        `json:"documents,omitempty"`
	ESIM           *esimResponse             `json:"esim,omitempty"`
	Version        int64                     `json:"version"`
	CreatedAt      time.Time                 `json:"created_at"`
}

type historyResponse struct {
	Status    application.Status `json:"status"`
	ChangedBy string             `json:"changed_by"`
	ChangedAt time.Time          `json:"changed_at"`
	Remarks   string             `json:"remarks,omitempty"`
}

type noteResponse struct {
	Note    string    `json:"note"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

type documentResponse struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type esimResponse struct {
	Status    application.ESIMStatus `json:"status"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
}

func toResponse(app *application.Application) applicationResponse {
	resp := applicationResponse{
		ID:             app.ID,
		Number:         app.Number,
		OwnerID:        app.OwnerID,
		VisaTypeID:     app.VisaTypeID,
		Status:         app.Status,
		PaymentStatus:  app.PaymentStatus,
		PaymentOrderID: app.PaymentOrderID,
		PaymentID:      app.PaymentID,
		PaymentAmount:  app.PaymentAmount,
		PaidAt:         app.PaidAt,
		SubmittedAt:    app.SubmittedAt,
		Form:           app.FormData,
		Version:        app.Version,
		CreatedAt:      app.CreatedAt,
	}

	for _, h := range app.History {
		resp.History = append(resp.History, historyResponse{
			Status:    h.Status,
			ChangedBy: h.ChangedBy,
			ChangedAt: h.ChangedAt,
			Remarks:   h.Remarks,
		})
	}

	for _, n := range app.Notes {
		resp.Notes = append(resp.Notes, noteResponse{
			Note:    n.Note,
			AddedBy: n.AddedBy,
			AddedAt: n.AddedAt,
		})
	}

	for _, d := range app.Documents {
		resp.Documents = append(resp.Documents, documentResponse{
			Filename:   d.Filename,
			URL:        d.URL,
			Size:       d.Size,
			UploadedAt: d.UploadedAt,
		})
	}

	if app.ESIM.Selected {
		resp.ESIM = &esimResponse{
			Status:    app.ESIM.Status,
			UpdatedAt: app.ESIM.UpdatedAt,
		}
	}

	return resp
}

func toResponseList(apps []*application.Application) []applicationResponse {
	out := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toResponse(app))
	}

	return out
}
