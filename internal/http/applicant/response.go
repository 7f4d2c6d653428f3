package applicant

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
)

// applicationResponse is the applicant-facing projection: admin notes are
// internal and never rendered here.
type applicationResponse struct {
	ID            uuid.UUID                 `json:"id"`
	Number        string                    `json:"number"`
	Status        application.Status        `json:"status"`
	PaymentStatus application.PaymentStatus `json:"payment_status"`
	SubmittedAt   *time.Time                `json:"submitted_at,omitempty"`
	Form          json.RawMessage           `json:"form,omitempty"`
	History       []historyResponse         `json:"history"`
	Documents     []documentResponse        `json:"documents,omitempty"`
	ESIM          *esimResponse             `json:"esim,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type historyResponse struct {
	Status    application.Status `json:"status"`
	ChangedAt time.Time          `json:"changed_at"`
	Remarks   string             `json:"remarks,omitempty"`
}

type documentResponse struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type esimResponse struct {
	Status application.ESIMStatus `json:"status"`
}

func toResponse(app *application.Application) applicationResponse {
	resp := applicationResponse{
		ID:            app.ID,
		Number:        app.Number,
		Status:        app.Status,
		PaymentStatus: app.PaymentStatus,
		SubmittedAt:   app.SubmittedAt,
		Form:          app.FormData,
		CreatedAt:     app.CreatedAt,
	}

	for _, h := range app.History {
		resp.History = append(resp.History, historyResponse{
			Status:    h.Status,
			ChangedAt: h.ChangedAt,
			Remarks:   h.Remarks,
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
		resp.ESIM = &esimResponse{Status: app.ESIM.Status}
	}

	return resp
}
