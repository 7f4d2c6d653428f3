package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanApplication reads an application row and returns a populated Application.
// Expected column order: id, number, owner_id, visa_type_id, status, payment_status,
// payment_order_id, payment_id, payment_amount, paid_at, submitted_at, form_data,
// esim_selected, esim_status, esim_updated_at, version, created_at, updated_at
func scanApplication(s scanner) (*application.Application, error) {
	var app application.Application

	var statusStr, payStatusStr, esimStatusStr string

	var orderID, paymentID sql.NullString

	var formData []byte

	if err := s.Scan(
		&app.ID, &app.Number, &app.OwnerID, &app.VisaTypeID,
		&statusStr, &payStatusStr,
		&orderID, &paymentID, &app.PaymentAmount, &app.PaidAt, &app.SubmittedAt,
		&formData,
		&app.ESIM.Selected, &esimStatusStr, &app.ESIM.UpdatedAt,
		&app.Version, &app.CreatedAt, &app.UpdatedAt,
	); err != nil {
		return nil, err
	}

	app.Status = application.Status(statusStr)
	app.PaymentStatus = application.PaymentStatus(payStatusStr)
	app.ESIM.Status = application.ESIMStatus(esimStatusStr)
	app.PaymentOrderID = orderID.String
	app.PaymentID = paymentID.String
	app.FormData = formData

	return &app, nil
}

const selectApplicationColumns = `
	a.id, a.number, a.owner_id, a.visa_type_id, a.status, a.payment_status,
	a.payment_order_id, a.payment_id, a.payment_amount, a.paid_at, a.submitted_at,
	a.form_data, a.esim_selected, a.esim_status, a.esim_updated_at,
	a.version, a.created_at, a.updated_at
`

// CreateApplication persists a new draft. The application number is drawn
// from a per-year counter row inside the same transaction, so concurrent
// drafts can never share a number.
func (s *Store) CreateApplication(ctx context.Context, app *application.Application) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	year := time.Now().UTC().Year()

	seqQuery := `
		INSERT INTO application_numbers (year, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = application_numbers.last_seq + 1
		RETURNING last_seq
	`

	var seq int64
	if err := dbTx.QueryRowContext(ctx, seqQuery, year).Scan(&seq); err != nil {
		return fmt.Errorf("allocating application number: %w", err)
	}

	app.Number = fmt.Sprintf("IV%d%06d", year, seq)

	insertQuery := `
		INSERT INTO applications (
			number, owner_id, visa_type_id, status, payment_status,
			payment_amount, form_data, esim_selected, esim_status,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, NOW(), NOW())
		RETURNING id, version, created_at
	`

	err = dbTx.QueryRowContext(ctx, insertQuery,
		app.Number,
		app.OwnerID,
		app.VisaTypeID,
		app.Status,
		app.PaymentStatus,
		app.PaymentAmount,
		app.FormData,
		app.ESIM.Selected,
		app.ESIM.Status,
	).Scan(&app.ID, &app.Version, &app.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}

	if err := insertHistory(ctx, dbTx, app.ID, app.History); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*application.Application, error) {
	query := `SELECT ` + selectApplicationColumns + ` FROM applications a WHERE a.id = $1`

	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, application.ErrNotFound
		}

		return nil, fmt.Errorf("getting application: %w", err)
	}

	if err := s.loadChildren(ctx, app); err != nil {
		return nil, err
	}

	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, filter application.ListFilter) ([]*application.Application, error) {
	query := `SELECT ` + selectApplicationColumns + ` FROM applications a WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND a.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.PaymentStatus != nil {
		query += fmt.Sprintf(" AND a.payment_status = $%d", argIdx)

		args = append(args, *filter.PaymentStatus)
		argIdx++
	}

	if filter.OwnerID != nil {
		query += fmt.Sprintf(" AND a.owner_id = $%d", argIdx)

		args = append(args, *filter.OwnerID)
		argIdx++
	}

	query += " ORDER BY a.created_at ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
		argIdx++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)

		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []*application.Application

	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}

		apps = append(apps, app)
	}

	return apps, nil
}

// UpdateApplication applies the patch atomically, guarded by the version
// column. A version mismatch returns application.ErrConflict with nothing
// written; history, notes and documents are appended in the same database
// transaction as the scalar update.
func (s *Store) UpdateApplication(ctx context.Context, id uuid.UUID, expectedVersion int64, patch application.Patch) (*application.Application, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	set := "version = version + 1, updated_at = NOW()"

	var args []any

	argIdx := 1

	addSet := func(column string, value any) {
		set += fmt.Sprintf(", %s = $%d", column, argIdx)

		args = append(args, value)
		argIdx++
	}

	if patch.Status != nil {
		addSet("status", *patch.Status)
	}

	if patch.PaymentStatus != nil {
		addSet("payment_status", *patch.PaymentStatus)
	}

	if patch.PaymentOrderID != nil {
		addSet("payment_order_id", *patch.PaymentOrderID)
	}

	if patch.PaymentID != nil {
		addSet("payment_id", *patch.PaymentID)
	}

	if patch.PaymentAmount != nil {
		addSet("payment_amount", *patch.PaymentAmount)
	}

	if patch.PaidAt != nil {
		addSet("paid_at", *patch.PaidAt)
	}

	if patch.SubmittedAt != nil {
		addSet("submitted_at", *patch.SubmittedAt)
	}

	if patch.FormData != nil {
		addSet("form_data", []byte(patch.FormData))
	}

	if patch.ESIMStatus != nil {
		addSet("esim_status", *patch.ESIMStatus)
		set += ", esim_updated_at = NOW()"
	}

	query := fmt.Sprintf(
		"UPDATE applications SET %s WHERE id = $%d AND version = $%d",
		set, argIdx, argIdx+1,
	)
	args = append(args, id, expectedVersion)

	res, err := dbTx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating application: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update result: %w", err)
	}

	if affected == 0 {
		var exists bool
		if err := dbTx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking application existence: %w", err)
		}

		if !exists {
			return nil, application.ErrNotFound
		}

		return nil, application.ErrConflict
	}

	if err := insertHistory(ctx, dbTx, id, patch.History); err != nil {
		return nil, err
	}

	for _, n := range patch.Notes {
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO application_admin_notes (application_id, note, added_by, added_at)
			VALUES ($1, $2, $3, $4)`,
			id, n.Note, n.AddedBy, n.AddedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appending admin note: %w", err)
		}
	}

	for _, d := range patch.Documents {
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO application_documents (application_id, filename, url, size_bytes, uploaded_at)
			VALUES ($1, $2, $3, $4, $5)`,
			id, d.Filename, d.URL, d.Size, d.UploadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appending document: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return s.GetApplication(ctx, id)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHistory(ctx context.Context, ex execer, id uuid.UUID, entries []application.StatusHistoryEntry) error {
	for _, h := range entries {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO application_status_history (application_id, status, changed_by, changed_at, remarks)
			VALUES ($1, $2, $3, $4, $5)`,
			id, h.Status, h.ChangedBy, h.ChangedAt, h.Remarks,
		)
		if err != nil {
			return fmt.Errorf("appending status history: %w", err)
		}
	}

	return nil
}

func (s *Store) loadChildren(ctx context.Context, app *application.Application) error {
	historyRows, err := s.db.QueryContext(ctx, `
		SELECT status, changed_by, changed_at, remarks
		FROM application_status_history
		WHERE application_id = $1
		ORDER BY id ASC`, app.ID)
	if err != nil {
		return fmt.Errorf("loading status history: %w", err)
	}
	defer historyRows.Close()

	for historyRows.Next() {
		var h application.StatusHistoryEntry

		var statusStr string

		if err := historyRows.Scan(&statusStr, &h.ChangedBy, &h.ChangedAt, &h.Remarks); err != nil {
			return fmt.Errorf("scanning status history: %w", err)
		}

		h.Status = application.Status(statusStr)
		app.History = append(app.History, h)
	}

	noteRows, err := s.db.QueryContext(ctx, `
		SELECT note, added_by, added_at
		FROM application_admin_notes
		WHERE application_id = $1
		ORDER BY id ASC`, app.ID)
	if err != nil {
		return fmt.Errorf("loading admin notes: %w", err)
	}
	defer noteRows.Close()

	for noteRows.Next() {
		var n application.AdminNote

		if err := noteRows.Scan(&n.Note, &n.AddedBy, &n.AddedAt); err != nil {
			return fmt.Errorf("scanning admin note: %w", err)
		}

		app.Notes = append(app.Notes, n)
	}

	docRows, err := s.db.QueryContext(ctx, `
		SELECT filename, url, size_bytes, uploaded_at
		FROM application_documents
		WHERE application_id = $1
		ORDER BY id ASC`, app.ID)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	defer docRows.Close()

	for docRows.Next() {
		var d application.DocumentRef

		if err := docRows.Scan(&d.Filename, &d.URL, &d.Size, &d.UploadedAt); err != nil {
			return fmt.Errorf("scanning document: %w", err)
		}

		app.Documents = append(app.Documents, d)
	}

	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*application.User, error) {
	query := `SELECT id, email, name, role FROM users WHERE id = $1`

	var u application.User

	var roleStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &roleStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, application.ErrNotFound
		}

		return nil, fmt.Errorf("getting user: %w", err)
	}

	u.Role = application.Role(roleStr)

	return &u, nil
}

func (s *Store) GetVisaType(ctx context.Context, id uuid.UUID) (*application.VisaType, error) {
	query := `SELECT id, name, country, fee_amount FROM visa_types WHERE id = $1`

	var vt application.VisaType

	err := s.db.QueryRowContext(ctx, query, id).Scan(&vt.ID, &vt.Name, &vt.Country, &vt.Fee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, application.ErrNotFound
		}

		return nil, fmt.Errorf("getting visa type: %w", err)
	}

	return &vt, nil
}
