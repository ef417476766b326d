package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/orchard/internal/domain"
)

// InsertPrescription writes a new prescription with status PENDING.
//
// prescriptions.consultation_id is UNIQUE, so a second insert for the same
// consultation fails with ErrUniqueViolation even when two callers race past
// their pre-checks.
func (s *Store) InsertPrescription(ctx context.Context, in domain.NewPrescription) (domain.Prescription, error) {
	const op = "insert prescription"
	if err := s.ready(ctx); err != nil {
		return domain.Prescription{}, wrapErr(op, err)
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.conn(ctx).ExecContext(ctx, s.rebind(`
		INSERT INTO prescriptions (
			id, consultation_id, doctor_name, hospital_name, issue_diagnosed,
			eppo_code, recommendation, issued_on, follow_up_on, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'PENDING', ?)
	`),
		in.ID, in.ConsultationID, in.DoctorName, in.HospitalName, in.IssueDiagnosed,
		in.EPPOCode, in.Recommendation, in.IssuedOn.String(), in.FollowUpOn.String(),
		toMillis(createdAt),
	)
	if err != nil {
		return domain.Prescription{}, wrapErr(op, err)
	}
	return s.GetPrescriptionWithItems(ctx, in.ID)
}

// InsertActionItems writes items for a prescription. Each item's sort order
// is its index in items.
func (s *Store) InsertActionItems(ctx context.Context, prescriptionID string, items []domain.ActionItemInput) error {
	const op = "insert action items"
	if err := s.ready(ctx); err != nil {
		return wrapErr(op, err)
	}
	query := s.rebind(`
		INSERT INTO action_items (
			prescription_id, category, product_name, dosage, estimated_cost, sort_order
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	q := s.conn(ctx)
	for i, item := range items {
		if _, err := q.ExecContext(ctx, query,
			prescriptionID, string(item.Category), item.ProductName, item.Dosage, item.EstimatedCost, i,
		); err != nil {
			return wrapErr(op, err)
		}
	}
	return nil
}

// UpdatePrescriptionStatus sets a prescription's status. With upd.From set the
// write is a compare-and-set and fails with ErrStatusConflict when the current
// status is not in From.
func (s *Store) UpdatePrescriptionStatus(ctx context.Context, upd domain.PrescriptionUpdate) error {
	const op = "update prescription status"
	if err := s.ready(ctx); err != nil {
		return wrapErr(op, err)
	}

	query := `UPDATE prescriptions SET status = ? WHERE id = ?`
	args := []any{string(upd.Status), upd.ID}
	if len(upd.From) > 0 {
		query += ` AND status IN (` + placeholders(len(upd.From)) + `)`
		for _, st := range upd.From {
			args = append(args, string(st))
		}
	}

	res, err := s.conn(ctx).ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.conn(ctx).QueryRowContext(ctx, s.rebind(`SELECT status FROM prescriptions WHERE id = ?`), upd.ID).Scan(&current)
	if err != nil {
		if isNoRows(err) {
			return notFound(op, "prescription", upd.ID)
		}
		return wrapErr(op, err)
	}
	return statusConflict(op, "prescription", upd.ID, current)
}

// GetPrescriptionWithItems returns a prescription and its action items
// ordered by sort_order.
func (s *Store) GetPrescriptionWithItems(ctx context.Context, id string) (domain.Prescription, error) {
	const op = "get prescription"
	if err := s.ready(ctx); err != nil {
		return domain.Prescription{}, wrapErr(op, err)
	}
	row := s.conn(ctx).QueryRowContext(ctx, s.rebind(`
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = ?
	`), id)
	p, err := scanPrescription(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Prescription{}, notFound(op, "prescription", id)
		}
		return domain.Prescription{}, wrapErr(op, err)
	}
	items, err := s.actionItems(ctx, id)
	if err != nil {
		return domain.Prescription{}, wrapErr(op, err)
	}
	p.ActionItems = items
	return p, nil
}

// prescriptionForConsultation returns the consultation's prescription, or nil
// when none has been issued.
func (s *Store) prescriptionForConsultation(ctx context.Context, consultationID string) (*domain.Prescription, error) {
	row := s.conn(ctx).QueryRowContext(ctx, s.rebind(`
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE consultation_id = ?
	`), consultationID)
	p, err := scanPrescription(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	items, err := s.actionItems(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.ActionItems = items
	return &p, nil
}

func (s *Store) actionItems(ctx context.Context, prescriptionID string) ([]domain.ActionItem, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, s.rebind(`
		SELECT `+actionItemColumns+`
		FROM action_items
		WHERE prescription_id = ?
		ORDER BY sort_order ASC
	`), prescriptionID)
	if err != nil {
		return nil, err
	}
	items, err := collect(rows, scanActionItem)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.ActionItem{}
	}
	return items, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
