package store

import (
	"context"
	"strings"

	"github.com/roach88/orchard/internal/domain"
)

// ListConsultations returns every consultation for the orchard, newest first,
// each with its prescription (if any) and action items in sort order.
//
// Three queries are issued (consultations, prescriptions, action items) and
// stitched together in memory, so the cost does not grow with row count.
func (s *Store) ListConsultations(ctx context.Context, orchardID string) ([]domain.Consultation, error) {
	const op = "list consultations"
	if err := s.ready(ctx); err != nil {
		return nil, wrapErr(op, err)
	}
	q := s.conn(ctx)

	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE orchard_id = ?
		ORDER BY created_at DESC, id DESC
	`), orchardID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	consultations, err := collect(rows, scanConsultation)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if len(consultations) == 0 {
		return []domain.Consultation{}, nil
	}

	rows, err = q.QueryContext(ctx, s.rebind(`
		SELECT `+qualify("p", prescriptionColumns)+`
		FROM prescriptions p
		JOIN consultations c ON c.id = p.consultation_id
		WHERE c.orchard_id = ?
	`), orchardID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	prescriptions, err := collect(rows, scanPrescription)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	rows, err = q.QueryContext(ctx, s.rebind(`
		SELECT `+qualify("a", actionItemColumns)+`
		FROM action_items a
		JOIN prescriptions p ON p.id = a.prescription_id
		JOIN consultations c ON c.id = p.consultation_id
		WHERE c.orchard_id = ?
		ORDER BY a.prescription_id, a.sort_order ASC
	`), orchardID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	items, err := collect(rows, scanActionItem)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	itemsByRx := make(map[string][]domain.ActionItem, len(prescriptions))
	for _, item := range items {
		itemsByRx[item.PrescriptionID] = append(itemsByRx[item.PrescriptionID], item)
	}
	rxByConsultation := make(map[string]*domain.Prescription, len(prescriptions))
	for i := range prescriptions {
		p := prescriptions[i]
		if got := itemsByRx[p.ID]; got != nil {
			p.ActionItems = got
		}
		rxByConsultation[p.ConsultationID] = &p
	}
	for i := range consultations {
		consultations[i].Prescription = rxByConsultation[consultations[i].ID]
	}
	return consultations, nil
}

// GetConsultation returns one consultation with its nested prescription.
func (s *Store) GetConsultation(ctx context.Context, id string) (domain.Consultation, error) {
	const op = "get consultation"
	if err := s.ready(ctx); err != nil {
		return domain.Consultation{}, wrapErr(op, err)
	}
	row := s.conn(ctx).QueryRowContext(ctx, s.rebind(`
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id = ?
	`), id)
	c, err := scanConsultation(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Consultation{}, notFound(op, "consultation", id)
		}
		return domain.Consultation{}, wrapErr(op, err)
	}

	rx, err := s.prescriptionForConsultation(ctx, id)
	if err != nil {
		return domain.Consultation{}, wrapErr(op, err)
	}
	c.Prescription = rx
	return c, nil
}

// InsertConsultation writes a new consultation. The status column is always
// REQUESTED regardless of input. The stored row is read back and returned.
func (s *Store) InsertConsultation(ctx context.Context, in domain.NewConsultation) (domain.Consultation, error) {
	const op = "insert consultation"
	if err := s.ready(ctx); err != nil {
		return domain.Consultation{}, wrapErr(op, err)
	}
	_, err := s.conn(ctx).ExecContext(ctx, s.rebind(`
		INSERT INTO consultations (
			id, orchard_id, grower_name, grower_phone, doctor_id,
			consult_type, target_at, notes, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'REQUESTED', ?)
	`),
		in.ID, in.OrchardID, in.GrowerName, in.GrowerPhone, in.DoctorID,
		string(in.Type), nullableMillis(in.TargetAt), in.Notes, toMillis(in.CreatedAt),
	)
	if err != nil {
		return domain.Consultation{}, wrapErr(op, err)
	}
	return s.GetConsultation(ctx, in.ID)
}

// UpdateConsultationStatus sets the status, and the doctor id when
// upd.DoctorID is non-empty. With upd.From set the write is a
// compare-and-set: it applies only when the current status is in From,
// otherwise ErrStatusConflict is returned.
func (s *Store) UpdateConsultationStatus(ctx context.Context, upd domain.ConsultationUpdate) error {
	const op = "update consultation status"
	if err := s.ready(ctx); err != nil {
		return wrapErr(op, err)
	}

	query := `UPDATE consultations
		SET status = ?, doctor_id = CASE WHEN ? = '' THEN doctor_id ELSE ? END
		WHERE id = ?`
	args := []any{string(upd.Status), upd.DoctorID, upd.DoctorID, upd.ID}
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
	err = s.conn(ctx).QueryRowContext(ctx, s.rebind(`SELECT status FROM consultations WHERE id = ?`), upd.ID).Scan(&current)
	if err != nil {
		if isNoRows(err) {
			return notFound(op, "consultation", upd.ID)
		}
		return wrapErr(op, err)
	}
	return statusConflict(op, "consultation", upd.ID, current)
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// qualify prefixes every column in a comma-separated list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
