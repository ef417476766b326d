package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/orchard/internal/domain"
)

// Column lists shared by every read path. Changing one requires changing the
// matching scan function.
const (
	consultationColumns = `id, orchard_id, grower_name, grower_phone, doctor_id,
		consult_type, target_at, notes, status, created_at`

	prescriptionColumns = `id, consultation_id, doctor_name, hospital_name,
		issue_diagnosed, eppo_code, recommendation, issued_on, follow_up_on, status`

	actionItemColumns = `id, prescription_id, category, product_name, dosage,
		estimated_cost, sort_order`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func scanConsultation(row rowScanner) (domain.Consultation, error) {
	var (
		c         domain.Consultation
		ctype     string
		status    string
		targetAt  sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(
		&c.ID, &c.OrchardID, &c.GrowerName, &c.GrowerPhone, &c.DoctorID,
		&ctype, &targetAt, &c.Notes, &status, &createdAt,
	); err != nil {
		return domain.Consultation{}, err
	}
	c.Type = domain.ConsultType(ctype)
	c.Status = domain.ConsultationStatus(status)
	c.CreatedAt = fromMillis(createdAt)
	if targetAt.Valid {
		t := fromMillis(targetAt.Int64)
		c.TargetAt = &t
	}
	return c, nil
}

func scanPrescription(row rowScanner) (domain.Prescription, error) {
	var (
		p          domain.Prescription
		issuedOn   string
		followUpOn string
		status     string
	)
	if err := row.Scan(
		&p.ID, &p.ConsultationID, &p.DoctorName, &p.HospitalName,
		&p.IssueDiagnosed, &p.EPPOCode, &p.Recommendation,
		&issuedOn, &followUpOn, &status,
	); err != nil {
		return domain.Prescription{}, err
	}
	var err error
	if p.IssuedOn, err = domain.ParseDate(issuedOn); err != nil {
		return domain.Prescription{}, fmt.Errorf("prescription %s issued_on: %w", p.ID, err)
	}
	if p.FollowUpOn, err = domain.ParseDate(followUpOn); err != nil {
		return domain.Prescription{}, fmt.Errorf("prescription %s follow_up_on: %w", p.ID, err)
	}
	p.Status = domain.PrescriptionStatus(status)
	p.ActionItems = []domain.ActionItem{}
	return p, nil
}

func scanActionItem(row rowScanner) (domain.ActionItem, error) {
	var (
		item     domain.ActionItem
		category string
	)
	if err := row.Scan(
		&item.ID, &item.PrescriptionID, &category, &item.ProductName,
		&item.Dosage, &item.EstimatedCost, &item.SortOrder,
	); err != nil {
		return domain.ActionItem{}, err
	}
	item.Category = domain.Category(category)
	return item, nil
}

// collect drains rows through scan and closes them. Rows are always fully
// consumed before the next query so a single-connection pool never blocks
// on itself.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
