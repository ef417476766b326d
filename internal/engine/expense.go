package engine

import (
	"context"

	"github.com/roach88/orchard/internal/domain"
)

// ExpenseRecord is handed to the cost ledger after a prescription is applied.
type ExpenseRecord struct {
	PrescriptionID string              `json:"prescription_id"`
	DoctorName     string              `json:"doctor_name"`
	IssuedOn       domain.Date         `json:"issued_on"`
	Items          []domain.ActionItem `json:"items"`
}

// Total sums the estimated cost of every item in the record.
func (r ExpenseRecord) Total() float64 {
	return domain.Prescription{ActionItems: r.Items}.TotalCost()
}

// ExpenseRecorder forwards applied action items to a cost ledger. The engine
// calls it exactly once per successful Execute, after the status change has
// committed.
type ExpenseRecorder interface {
	RecordExpenses(ctx context.Context, rec ExpenseRecord) error
}

// ExpenseRecorderFunc adapts a function to ExpenseRecorder.
type ExpenseRecorderFunc func(ctx context.Context, rec ExpenseRecord) error

// RecordExpenses calls f.
func (f ExpenseRecorderFunc) RecordExpenses(ctx context.Context, rec ExpenseRecord) error {
	return f(ctx, rec)
}

func expenseRecordFor(p domain.Prescription) ExpenseRecord {
	items := make([]domain.ActionItem, len(p.ActionItems))
	copy(items, p.ActionItems)
	return ExpenseRecord{
		PrescriptionID: p.ID,
		DoctorName:     p.DoctorName,
		IssuedOn:       p.IssuedOn,
		Items:          items,
	}
}
