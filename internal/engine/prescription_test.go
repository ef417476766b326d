package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orchard/internal/domain"
)

// recordingLedger captures expense records handed to it.
type recordingLedger struct {
	mu      sync.Mutex
	records []ExpenseRecord
	err     error
}

func (l *recordingLedger) RecordExpenses(_ context.Context, rec ExpenseRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return l.err
}

func (l *recordingLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// issued returns a PENDING prescription.
func issued(t *testing.T, e *Engine) domain.Prescription {
	t.Helper()
	c := requestAndAccept(t, e)
	res, err := e.Issue(context.Background(), sampleIssue(c.ID))
	require.NoError(t, err)
	return res.Prescription
}

func TestEngine_Execute(t *testing.T) {
	ledger := &recordingLedger{}
	e, s := newTestEngine(t, WithExpenseRecorder(ledger))
	ctx := context.Background()
	p := issued(t, e)

	res, err := e.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.NoError(t, res.ExpenseErr)
	assert.Equal(t, domain.PrescriptionApplied, res.Prescription.Status)
	assert.Len(t, res.Prescription.ActionItems, 3)

	stored, err := s.GetPrescriptionWithItems(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionApplied, stored.Status)

	require.Equal(t, 1, ledger.calls())
	rec := ledger.records[0]
	assert.Equal(t, p.ID, rec.PrescriptionID)
	assert.Equal(t, "Dr. Meera Kaul", rec.DoctorName)
	assert.Equal(t, p.IssuedOn, rec.IssuedOn)
	require.Len(t, rec.Items, 3)
	assert.Equal(t, "Captan 50 WP", rec.Items[0].ProductName)
	assert.InDelta(t, 1250.0, rec.Total(), 1e-9)
}

func TestEngine_Execute_TwiceIsRejected(t *testing.T) {
	ledger := &recordingLedger{}
	e, _ := newTestEngine(t, WithExpenseRecorder(ledger))
	ctx := context.Background()
	p := issued(t, e)

	_, err := e.Execute(ctx, p.ID)
	require.NoError(t, err)

	_, err = e.Execute(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err), "got %v", err)
	assert.Equal(t, 1, ledger.calls(), "the ledger sees each prescription once")
}

func TestEngine_Execute_AfterCorrectionIsRejected(t *testing.T) {
	ledger := &recordingLedger{}
	e, s := newTestEngine(t, WithExpenseRecorder(ledger))
	ctx := context.Background()
	p := issued(t, e)

	flagged, err := e.FlagCorrection(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionNeedsCorrection, flagged.Status)

	_, err = e.Execute(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err), "got %v", err)
	assert.Zero(t, ledger.calls())

	stored, err := s.GetPrescriptionWithItems(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionNeedsCorrection, stored.Status)
}

func TestEngine_Execute_RecorderFailureKeepsStatus(t *testing.T) {
	ledger := &recordingLedger{err: errors.New("ledger offline")}
	e, s := newTestEngine(t, WithExpenseRecorder(ledger))
	ctx := context.Background()
	p := issued(t, e)

	res, err := e.Execute(ctx, p.ID)
	require.NoError(t, err, "a ledger failure does not fail the command")
	require.Error(t, res.ExpenseErr)
	assert.Contains(t, res.ExpenseErr.Error(), "ledger offline")
	assert.Equal(t, 1, ledger.calls())

	stored, err := s.GetPrescriptionWithItems(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionApplied, stored.Status)
}

func TestEngine_Execute_RecorderFunc(t *testing.T) {
	var got []string
	e, _ := newTestEngine(t, WithExpenseRecorder(ExpenseRecorderFunc(func(_ context.Context, rec ExpenseRecord) error {
		got = append(got, rec.PrescriptionID)
		return nil
	})))
	p := issued(t, e)

	_, err := e.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, got)
}

func TestEngine_Execute_WithoutRecorder(t *testing.T) {
	e, _ := newTestEngine(t)
	p := issued(t, e)

	res, err := e.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionApplied, res.Prescription.Status)
}

func TestEngine_Execute_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Execute(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = e.Execute(context.Background(), " ")
	assert.True(t, IsValidationFailure(err), "got %v", err)
}

func TestEngine_FlagCorrection_OnlyFromPending(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	p := issued(t, e)

	_, err := e.Execute(ctx, p.ID)
	require.NoError(t, err)

	_, err = e.FlagCorrection(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err), "got %v", err)

	_, err = e.FlagCorrection(ctx, "missing")
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestEngine_Execute_ConcurrentCallsRecordOnce(t *testing.T) {
	ledger := &recordingLedger{}
	e, _ := newTestEngine(t, WithExpenseRecorder(ledger))
	ctx := context.Background()
	p := issued(t, e)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Execute(ctx, p.ID)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, IsInvalidTransition(err), "got %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, ledger.calls())
}
