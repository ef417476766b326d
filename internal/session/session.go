// Package session keeps a read-side projection of one orchard in step with
// the workflow engine.
//
// A Session serialises the commands it forwards, reloads the orchard after
// each successful one and derives the views callers render: the flattened
// prescription list, the pending count and per-doctor queues. Reload
// failures never clear the last good projection.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/engine"
)

// Workflow is the command surface a Session drives. *engine.Engine
// implements it.
type Workflow interface {
	Request(ctx context.Context, in engine.RequestInput) (domain.Consultation, error)
	Accept(ctx context.Context, consultationID, doctorID string) (domain.Consultation, error)
	Issue(ctx context.Context, in engine.IssueInput) (engine.IssueResult, error)
	Execute(ctx context.Context, prescriptionID string) (engine.ExecuteResult, error)
	FlagCorrection(ctx context.Context, prescriptionID string) (domain.Prescription, error)
	Consultations(ctx context.Context, orchardID string) ([]domain.Consultation, error)
}

// ReloadError reports a failed projection reload. When returned from a
// command, the command's write has already been committed.
type ReloadError struct {
	// Op is the command that preceded the reload, or "reload".
	Op  string
	Err error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload after %s: %v", e.Op, e.Err)
}

func (e *ReloadError) Unwrap() error { return e.Err }

// Session is the projection of a single orchard.
//
// Thread-safety: commands and reloads are single-flight (cmdMu), so a
// reload that read the store before a command cannot publish after it.
// Queries may run concurrently with both and observe the last completed
// reload.
type Session struct {
	orchardID string
	wf        Workflow
	metrics   *engine.Metrics
	logger    *slog.Logger

	cmdMu sync.Mutex
	busy  atomic.Bool

	mu            sync.RWMutex
	consultations []domain.Consultation
	loadedAt      time.Time
	err           error
	reloadErr     error
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics publishes the pending count after each reload.
func WithMetrics(m *engine.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates an empty Session for orchardID. Call Reload to populate it.
func New(orchardID string, wf Workflow, opts ...Option) *Session {
	s := &Session{
		orchardID: orchardID,
		wf:        wf,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrchardID returns the orchard this session projects.
func (s *Session) OrchardID() string { return s.orchardID }

// Reload fetches the orchard's consultations and recomputes derived views.
// On failure the previous projection is kept and the error is stored in
// the reload slot.
func (s *Session) Reload(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.reload(ctx, "reload")
}

// reload requires cmdMu.
func (s *Session) reload(ctx context.Context, op string) error {
	cs, err := s.wf.Consultations(ctx, s.orchardID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		rerr := &ReloadError{Op: op, Err: err}
		s.reloadErr = rerr
		s.logger.WarnContext(ctx, "orchard reload failed",
			"orchard_id", s.orchardID,
			"after", op,
			"error", err,
		)
		return rerr
	}
	s.consultations = cs
	s.loadedAt = time.Now().UTC()
	s.reloadErr = nil
	s.metrics.SetPending(s.orchardID, PendingRxCount(cs))
	return nil
}

// run executes one command single-flight, records its error and reloads on
// success. Commands are scoped to the session's orchard, so ids from other
// orchards fail with NOT_FOUND.
func run[T any](ctx context.Context, s *Session, op string, cmd func(context.Context) (T, error)) (T, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.busy.Store(true)
	defer s.busy.Store(false)

	out, err := cmd(engine.ScopeOrchard(ctx, s.orchardID))

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	if err != nil {
		var zero T
		return zero, err
	}
	if rerr := s.reload(ctx, op); rerr != nil {
		return out, rerr
	}
	return out, nil
}

// RequestConsultation creates a consultation in this orchard.
func (s *Session) RequestConsultation(ctx context.Context, in engine.RequestInput) (domain.Consultation, error) {
	in.OrchardID = s.orchardID
	return run(ctx, s, "request", func(ctx context.Context) (domain.Consultation, error) {
		return s.wf.Request(ctx, in)
	})
}

// AcceptRequest moves a consultation to IN_PROGRESS under doctorID.
func (s *Session) AcceptRequest(ctx context.Context, consultationID, doctorID string) (domain.Consultation, error) {
	return run(ctx, s, "accept", func(ctx context.Context) (domain.Consultation, error) {
		return s.wf.Accept(ctx, consultationID, doctorID)
	})
}

// IssuePrescription issues the prescription that completes a consultation.
func (s *Session) IssuePrescription(ctx context.Context, in engine.IssueInput) (engine.IssueResult, error) {
	return run(ctx, s, "issue", func(ctx context.Context) (engine.IssueResult, error) {
		return s.wf.Issue(ctx, in)
	})
}

// ExecutePrescription marks a prescription applied.
func (s *Session) ExecutePrescription(ctx context.Context, prescriptionID string) (engine.ExecuteResult, error) {
	return run(ctx, s, "execute", func(ctx context.Context) (engine.ExecuteResult, error) {
		return s.wf.Execute(ctx, prescriptionID)
	})
}

// FlagCorrection marks a prescription as needing correction.
func (s *Session) FlagCorrection(ctx context.Context, prescriptionID string) (domain.Prescription, error) {
	return run(ctx, s, "flag", func(ctx context.Context) (domain.Prescription, error) {
		return s.wf.FlagCorrection(ctx, prescriptionID)
	})
}

// Consultations returns the last loaded consultations, newest first.
func (s *Session) Consultations() []domain.Consultation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Consultation, len(s.consultations))
	copy(out, s.consultations)
	return out
}

// AllPrescriptions returns every prescription in the projection.
func (s *Session) AllPrescriptions() []domain.Prescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AllPrescriptions(s.consultations)
}

// PendingRxCount returns the number of PENDING prescriptions.
func (s *Session) PendingRxCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PendingRxCount(s.consultations)
}

// DoctorQueue returns the consultations assigned to doctorID.
func (s *Session) DoctorQueue(doctorID string) []domain.Consultation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DoctorQueue(s.consultations, doctorID)
}

// Err returns the last command's error, or nil if it succeeded.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// ReloadErr returns the last reload failure, or nil after a good reload.
func (s *Session) ReloadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloadErr
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

// View is a point-in-time copy of the projection.
type View struct {
	OrchardID     string                            `json:"orchard_id"`
	Consultations []domain.Consultation             `json:"consultations"`
	Prescriptions []domain.Prescription             `json:"prescriptions"`
	PendingRx     int                               `json:"pending_rx"`
	ByStatus      map[domain.ConsultationStatus]int `json:"by_status"`
	LoadedAt      time.Time                         `json:"loaded_at"`
}

// Snapshot returns the current projection as a View.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := make([]domain.Consultation, len(s.consultations))
	copy(cs, s.consultations)
	return View{
		OrchardID:     s.orchardID,
		Consultations: cs,
		Prescriptions: AllPrescriptions(cs),
		PendingRx:     PendingRxCount(cs),
		ByStatus:      StatusCounts(cs),
		LoadedAt:      s.loadedAt,
	}
}
