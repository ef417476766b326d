package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/orchard/internal/archive"
	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/roster"
)

// RecordStore is the persistence contract the engine drives. store.Store
// implements it for SQLite and Postgres.
//
// Methods called with the context handed to RunInTx's callback join that
// transaction.
type RecordStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	ListConsultations(ctx context.Context, orchardID string) ([]domain.Consultation, error)
	GetConsultation(ctx context.Context, id string) (domain.Consultation, error)
	InsertConsultation(ctx context.Context, in domain.NewConsultation) (domain.Consultation, error)
	UpdateConsultationStatus(ctx context.Context, upd domain.ConsultationUpdate) error

	InsertPrescription(ctx context.Context, in domain.NewPrescription) (domain.Prescription, error)
	InsertActionItems(ctx context.Context, prescriptionID string, items []domain.ActionItemInput) error
	UpdatePrescriptionStatus(ctx context.Context, upd domain.PrescriptionUpdate) error
	GetPrescriptionWithItems(ctx context.Context, id string) (domain.Prescription, error)
}

// Engine validates workflow commands against persisted state and applies
// them through a RecordStore.
//
// Thread-safety: Engine holds no mutable state of its own and is safe for
// concurrent use. Exactly-once issuance is enforced by the store transaction,
// the status compare-and-set and the UNIQUE index, not by engine locking.
type Engine struct {
	store     RecordStore
	directory roster.Directory
	clock     Clock
	ids       IDGenerator
	expenses  ExpenseRecorder
	archive   archive.Store
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	strict    bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDirectory checks doctor ids against dir. Without a directory any
// non-empty doctor id is accepted.
func WithDirectory(dir roster.Directory) EngineOption {
	return func(e *Engine) { e.directory = dir }
}

// WithClock replaces the wall clock used for creation times and issue dates.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator replaces the UUIDv7 id source.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithExpenseRecorder registers the callback invoked after each successful
// Execute.
func WithExpenseRecorder(r ExpenseRecorder) EngineOption {
	return func(e *Engine) { e.expenses = r }
}

// WithArchive stores every issued dispatch slip in a.
func WithArchive(a archive.Store) EngineOption {
	return func(e *Engine) { e.archive = a }
}

// WithMetrics records command outcomes to m.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithStrictIssue rejects prescriptions without action items, diagnosis,
// recommendation or follow-up date.
func WithStrictIssue() EngineOption {
	return func(e *Engine) { e.strict = true }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets the span source. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

const tracerName = "github.com/roach88/orchard/internal/engine"

// New creates an Engine backed by s.
func New(s RecordStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  s,
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strict reports whether strict issuance is enabled.
func (e *Engine) Strict() bool { return e.strict }

// Directory returns the injected roster, or nil.
func (e *Engine) Directory() roster.Directory { return e.directory }

// Consultations lists an orchard's consultations, newest first, with nested
// prescriptions and ordered action items.
func (e *Engine) Consultations(ctx context.Context, orchardID string) ([]domain.Consultation, error) {
	ctx, done := e.instrument(ctx, "list", attribute.String("orchard.id", orchardID))
	out, err := e.store.ListConsultations(ctx, orchardID)
	err = classify("list", orchardID, err)
	done(err)
	return out, err
}

// instrument opens a span for op and returns a completion func that records
// the outcome on the span and in metrics.
func (e *Engine) instrument(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(CodeOf(err)))
		}
		span.End()
		e.metrics.observe(op, time.Since(start), err)
	}
}
