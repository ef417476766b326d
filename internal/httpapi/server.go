// Package httpapi exposes the workflow over JSON/HTTP.
//
// Routes are scoped by orchard. Each orchard gets a session.Session that is
// created on first use and reloaded before every read, so responses reflect
// writes made by other processes sharing the store. Sessions live in a
// bounded LRU cache; an evicted orchard is reloaded from the store on its
// next request.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/orchard/internal/engine"
	"github.com/roach88/orchard/internal/roster"
	"github.com/roach88/orchard/internal/session"
)

// DefaultMaxSessions caps the orchards a Server keeps sessions for.
const DefaultMaxSessions = 256

// Server routes HTTP requests to per-orchard sessions.
type Server struct {
	wf          session.Workflow
	directory   roster.Directory
	metrics     *engine.Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	uuidIDs     bool
	maxSessions int

	mu       sync.Mutex
	sessions *lru.Cache[string, *session.Session]
}

// Option configures a Server.
type Option func(*Server)

// WithDirectory serves the doctor roster at /api/doctors.
func WithDirectory(dir roster.Directory) Option {
	return func(s *Server) { s.directory = dir }
}

// WithMetrics serves gatherer at /metrics and publishes session gauges to m.
func WithMetrics(m *engine.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithUUIDIDs rejects consultation and prescription ids that are not UUIDs
// with 400 before they reach the engine.
func WithUUIDIDs() Option {
	return func(s *Server) { s.uuidIDs = true }
}

// WithMaxSessions caps the number of cached orchard sessions. The least
// recently used session is dropped when the cap is reached. n <= 0 keeps
// DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(s *Server) { s.maxSessions = n }
}

// New creates a Server over wf.
func New(wf session.Workflow, opts ...Option) *Server {
	s := &Server{
		wf:     wf,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxSessions <= 0 {
		s.maxSessions = DefaultMaxSessions
	}
	// NewWithEvict only fails for a non-positive size.
	s.sessions, _ = lru.NewWithEvict(s.maxSessions, s.evicted)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/doctors", s.listDoctors)
		r.Route("/orchards/{orchardID}", func(r chi.Router) {
			r.Get("/", s.getOrchard)
			r.Get("/consultations", s.listConsultations)
			r.Post("/consultations", s.requestConsultation)
			r.Post("/consultations/{consultationID}/accept", s.acceptRequest)
			r.Get("/prescriptions", s.listPrescriptions)
			r.Post("/prescriptions", s.issuePrescription)
			r.Post("/prescriptions/{prescriptionID}/execute", s.executePrescription)
			r.Post("/prescriptions/{prescriptionID}/flag", s.flagCorrection)
			r.Get("/pending", s.pendingCount)
			r.Get("/doctors/{doctorID}/queue", s.doctorQueue)
		})
	})
	return r
}

// session returns the orchard's session, creating and loading it on first
// use. A failed first load still returns the session; the failure is in
// its reload slot.
func (s *Server) session(ctx context.Context, orchardID string) *session.Session {
	s.mu.Lock()
	sess, ok := s.sessions.Get(orchardID)
	if !ok {
		sess = session.New(orchardID, s.wf, session.WithMetrics(s.metrics), session.WithLogger(s.logger))
		s.sessions.Add(orchardID, sess)
	}
	s.mu.Unlock()

	if !ok {
		_ = sess.Reload(ctx)
	}
	return sess
}

func (s *Server) evicted(orchardID string, _ *session.Session) {
	s.metrics.ForgetPending(orchardID)
	s.logger.Debug("orchard session evicted", "orchard_id", orchardID)
}
