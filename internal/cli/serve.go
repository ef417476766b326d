package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/orchard/internal/archive"
	"github.com/roach88/orchard/internal/engine"
	"github.com/roach88/orchard/internal/httpapi"
	"github.com/roach88/orchard/internal/telemetry"
)

const (
	serviceName     = "orchard"
	shutdownTimeout = 10 * time.Second
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	UUIDIDs bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow over HTTP",
		Long: `Start the JSON/HTTP API.

Dispatch messages are archived when ORCHARD_ARCHIVE_DRIVER is set, spans
are exported when ORCHARD_OTEL_ENDPOINT is set, and Prometheus metrics are
served at /metrics.

Example:
  orchard serve --db ./orchard.db --addr :8080
  ORCHARD_ARCHIVE_DRIVER=fs orchard serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $ORCHARD_HTTP_ADDR or :8080)")
	cmd.Flags().BoolVar(&opts.UUIDIDs, "uuid-ids", true, "reject ids that are not UUIDs")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parentCtx := commandContext(cmd)
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("error flushing spans", "error", err)
		}
	}()

	arch, err := archive.Open(ctx, cfg.ArchiveOptions())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithExpenseRecorder(engine.ExpenseRecorderFunc(func(ctx context.Context, rec engine.ExpenseRecord) error {
			return logExpenses(ctx, logger, rec)
		})),
	}
	if arch != nil {
		engineOpts = append(engineOpts, engine.WithArchive(arch))
		logger.Info("dispatch archive enabled", "driver", arch.Driver())
	}

	env, err := opts.open(cmd, engineOpts...)
	if err != nil {
		return err
	}
	defer closeEnv(env)

	serverOpts := []httpapi.Option{
		httpapi.WithDirectory(env.directory),
		httpapi.WithMetrics(metrics, reg),
		httpapi.WithLogger(logger),
	}
	if opts.UUIDIDs {
		serverOpts = append(serverOpts, httpapi.WithUUIDIDs())
	}

	addr := opts.Addr
	if addr == "" {
		addr = cfg.HTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(env.engine, serverOpts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "http server error", err)
		}
		return nil
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "http shutdown", err)
	}
	logger.Info("http server stopped")
	return nil
}

// logExpenses is the expense recorder used by the CLI: it writes each
// applied item to the structured log.
func logExpenses(ctx context.Context, logger *slog.Logger, rec engine.ExpenseRecord) error {
	if logger == nil {
		return fmt.Errorf("no expense log configured")
	}
	for i, item := range rec.Items {
		logger.InfoContext(ctx, "expense",
			"prescription_id", rec.PrescriptionID,
			"line", i+1,
			"category", item.Category,
			"product", item.ProductName,
			"cost", item.EstimatedCost,
		)
	}
	logger.InfoContext(ctx, "expenses recorded",
		"prescription_id", rec.PrescriptionID,
		"doctor", rec.DoctorName,
		"issued_on", rec.IssuedOn.String(),
		"items", len(rec.Items),
		"total", rec.Total(),
	)
	return nil
}
