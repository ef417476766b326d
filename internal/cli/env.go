package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orchard/internal/config"
	"github.com/roach88/orchard/internal/engine"
	"github.com/roach88/orchard/internal/roster"
	"github.com/roach88/orchard/internal/store"
)

// cmdEnv is the opened store and engine a command works against.
type cmdEnv struct {
	cfg       config.Config
	store     *store.Store
	engine    *engine.Engine
	directory roster.Directory
	logger    *slog.Logger
}

func (r *cmdEnv) Close() error {
	return r.store.Close()
}

// loadConfig reads the environment and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return config.Config{}, err
	}
	if o.Driver != "" {
		cfg.DBDriver = o.Driver
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.DSN != "" {
		cfg.DBDSN = o.DSN
	}
	if o.Roster != "" {
		cfg.Roster = o.Roster
	}
	if o.Strict {
		cfg.StrictIssue = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger writes text logs to w. Verbose lowers the level to debug;
// otherwise only warnings and errors are shown so command output stays
// readable.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	switch strings.ToLower(cfg.DBDriver) {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DBDSN)
	default:
		return store.Open(cfg.DBPath)
	}
}

func loadRoster(cfg config.Config) (roster.Directory, error) {
	if cfg.Roster == "" {
		return roster.Default()
	}
	return roster.LoadFile(cfg.Roster)
}

// open builds the environment for a command. Extra engine options are applied
// after the defaults.
func (o *RootOptions) open(cmd *cobra.Command, extra ...engine.EngineOption) (*cmdEnv, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := o.newLogger(cmd.ErrOrStderr())

	dir, err := loadRoster(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load roster", err)
	}

	st, err := openStore(commandContext(cmd), cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("database ready", "driver", cfg.DBDriver, "path", cfg.DBPath)

	opts := []engine.EngineOption{
		engine.WithDirectory(dir),
		engine.WithLogger(logger),
	}
	if cfg.StrictIssue {
		opts = append(opts, engine.WithStrictIssue())
	}
	opts = append(opts, extra...)

	return &cmdEnv{
		cfg:       cfg,
		store:     st,
		engine:    engine.New(st, opts...),
		directory: dir,
		logger:    logger,
	}, nil
}

// commandContext returns the command's context, or Background when the
// command was run without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// closeEnv closes e, logging failures.
func closeEnv(e *cmdEnv) {
	if err := e.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// reportCommandError prints an engine failure and converts it to an exit
// error. Validation, not-found and transition failures exit 1; store
// failures exit 2.
func reportCommandError(f *OutputFormatter, err error) error {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		return WrapExitError(ExitCommandError, "command failed", err)
	}
	var details any
	if ee.EntityID != "" {
		details = map[string]string{"entity_id": ee.EntityID}
	}
	if outErr := f.Error(string(ee.Code), ee.Message, details); outErr != nil {
		return outErr
	}
	code := ExitFailure
	if ee.Code == engine.ErrCodeStoreFailure {
		code = ExitCommandError
	}
	return &ExitError{Code: code, Message: fmt.Sprintf("%s failed", ee.Op), Err: err, Reported: true}
}
