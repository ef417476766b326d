package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/orchard/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter    string // base-name glob
	GoldenDir string // trace snapshots; empty skips comparison
	Update    bool   // rewrite snapshots instead of comparing
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run workflow scenarios",
		Long: `Run YAML workflow scenarios against an in-memory engine.

Each scenario drives request, accept, issue, execute and flag commands
and checks the resulting trace and orchard state. With --golden, each
trace is also compared against <golden>/<scenario>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  orchard test ./scenarios
  orchard test ./scenarios --filter "double_*"
  orchard test ./scenarios --golden ./golden --update
  orchard test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenario files by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of trace snapshots")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate trace snapshots")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	paths, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	suite := harness.RunSuite(commandContext(cmd), paths)
	if opts.GoldenDir != "" {
		if err := checkGolden(opts, suite); err != nil {
			return WrapExitError(ExitCommandError, "golden files", err)
		}
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(suite); err != nil {
			return err
		}
	} else {
		outputTestText(w, suite)
	}

	if suite.Failed > 0 {
		return &ExitError{
			Code:     ExitFailure,
			Message:  fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.Total),
			Reported: true,
		}
	}
	return nil
}

// checkGolden compares or rewrites the snapshot of every scenario that ran.
// A mismatch fails the scenario.
func checkGolden(opts *TestOptions, suite *harness.SuiteResult) error {
	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return err
		}
	}

	for i := range suite.Scenarios {
		sr := &suite.Scenarios[i]
		result := sr.Result()
		if result == nil {
			continue
		}
		got, err := harness.MarshalSnapshot(sr.Name, result)
		if err != nil {
			return err
		}
		path := filepath.Join(opts.GoldenDir, sr.Name+".golden")

		if opts.Update {
			if err := os.WriteFile(path, got, 0o644); err != nil {
				return err
			}
			continue
		}

		want, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			continue
		case err != nil:
			return err
		}
		if !bytes.Equal(want, got) {
			if sr.Pass {
				sr.Pass = false
				suite.Passed--
				suite.Failed++
			}
			sr.Errors = append(sr.Errors, fmt.Sprintf("trace differs from %s (rerun with --update)", path))
		}
	}
	return nil
}

func outputTestText(w io.Writer, suite *harness.SuiteResult) {
	if suite.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range suite.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
}
