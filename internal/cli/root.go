// Package cli implements the orchard command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
//
// Store and roster flags override the ORCHARD_* environment; empty values
// leave the environment (or its defaults) in effect.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Database string
	Driver   string
	DSN      string
	Roster   string
	Strict   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the orchard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orchard",
		Short: "Orchard consultation and prescription workflow",
		Long: `Track grower consultations with plant doctors, the prescriptions they
issue and the application of those prescriptions in the orchard.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.Database, "db", "", "path to SQLite database (default $ORCHARD_DB_PATH or orchard.db)")
	pf.StringVar(&opts.Driver, "driver", "", "store driver: sqlite or postgres (default $ORCHARD_DB_DRIVER)")
	pf.StringVar(&opts.DSN, "dsn", "", "Postgres connection string (default $ORCHARD_DB_DSN)")
	pf.StringVar(&opts.Roster, "roster", "", "CUE roster file (default: built-in roster)")
	pf.BoolVar(&opts.Strict, "strict", false, "require diagnosis, recommendation, follow-up and items when issuing")

	cmd.AddCommand(NewRequestCommand(opts))
	cmd.AddCommand(NewAcceptCommand(opts))
	cmd.AddCommand(NewIssueCommand(opts))
	cmd.AddCommand(NewExecuteCommand(opts))
	cmd.AddCommand(NewFlagCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewDoctorsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
