package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/engine"
)

// RequestOptions holds flags for the request command.
type RequestOptions struct {
	*RootOptions
	Orchard  string
	Grower   string
	Phone    string
	Doctor   string
	Type     string
	TargetAt string
	Notes    string
}

// NewRequestCommand creates the request command.
func NewRequestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a consultation with a doctor",
		Long: `Create a consultation in REQUESTED for an available doctor.

Example:
  orchard request --orchard orch-1 --grower "Asha Rao" --doctor DR001 --type VIDEO
  orchard request --orchard orch-1 --grower "Asha Rao" --doctor DR002 --type ONSITE_VISIT --at 2026-10-20T09:30:00+05:30`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Orchard, "orchard", "", "orchard id (required)")
	cmd.Flags().StringVar(&opts.Grower, "grower", "", "grower name (required)")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "grower phone number")
	cmd.Flags().StringVar(&opts.Doctor, "doctor", "", "doctor id (required)")
	cmd.Flags().StringVar(&opts.Type, "type", string(domain.ConsultVideo), "CHAT, CALL, VIDEO or ONSITE_VISIT")
	cmd.Flags().StringVar(&opts.TargetAt, "at", "", "preferred time (RFC 3339)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-text notes for the doctor")
	_ = cmd.MarkFlagRequired("orchard")
	_ = cmd.MarkFlagRequired("grower")
	_ = cmd.MarkFlagRequired("doctor")

	return cmd
}

func runRequest(opts *RequestOptions, cmd *cobra.Command) error {
	in := engine.RequestInput{
		OrchardID:   opts.Orchard,
		GrowerName:  opts.Grower,
		GrowerPhone: opts.Phone,
		DoctorID:    opts.Doctor,
		Type:        domain.ConsultType(strings.ToUpper(opts.Type)),
		Notes:       opts.Notes,
	}
	if opts.TargetAt != "" {
		at, err := time.Parse(time.RFC3339, opts.TargetAt)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}
		in.TargetAt = &at
	}

	env, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(env)

	f := formatter(opts.RootOptions, cmd)
	c, err := env.engine.Request(commandContext(cmd), in)
	if err != nil {
		return reportCommandError(f, err)
	}
	return f.Success(c, func(w io.Writer) { renderConsultation(w, c) })
}

// AcceptOptions holds flags for the accept command.
type AcceptOptions struct {
	*RootOptions
	Doctor string
}

// NewAcceptCommand creates the accept command.
func NewAcceptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AcceptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "accept <consultation-id>",
		Short: "Accept a consultation on behalf of a doctor",
		Long: `Move a consultation to IN_PROGRESS and assign it to a doctor.

Accepting an in-progress consultation again reassigns it.

Example:
  orchard accept 0192b0c4-5d1e-7f00-8000-000000000001 --doctor DR001`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccept(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Doctor, "doctor", "", "doctor id (required)")
	_ = cmd.MarkFlagRequired("doctor")

	return cmd
}

func runAccept(opts *AcceptOptions, consultationID string, cmd *cobra.Command) error {
	env, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(env)

	f := formatter(opts.RootOptions, cmd)
	c, err := env.engine.Accept(commandContext(cmd), consultationID, opts.Doctor)
	if err != nil {
		return reportCommandError(f, err)
	}
	return f.Success(c, func(w io.Writer) { renderConsultation(w, c) })
}

// IssueOptions holds flags for the issue command.
type IssueOptions struct {
	*RootOptions
	File           string
	Diagnosis      string
	EPPOCode       string
	Recommendation string
	FollowUp       string
	DoctorName     string
	HospitalName   string
	Items          []string
}

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue <consultation-id>",
		Short: "Issue the prescription that completes a consultation",
		Long: `Issue a prescription for an IN_PROGRESS consultation and complete it.

The prescription can be read from a YAML or JSON file and adjusted with
flags. Items given with --item are appended to those in the file, in the
form CATEGORY|product|dosage|cost.

Example:
  orchard issue <id> --file rx.yaml
  orchard issue <id> --diagnosis "Apple scab" --recommendation "Cover spray" \
    --item "FUNGICIDE|Captan 50 WP|300g/100L|450" --follow-up 2026-10-15`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "prescription file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.Diagnosis, "diagnosis", "", "issue diagnosed")
	cmd.Flags().StringVar(&opts.EPPOCode, "eppo", "", "EPPO code of the diagnosed organism")
	cmd.Flags().StringVar(&opts.Recommendation, "recommendation", "", "treatment recommendation")
	cmd.Flags().StringVar(&opts.FollowUp, "follow-up", "", "follow-up date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.DoctorName, "doctor-name", "", "issuing doctor (default: roster name)")
	cmd.Flags().StringVar(&opts.HospitalName, "hospital", "", "issuing facility (default: roster facility)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "action item CATEGORY|product|dosage|cost (repeatable)")

	return cmd
}

func runIssue(opts *IssueOptions, consultationID string, cmd *cobra.Command) error {
	in, err := opts.input(consultationID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid prescription", err)
	}

	env, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(env)

	f := formatter(opts.RootOptions, cmd)
	res, err := env.engine.Issue(commandContext(cmd), in)
	if err != nil {
		return reportCommandError(f, err)
	}
	return f.Success(res, func(w io.Writer) {
		renderPrescription(w, res.Prescription)
		fmt.Fprintln(w)
		fmt.Fprintln(w, res.Dispatch)
	})
}

// input assembles the IssueInput from the file and flags.
func (o *IssueOptions) input(consultationID string) (engine.IssueInput, error) {
	var in engine.IssueInput
	if o.File != "" {
		data, err := os.ReadFile(o.File)
		if err != nil {
			return in, fmt.Errorf("read %s: %w", o.File, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&in); err != nil && err != io.EOF {
			return in, fmt.Errorf("parse %s: %w", o.File, err)
		}
	}
	in.ConsultationID = consultationID

	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&in.IssueDiagnosed, o.Diagnosis)
	setIf(&in.EPPOCode, o.EPPOCode)
	setIf(&in.Recommendation, o.Recommendation)
	setIf(&in.DoctorName, o.DoctorName)
	setIf(&in.HospitalName, o.HospitalName)
	if o.FollowUp != "" {
		d, err := domain.ParseDate(o.FollowUp)
		if err != nil {
			return in, err
		}
		in.FollowUpOn = d
	}

	for _, raw := range o.Items {
		item, err := parseItem(raw)
		if err != nil {
			return in, err
		}
		in.ActionItems = append(in.ActionItems, item)
	}
	return in, nil
}

// parseItem parses CATEGORY|product|dosage|cost. Dosage may be empty.
func parseItem(raw string) (domain.ActionItemInput, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return domain.ActionItemInput{}, fmt.Errorf("item %q: want CATEGORY|product|dosage|cost", raw)
	}
	cost, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return domain.ActionItemInput{}, fmt.Errorf("item %q: cost: %w", raw, err)
	}
	return domain.ActionItemInput{
		Category:      domain.Category(strings.TrimSpace(parts[0])),
		ProductName:   parts[1],
		Dosage:        parts[2],
		EstimatedCost: cost,
	}, nil
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <prescription-id>",
		Short: "Mark a prescription as applied in the orchard",
		Long: `Move a PENDING prescription to APPLIED and record its expenses.

The expense log is written to stderr. A logging failure is reported as a
warning; the prescription stays applied.

Example:
  orchard execute 0192b0c4-5d1e-7f00-8000-000000000002`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(rootOpts, args[0], cmd)
		},
	}
}

func runExecute(opts *RootOptions, prescriptionID string, cmd *cobra.Command) error {
	ledger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	recorder := engine.ExpenseRecorderFunc(func(ctx context.Context, rec engine.ExpenseRecord) error {
		return logExpenses(ctx, ledger, rec)
	})
	env, err := opts.open(cmd, engine.WithExpenseRecorder(recorder))
	if err != nil {
		return err
	}
	defer closeEnv(env)

	f := formatter(opts, cmd)
	res, err := env.engine.Execute(commandContext(cmd), prescriptionID)
	if err != nil {
		return reportCommandError(f, err)
	}
	var warning string
	if res.ExpenseErr != nil {
		warning = "expense recording failed: " + res.ExpenseErr.Error()
	}
	return f.SuccessWithWarning(res, warning, func(w io.Writer) { renderPrescription(w, res.Prescription) })
}

// NewFlagCommand creates the flag command.
func NewFlagCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flag <prescription-id>",
		Short: "Flag a prescription as needing correction",
		Long: `Move a PENDING prescription to NEEDS_CORRECTION. A flagged
prescription can no longer be executed.

Example:
  orchard flag 0192b0c4-5d1e-7f00-8000-000000000002`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlag(rootOpts, args[0], cmd)
		},
	}
}

func runFlag(opts *RootOptions, prescriptionID string, cmd *cobra.Command) error {
	env, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(env)

	f := formatter(opts, cmd)
	p, err := env.engine.FlagCorrection(commandContext(cmd), prescriptionID)
	if err != nil {
		return reportCommandError(f, err)
	}
	return f.Success(p, func(w io.Writer) { renderPrescription(w, p) })
}
