package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/notify"
	"github.com/roach88/orchard/internal/session"
)

// OrchardOptions holds flags for commands scoped to one orchard.
type OrchardOptions struct {
	*RootOptions
	Orchard string
}

func addOrchardFlag(cmd *cobra.Command, opts *OrchardOptions) {
	cmd.Flags().StringVar(&opts.Orchard, "orchard", "", "orchard id (required)")
	_ = cmd.MarkFlagRequired("orchard")
}

// loadSession opens the store and loads the orchard's projection.
func (o *OrchardOptions) loadSession(cmd *cobra.Command) (*cmdEnv, *session.Session, error) {
	env, err := o.open(cmd)
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(o.Orchard, env.engine, session.WithLogger(env.logger))
	if err := sess.Reload(commandContext(cmd)); err != nil {
		closeEnv(env)
		return nil, nil, WrapExitError(ExitCommandError, "failed to load orchard", err)
	}
	return env, sess, nil
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	OrchardOptions
	Prescriptions bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{OrchardOptions: OrchardOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an orchard's consultations or prescriptions",
		Long: `List the consultations of an orchard, newest first. With
--prescriptions, list the prescriptions issued for them instead.

Example:
  orchard list --orchard orch-1
  orchard list --orchard orch-1 --prescriptions --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	addOrchardFlag(cmd, &opts.OrchardOptions)
	cmd.Flags().BoolVar(&opts.Prescriptions, "prescriptions", false, "list prescriptions instead of consultations")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	env, sess, err := opts.loadSession(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(env)

	f := formatter(opts.RootOptions, cmd)
	if opts.Prescriptions {
		ps := sess.AllPrescriptions()
		return f.Success(ps, func(w io.Writer) { renderPrescriptionTable(w, ps) })
	}
	cs := sess.Consultations()
	return f.Success(cs, func(w io.Writer) { renderConsultationTable(w, cs) })
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrchardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Count prescriptions awaiting execution",
		Long: `Print the number of PENDING prescriptions in an orchard.

Example:
  orchard pending --orchard orch-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, sess, err := opts.loadSession(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(env)

			n := sess.PendingRxCount()
			data := map[string]any{"orchard_id": opts.Orchard, "pending_rx": n}
			return formatter(opts.RootOptions, cmd).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "%d pending prescription(s) in %s\n", n, opts.Orchard)
			})
		},
	}

	addOrchardFlag(cmd, opts)
	return cmd
}

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	OrchardOptions
	Doctor string
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{OrchardOptions: OrchardOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List the consultations assigned to a doctor",
		Long: `List an orchard's consultations assigned to one doctor.

Example:
  orchard queue --orchard orch-1 --doctor DR001`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, sess, err := opts.loadSession(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(env)

			q := sess.DoctorQueue(opts.Doctor)
			return formatter(opts.RootOptions, cmd).Success(q, func(w io.Writer) { renderConsultationTable(w, q) })
		},
	}

	addOrchardFlag(cmd, &opts.OrchardOptions)
	cmd.Flags().StringVar(&opts.Doctor, "doctor", "", "doctor id (required)")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrchardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <prescription-id>",
		Short: "Print the grower-facing message for a prescription",
		Long: `Render the dispatch message sent to the grower for a prescription.

Example:
  orchard dispatch --orchard orch-1 0192b0c4-5d1e-7f00-8000-000000000002`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, sess, err := opts.loadSession(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(env)

			c, ok := consultationFor(sess.Consultations(), args[0])
			if !ok {
				f := formatter(opts.RootOptions, cmd)
				if err := f.Error("NOT_FOUND", "no prescription "+args[0]+" in "+opts.Orchard, nil); err != nil {
					return err
				}
				return &ExitError{Code: ExitFailure, Message: "prescription not found", Reported: true}
			}
			msg := notify.FormatDispatchMessage(*c.Prescription, c.GrowerName, c.GrowerPhone)
			data := map[string]string{"prescription_id": c.Prescription.ID, "message": msg}
			return formatter(opts.RootOptions, cmd).Success(data, func(w io.Writer) { fmt.Fprintln(w, msg) })
		},
	}

	addOrchardFlag(cmd, opts)
	return cmd
}

// consultationFor finds the consultation holding prescriptionID.
func consultationFor(cs []domain.Consultation, prescriptionID string) (domain.Consultation, bool) {
	for _, c := range cs {
		if c.Prescription != nil && c.Prescription.ID == prescriptionID {
			return c, true
		}
	}
	return domain.Consultation{}, false
}

// NewDoctorsCommand creates the doctors command.
func NewDoctorsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctors",
		Short: "List the doctor roster",
		Long: `List the doctors consultations can be requested with.

Example:
  orchard doctors
  orchard doctors --roster ./roster.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			dir, err := loadRoster(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load roster", err)
			}
			doctors := dir.List()
			return formatter(rootOpts, cmd).Success(doctors, func(w io.Writer) { renderDoctors(w, doctors) })
		},
	}
}
