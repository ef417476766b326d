package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/orchard/internal/archive"
	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/notify"
	"github.com/roach88/orchard/internal/roster"
)

// RequestInput is a grower's consultation request.
type RequestInput struct {
	OrchardID   string             `json:"orchard_id" yaml:"orchard_id"`
	GrowerName  string             `json:"grower_name" yaml:"grower_name"`
	GrowerPhone string             `json:"grower_phone" yaml:"grower_phone"`
	DoctorID    string             `json:"doctor_id" yaml:"doctor_id"`
	Type        domain.ConsultType `json:"type" yaml:"type"`
	TargetAt    *time.Time         `json:"target_at,omitempty" yaml:"target_at,omitempty"`
	Notes       string             `json:"notes" yaml:"notes"`
}

// IssueInput is a doctor's prescription for an in-progress consultation.
// DoctorName and HospitalName default to the roster entry of the
// consultation's doctor when a directory is configured.
type IssueInput struct {
	ConsultationID string                   `json:"consultation_id" yaml:"consultation_id"`
	DoctorName     string                   `json:"doctor_name" yaml:"doctor_name"`
	HospitalName   string                   `json:"hospital_name" yaml:"hospital_name"`
	IssueDiagnosed string                   `json:"issue_diagnosed" yaml:"issue_diagnosed"`
	EPPOCode       string                   `json:"eppo_code" yaml:"eppo_code"`
	Recommendation string                   `json:"recommendation" yaml:"recommendation"`
	FollowUpOn     domain.Date              `json:"follow_up_on" yaml:"follow_up_on"`
	ActionItems    []domain.ActionItemInput `json:"action_items" yaml:"action_items"`
}

// IssueResult is the outcome of a successful Issue.
type IssueResult struct {
	Prescription domain.Prescription `json:"prescription"`
	Consultation domain.Consultation `json:"consultation"`
	// Dispatch is the grower-facing message for the prescription.
	Dispatch string `json:"dispatch"`
	// ArchiveKey is set when the dispatch was archived.
	ArchiveKey string `json:"archive_key,omitempty"`
	// ArchiveErr reports a failed archive write. The prescription is
	// committed regardless.
	ArchiveErr error `json:"-"`
}

// ExecuteResult is the outcome of a successful Execute.
type ExecuteResult struct {
	Prescription domain.Prescription `json:"prescription"`
	// ExpenseErr reports a failed expense callback. The status change is
	// committed regardless.
	ExpenseErr error `json:"-"`
}

// Request creates a consultation in REQUESTED for the chosen doctor.
func (e *Engine) Request(ctx context.Context, in RequestInput) (c domain.Consultation, err error) {
	const op = "request"
	ctx, done := e.instrument(ctx, op,
		attribute.String("orchard.id", in.OrchardID),
		attribute.String("doctor.id", in.DoctorID),
	)
	defer func() { done(err) }()

	nc, err := domain.NormalizeNewConsultation(domain.NewConsultation{
		OrchardID:   in.OrchardID,
		GrowerName:  in.GrowerName,
		GrowerPhone: in.GrowerPhone,
		DoctorID:    in.DoctorID,
		Type:        in.Type,
		TargetAt:    in.TargetAt,
		Notes:       in.Notes,
	})
	if err != nil {
		return domain.Consultation{}, validationError(op, "", err)
	}
	if e.directory != nil {
		if _, err := roster.Available(e.directory, nc.DoctorID); err != nil {
			return domain.Consultation{}, validationError(op, nc.DoctorID, err)
		}
	}

	nc.ID = e.ids.Generate()
	nc.CreatedAt = e.clock.Now()

	c, err = e.store.InsertConsultation(ctx, nc)
	if err != nil {
		return domain.Consultation{}, classify(op, nc.ID, err)
	}
	e.logger.InfoContext(ctx, "consultation requested",
		"consultation_id", c.ID,
		"orchard_id", c.OrchardID,
		"doctor_id", c.DoctorID,
		"type", c.Type,
	)
	return c, nil
}

// Accept moves a consultation to IN_PROGRESS and stamps doctorID on it.
//
// Accepting an IN_PROGRESS consultation again overwrites the doctor and
// leaves the status unchanged. Accepting a COMPLETED consultation fails
// with INVALID_TRANSITION.
func (e *Engine) Accept(ctx context.Context, consultationID, doctorID string) (c domain.Consultation, err error) {
	const op = "accept"
	ctx, done := e.instrument(ctx, op,
		attribute.String("consultation.id", consultationID),
		attribute.String("doctor.id", doctorID),
	)
	defer func() { done(err) }()

	consultationID = strings.TrimSpace(consultationID)
	doctorID = strings.TrimSpace(doctorID)
	if consultationID == "" {
		return domain.Consultation{}, validationError(op, "", domain.ErrEmptyConsultationID)
	}
	if doctorID == "" {
		return domain.Consultation{}, validationError(op, consultationID, domain.ErrEmptyDoctorID)
	}
	if e.directory != nil {
		if _, err := roster.Known(e.directory, doctorID); err != nil {
			return domain.Consultation{}, validationError(op, consultationID, err)
		}
	}

	err = e.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := e.store.GetConsultation(ctx, consultationID)
		if err != nil {
			return err
		}
		if err := checkScope(ctx, op, consultationID, current); err != nil {
			return err
		}
		if !current.Status.CanAccept() {
			return transitionError(op, consultationID,
				fmt.Sprintf("cannot accept consultation in status %s", current.Status))
		}
		if err := e.store.UpdateConsultationStatus(ctx, domain.ConsultationUpdate{
			ID:       consultationID,
			Status:   domain.ConsultationInProgress,
			DoctorID: doctorID,
			From:     domain.AcceptableFrom,
		}); err != nil {
			return err
		}
		c, err = e.store.GetConsultation(ctx, consultationID)
		return err
	})
	if err != nil {
		return domain.Consultation{}, classify(op, consultationID, err)
	}
	e.logger.InfoContext(ctx, "consultation accepted",
		"consultation_id", c.ID,
		"doctor_id", c.DoctorID,
	)
	return c, nil
}

// Issue creates the prescription for an IN_PROGRESS consultation, writes
// its action items and completes the consultation, all in one transaction.
//
// Exactly one Issue succeeds per consultation. A caller that loses a race
// receives INVALID_TRANSITION, whether it lost at the status check, at the
// compare-and-set or at the store's unique index.
func (e *Engine) Issue(ctx context.Context, in IssueInput) (res IssueResult, err error) {
	const op = "issue"
	ctx, done := e.instrument(ctx, op,
		attribute.String("consultation.id", in.ConsultationID),
		attribute.Int("action_items", len(in.ActionItems)),
	)
	defer func() { done(err) }()

	np, err := domain.NormalizeNewPrescription(domain.NewPrescription{
		ConsultationID: in.ConsultationID,
		DoctorName:     in.DoctorName,
		HospitalName:   in.HospitalName,
		IssueDiagnosed: in.IssueDiagnosed,
		EPPOCode:       in.EPPOCode,
		Recommendation: in.Recommendation,
		FollowUpOn:     in.FollowUpOn,
	}, e.strict)
	if err != nil {
		return IssueResult{}, validationError(op, in.ConsultationID, err)
	}
	items, err := domain.NormalizeActionItems(in.ActionItems, e.strict)
	if err != nil {
		return IssueResult{}, validationError(op, np.ConsultationID, err)
	}

	np.ID = e.ids.Generate()
	now := e.clock.Now()
	np.IssuedOn = domain.NewDate(now)
	np.CreatedAt = now

	err = e.store.RunInTx(ctx, func(ctx context.Context) error {
		c, err := e.store.GetConsultation(ctx, np.ConsultationID)
		if err != nil {
			return err
		}
		if err := checkScope(ctx, op, c.ID, c); err != nil {
			return err
		}
		if c.Prescription != nil {
			return transitionError(op, c.ID, "consultation already has a prescription")
		}
		if !c.Status.CanTransition(domain.ConsultationCompleted) {
			return transitionError(op, c.ID,
				fmt.Sprintf("cannot issue prescription for consultation in status %s", c.Status))
		}
		e.fillIssuer(&np, c.DoctorID)

		if _, err := e.store.InsertPrescription(ctx, np); err != nil {
			return err
		}
		if err := e.store.InsertActionItems(ctx, np.ID, items); err != nil {
			return err
		}
		if err := e.store.UpdateConsultationStatus(ctx, domain.ConsultationUpdate{
			ID:     c.ID,
			Status: domain.ConsultationCompleted,
			From:   []domain.ConsultationStatus{domain.ConsultationInProgress},
		}); err != nil {
			return err
		}

		if res.Prescription, err = e.store.GetPrescriptionWithItems(ctx, np.ID); err != nil {
			return err
		}
		res.Consultation, err = e.store.GetConsultation(ctx, c.ID)
		return err
	})
	if err != nil {
		return IssueResult{}, classify(op, np.ConsultationID, err)
	}

	res.Dispatch = notify.FormatDispatchMessage(res.Prescription, res.Consultation.GrowerName, res.Consultation.GrowerPhone)
	if e.archive != nil {
		res.ArchiveKey, res.ArchiveErr = e.archiveDispatch(ctx, res)
	}

	e.logger.InfoContext(ctx, "prescription issued",
		"prescription_id", res.Prescription.ID,
		"consultation_id", res.Consultation.ID,
		"action_items", len(res.Prescription.ActionItems),
		"total_cost", res.Prescription.TotalCost(),
	)
	return res, nil
}

// Execute marks a PENDING prescription APPLIED and then hands its action
// items to the expense recorder exactly once.
func (e *Engine) Execute(ctx context.Context, prescriptionID string) (res ExecuteResult, err error) {
	const op = "execute"
	ctx, done := e.instrument(ctx, op, attribute.String("prescription.id", prescriptionID))
	defer func() { done(err) }()

	p, err := e.transitionPrescription(ctx, op, prescriptionID, domain.PrescriptionApplied)
	if err != nil {
		return ExecuteResult{}, err
	}
	res.Prescription = p

	if e.expenses != nil {
		if rerr := e.expenses.RecordExpenses(ctx, expenseRecordFor(p)); rerr != nil {
			res.ExpenseErr = rerr
			e.metrics.expenseFailed()
			e.logger.ErrorContext(ctx, "expense recording failed",
				"prescription_id", p.ID,
				"error", rerr,
			)
		}
	}

	e.logger.InfoContext(ctx, "prescription applied",
		"prescription_id", p.ID,
		"total_cost", p.TotalCost(),
	)
	return res, nil
}

// FlagCorrection marks a PENDING prescription NEEDS_CORRECTION. The
// prescription can no longer be executed.
func (e *Engine) FlagCorrection(ctx context.Context, prescriptionID string) (p domain.Prescription, err error) {
	const op = "flag"
	ctx, done := e.instrument(ctx, op, attribute.String("prescription.id", prescriptionID))
	defer func() { done(err) }()

	p, err = e.transitionPrescription(ctx, op, prescriptionID, domain.PrescriptionNeedsCorrection)
	if err != nil {
		return domain.Prescription{}, err
	}
	e.logger.InfoContext(ctx, "prescription flagged for correction", "prescription_id", p.ID)
	return p, nil
}

// transitionPrescription applies a guarded status change and re-reads the
// prescription.
func (e *Engine) transitionPrescription(ctx context.Context, op, id string, target domain.PrescriptionStatus) (domain.Prescription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Prescription{}, validationError(op, "", errors.New("prescription id is required"))
	}

	var p domain.Prescription
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := e.store.GetPrescriptionWithItems(ctx, id)
		if err != nil {
			return err
		}
		if _, scoped := OrchardScope(ctx); scoped {
			c, err := e.store.GetConsultation(ctx, current.ConsultationID)
			if err != nil {
				return err
			}
			if err := checkScope(ctx, op, id, c); err != nil {
				return err
			}
		}
		if !current.Status.CanTransition(target) {
			return transitionError(op, id,
				fmt.Sprintf("cannot move prescription from %s to %s", current.Status, target))
		}
		if err := e.store.UpdatePrescriptionStatus(ctx, domain.PrescriptionUpdate{
			ID:     id,
			Status: target,
			From:   domain.PrescriptionSourcesFor(target),
		}); err != nil {
			return err
		}
		p, err = e.store.GetPrescriptionWithItems(ctx, id)
		return err
	})
	if err != nil {
		return domain.Prescription{}, classify(op, id, err)
	}
	return p, nil
}

// fillIssuer defaults the doctor and facility names from the roster.
func (e *Engine) fillIssuer(np *domain.NewPrescription, doctorID string) {
	if e.directory == nil || (np.DoctorName != "" && np.HospitalName != "") {
		return
	}
	d, ok := e.directory.Lookup(doctorID)
	if !ok {
		return
	}
	if np.DoctorName == "" {
		np.DoctorName = d.Name
	}
	if np.HospitalName == "" {
		np.HospitalName = d.Facility
	}
}

func (e *Engine) archiveDispatch(ctx context.Context, res IssueResult) (string, error) {
	key := archive.DispatchKey(res.Consultation.OrchardID, res.Prescription.ID)
	_, err := e.archive.Put(ctx, key, strings.NewReader(res.Dispatch), archive.PutOptions{
		ContentType: "text/plain; charset=utf-8",
		Metadata: map[string]string{
			"consultation": res.Consultation.ID,
			"prescription": res.Prescription.ID,
		},
	})
	if err != nil {
		e.logger.WarnContext(ctx, "dispatch archive failed",
			"prescription_id", res.Prescription.ID,
			"key", key,
			"error", err,
		)
		return "", err
	}
	return key, nil
}
