package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/engine"
	"github.com/roach88/orchard/internal/session"
	"github.com/roach88/orchard/internal/store"
	"github.com/roach88/orchard/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	session  *session.Session
	clock    *testutil.StepClock
	logger   *slog.Logger
	seq      int64
	expenses atomic.Int64
}

// Run executes a scenario on a fresh in-memory store and returns the result.
// The error is non-nil only when the scenario could not be executed; failed
// expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	dir, err := scenario.directory()
	if err != nil {
		return nil, fmt.Errorf("failed to build roster: %w", err)
	}

	h := &Harness{
		store:  st,
		clock:  testutil.NewStepClock(time.Time{}, time.Minute),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	var recorder engine.ExpenseRecorderFunc = func(context.Context, engine.ExpenseRecord) error {
		h.expenses.Add(1)
		if scenario.ExpenseFailure != "" {
			return errors.New(scenario.ExpenseFailure)
		}
		return nil
	}

	opts := []engine.EngineOption{
		engine.WithDirectory(dir),
		engine.WithClock(h.clock),
		engine.WithIDGenerator(testutil.NewSequenceIDs("id")),
		engine.WithExpenseRecorder(recorder),
		engine.WithLogger(h.logger),
	}
	if scenario.Strict {
		opts = append(opts, engine.WithStrictIssue())
	}
	h.engine = engine.New(st, opts...)
	h.session = session.New(scenario.orchard(), h.engine, session.WithLogger(h.logger))

	result := NewResult()
	if err := h.executeSteps(ctx, "setup", scenario.Setup, result, true); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeSteps(ctx, "flow", scenario.Flow, result, false); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if err := h.session.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load final state: %w", err)
	}
	actx := &AssertionContext{
		Session:      h.session,
		Saved:        result.Saved,
		ExpenseCalls: int(h.expenses.Load()),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// executeSteps runs steps in order. In setup, any failure aborts the run.
func (h *Harness) executeSteps(ctx context.Context, section string, steps []FlowStep, result *Result, mustSucceed bool) error {
	for i, step := range steps {
		result.AddInvocationTrace(step.Invoke, step.Args, h.next())

		args, err := substituteRefs(step.Args, result.Saved)
		if err != nil {
			return fmt.Errorf("%s step %d: %w", section, i, err)
		}
		outcome, err := h.invoke(ctx, step.Invoke, args)
		if err != nil {
			return fmt.Errorf("%s step %d: %w", section, i, err)
		}
		result.AddCompletionTrace(step.Invoke, outcome.Case, outcome.Result, h.next())

		if outcome.Case == CaseOK && step.SaveAs != "" {
			result.Saved[step.SaveAs] = outcome.ID
		}

		if mustSucceed && outcome.Case != CaseOK {
			return fmt.Errorf("%s step %d: %s failed with %s", section, i, step.Invoke, outcome.Case)
		}
		if msg := checkExpect(section, i, step, outcome); msg != "" {
			result.AddError(msg)
		}

		h.logger.Info("step completed",
			"section", section,
			"step", i,
			"action", step.Invoke,
			"output_case", outcome.Case,
		)
	}
	return nil
}

// stepOutcome is what one command produced.
type stepOutcome struct {
	Case   string
	ID     string
	Result map[string]any
}

// invoke decodes args into the command's input and runs it through the
// session. Engine failures become outcomes; only undecodable args are
// returned as errors.
func (h *Harness) invoke(ctx context.Context, action string, args map[string]any) (stepOutcome, error) {
	switch action {
	case ActionRequest:
		var in engine.RequestInput
		if err := decodeArgs(args, &in); err != nil {
			return stepOutcome{}, err
		}
		c, err := h.session.RequestConsultation(ctx, in)
		return consultationOutcome(c, err), nil

	case ActionAccept:
		var in struct {
			ConsultationID string `yaml:"consultation_id"`
			DoctorID       string `yaml:"doctor_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return stepOutcome{}, err
		}
		c, err := h.session.AcceptRequest(ctx, in.ConsultationID, in.DoctorID)
		return consultationOutcome(c, err), nil

	case ActionIssue:
		var in engine.IssueInput
		if err := decodeArgs(args, &in); err != nil {
			return stepOutcome{}, err
		}
		res, err := h.session.IssuePrescription(ctx, in)
		if err != nil {
			return failureOutcome(err), nil
		}
		out := prescriptionOutcome(res.Prescription)
		out.Result["consultation_status"] = string(res.Consultation.Status)
		return out, nil

	case ActionExecute, ActionFlag:
		var in struct {
			PrescriptionID string `yaml:"prescription_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return stepOutcome{}, err
		}
		if action == ActionFlag {
			p, err := h.session.FlagCorrection(ctx, in.PrescriptionID)
			if err != nil {
				return failureOutcome(err), nil
			}
			return prescriptionOutcome(p), nil
		}
		res, err := h.session.ExecutePrescription(ctx, in.PrescriptionID)
		if err != nil {
			return failureOutcome(err), nil
		}
		out := prescriptionOutcome(res.Prescription)
		out.Result["expense_recorded"] = res.ExpenseErr == nil
		return out, nil
	}
	return stepOutcome{}, fmt.Errorf("unknown action %q", action)
}

func consultationOutcome(c domain.Consultation, err error) stepOutcome {
	if err != nil {
		return failureOutcome(err)
	}
	return stepOutcome{Case: CaseOK, ID: c.ID, Result: consultationState(c)}
}

func prescriptionOutcome(p domain.Prescription) stepOutcome {
	return stepOutcome{Case: CaseOK, ID: p.ID, Result: prescriptionState(p)}
}

// failureOutcome turns an engine error into an output case. Errors that
// carry no engine code are reported as STORE_FAILURE.
func failureOutcome(err error) stepOutcome {
	code := engine.CodeOf(err)
	if code == "" {
		code = engine.ErrCodeStoreFailure
	}
	out := stepOutcome{Case: string(code)}
	var ee *engine.Error
	if errors.As(err, &ee) && ee.EntityID != "" {
		out.Result = map[string]any{"entity_id": ee.EntityID}
	}
	return out
}

func consultationState(c domain.Consultation) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"doctor_id": c.DoctorID,
		"status":    string(c.Status),
		"type":      string(c.Type),
	}
}

func prescriptionState(p domain.Prescription) map[string]any {
	return map[string]any{
		"id":              p.ID,
		"consultation_id": p.ConsultationID,
		"doctor_name":     p.DoctorName,
		"hospital_name":   p.HospitalName,
		"status":          string(p.Status),
		"issued_on":       p.IssuedOn.String(),
		"follow_up_on":    p.FollowUpOn.String(),
		"items":           len(p.ActionItems),
		"total_cost":      p.TotalCost(),
	}
}

// substituteRefs returns a copy of args with $name strings replaced by
// saved ids.
func substituteRefs(args map[string]any, saved map[string]string) (map[string]any, error) {
	out, err := substitute(args, saved)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func substitute(v any, saved map[string]string) (any, error) {
	switch v := v.(type) {
	case string:
		name, ok := refName(v)
		if !ok {
			return v, nil
		}
		id, ok := saved[name]
		if !ok {
			return nil, fmt.Errorf("reference %q has no saved id", v)
		}
		return id, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			s, err := substitute(elem, saved)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			s, err := substitute(elem, saved)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return v, nil
	}
}

// decodeArgs re-encodes args as YAML and decodes them strictly into target.
func decodeArgs(args map[string]any, target any) error {
	raw, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// checkExpect compares an outcome with the step's expect clause. A step
// without one must succeed.
func checkExpect(section string, index int, step FlowStep, out stepOutcome) string {
	want := CaseOK
	var wantResult map[string]any
	if step.Expect != nil {
		want = step.Expect.Case
		wantResult = step.Expect.Result
	}
	if out.Case != want {
		return fmt.Sprintf("%s[%d] %s: expected case %s, got %s", section, index, step.Invoke, want, out.Case)
	}
	if !matchArgs(out.Result, wantResult) {
		return fmt.Sprintf("%s[%d] %s: result %v does not match %v", section, index, step.Invoke, out.Result, wantResult)
	}
	return ""
}
