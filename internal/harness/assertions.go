package harness

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/session"
)

// costTolerance absorbs float rounding in summed costs.
const costTolerance = 0.005

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		n := 0
		for _, event := range e.Trace {
			if event.Type == EventCompletion {
				n++
				fmt.Fprintf(&buf, "  [%d] %s -> %s\n", n, event.Action, event.OutputCase)
			}
		}
	}
	return buf.String()
}

// AssertionContext is the final state assertions read from.
type AssertionContext struct {
	Session      *session.Session
	Saved        map[string]string
	ExpenseCalls int
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertPendingCount, AssertQueueSize, AssertTotalCost, AssertExpenseCalls:
			if actx == nil || actx.Session == nil {
				err = fmt.Errorf("assertion[%d]: %s requires final state", i, assertion.Type)
				break
			}
			err = assertState(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertTraceContains checks for an invocation of the action whose args
// contain the expected args.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first invocation of each action appears
// in the given order. Intervening actions are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventInvocation {
			continue
		}
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount counts invocations of the action, or its completions
// with the given case.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action != assertion.Action {
			continue
		}
		switch {
		case assertion.Case == "" && event.Type == EventInvocation:
			count++
		case assertion.Case != "" && event.Type == EventCompletion && event.OutputCase == assertion.Case:
			count++
		}
	}

	if count != *assertion.Count {
		what := assertion.Action
		if assertion.Case != "" {
			what += " -> " + assertion.Case
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertState checks the reloaded projection.
func assertState(actx *AssertionContext, a Assertion) error {
	sess := actx.Session
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertPendingCount:
		if got := sess.PendingRxCount(); got != *a.Count {
			return fail(fmt.Sprintf("%d pending prescriptions", *a.Count), fmt.Sprintf("%d", got))
		}
	case AssertQueueSize:
		if got := len(sess.DoctorQueue(a.Doctor)); got != *a.Count {
			return fail(fmt.Sprintf("%d consultations for %s", *a.Count, a.Doctor), fmt.Sprintf("%d", got))
		}
	case AssertExpenseCalls:
		if actx.ExpenseCalls != *a.Count {
			return fail(fmt.Sprintf("%d expense calls", *a.Count), fmt.Sprintf("%d", actx.ExpenseCalls))
		}
	case AssertTotalCost:
		p, ok := findPrescription(sess, actx.Saved[a.Ref])
		if !ok {
			return fail(fmt.Sprintf("prescription %s", a.Ref), "not found")
		}
		if got := p.TotalCost(); math.Abs(got-*a.Amount) > costTolerance {
			return fail(fmt.Sprintf("total cost %.2f", *a.Amount), fmt.Sprintf("%.2f", got))
		}
	case AssertFinalState:
		id := actx.Saved[a.Ref]
		var state map[string]any
		if a.Entity == EntityConsultation {
			c, ok := findConsultation(sess, id)
			if !ok {
				return fail(fmt.Sprintf("consultation %s", a.Ref), "not found")
			}
			state = consultationState(c)
		} else {
			p, ok := findPrescription(sess, id)
			if !ok {
				return fail(fmt.Sprintf("prescription %s", a.Ref), "not found")
			}
			state = prescriptionState(p)
		}
		if !matchArgs(state, a.Expect) {
			return fail(fmt.Sprintf("%s %s matching %v", a.Entity, a.Ref, a.Expect), fmt.Sprintf("%v", state))
		}
	}
	return nil
}

func findConsultation(sess *session.Session, id string) (domain.Consultation, bool) {
	for _, c := range sess.Consultations() {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Consultation{}, false
}

// findPrescription matches by prescription id, or by the id of the
// consultation it completed.
func findPrescription(sess *session.Session, id string) (domain.Prescription, bool) {
	for _, p := range sess.AllPrescriptions() {
		if p.ID == id || p.ConsultationID == id {
			return p, true
		}
	}
	return domain.Prescription{}, false
}

// matchArgs checks that actual contains every expected key with an equal
// value. Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists || !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values, treating all numeric kinds alike.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if a, ok := toFloat(actual); ok {
		if e, ok := toFloat(expected); ok {
			return math.Abs(a-e) <= costTolerance
		}
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
