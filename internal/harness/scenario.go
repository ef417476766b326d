package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orchard/internal/roster"
)

// DefaultOrchard is used when a scenario names none.
const DefaultOrchard = "orch-1"

// Actions a flow step can invoke.
const (
	ActionRequest = "request"
	ActionAccept  = "accept"
	ActionIssue   = "issue"
	ActionExecute = "execute"
	ActionFlag    = "flag"
)

var knownActions = map[string]bool{
	ActionRequest: true,
	ActionAccept:  true,
	ActionIssue:   true,
	ActionExecute: true,
	ActionFlag:    true,
}

// Scenario is a scripted run of the workflow against one orchard.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Orchard scopes every command. Defaults to DefaultOrchard.
	Orchard string `yaml:"orchard,omitempty"`

	// Doctors replaces the built-in roster when non-empty.
	Doctors []DoctorEntry `yaml:"doctors,omitempty"`

	// Strict rejects blank diagnosis and recommendation on issue.
	Strict bool `yaml:"strict,omitempty"`

	// ExpenseFailure makes the expense recorder fail with this message.
	ExpenseFailure string `yaml:"expense_failure,omitempty"`

	// Setup steps must succeed. They are traced like flow steps.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// DoctorEntry is a roster row in scenario YAML.
type DoctorEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Facility string `yaml:"facility,omitempty"`
	// Available defaults to true.
	Available *bool `yaml:"available,omitempty"`
}

// FlowStep invokes one command.
type FlowStep struct {
	// Invoke is the command: request, accept, issue, execute or flag.
	Invoke string `yaml:"invoke"`

	// Args are decoded into the command's input.
	Args map[string]any `yaml:"args"`

	// SaveAs names the id this step produced for later $name references.
	// request and accept save the consultation id; issue, execute and
	// flag save the prescription id.
	SaveAs string `yaml:"save_as,omitempty"`

	// Expect validates the completion. Nil means "ok" with no result check.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected completion.
type ExpectClause struct {
	// Case is "ok" or an engine error code.
	Case string `yaml:"case"`

	// Result is a subset match against the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Action is used by trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Args is a subset match for trace_contains.
	Args map[string]any `yaml:"args,omitempty"`

	// Actions is the expected order for trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// Case narrows trace_count to completions with this output case.
	Case string `yaml:"case,omitempty"`

	// Count is used by trace_count, pending_count, queue_size and
	// expense_calls.
	Count *int `yaml:"count,omitempty"`

	// Entity is "consultation" or "prescription" for final_state.
	Entity string `yaml:"entity,omitempty"`

	// Ref is a save_as name, used by final_state and total_cost.
	Ref string `yaml:"ref,omitempty"`

	// Doctor is the doctor id for queue_size.
	Doctor string `yaml:"doctor,omitempty"`

	// Amount is the expected total for total_cost.
	Amount *float64 `yaml:"amount,omitempty"`

	// Expect is a subset match for final_state.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertPendingCount  = "pending_count"
	AssertQueueSize     = "queue_size"
	AssertTotalCost     = "total_cost"
	AssertExpenseCalls  = "expense_calls"
)

// Entities for final_state.
const (
	EntityConsultation = "consultation"
	EntityPrescription = "prescription"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// orchard returns the scenario's orchard id.
func (s *Scenario) orchard() string {
	if s.Orchard == "" {
		return DefaultOrchard
	}
	return s.Orchard
}

// directory builds the scenario roster, or the built-in one.
func (s *Scenario) directory() (roster.Directory, error) {
	if len(s.Doctors) == 0 {
		return roster.Default()
	}
	doctors := make([]roster.Doctor, len(s.Doctors))
	for i, d := range s.Doctors {
		doctors[i] = roster.Doctor{
			ID:        d.ID,
			Name:      d.Name,
			Facility:  d.Facility,
			Available: d.Available == nil || *d.Available,
		}
	}
	return roster.NewStatic(doctors...)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, d := range s.Doctors {
		if d.ID == "" {
			return fmt.Errorf("doctors[%d]: id is required", i)
		}
	}

	saved := make(map[string]bool)
	check := func(section string, steps []FlowStep) error {
		for i, step := range steps {
			if !knownActions[step.Invoke] {
				return fmt.Errorf("%s[%d]: unknown action %q", section, i, step.Invoke)
			}
			if step.Args == nil {
				return fmt.Errorf("%s[%d]: args is required (use empty map if no args)", section, i)
			}
			if step.Expect != nil && step.Expect.Case == "" {
				return fmt.Errorf("%s[%d].expect: case is required", section, i)
			}
			if err := checkRefs(step.Args, saved); err != nil {
				return fmt.Errorf("%s[%d]: %w", section, i, err)
			}
			if step.SaveAs != "" {
				saved[step.SaveAs] = true
			}
		}
		return nil
	}
	if err := check("setup", s.Setup); err != nil {
		return err
	}
	if err := check("flow", s.Flow); err != nil {
		return err
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], saved); err != nil {
			return err
		}
	}
	return nil
}

// checkRefs fails on $name references to names no earlier step saved.
func checkRefs(v any, saved map[string]bool) error {
	switch v := v.(type) {
	case string:
		if name, ok := refName(v); ok && !saved[name] {
			return fmt.Errorf("reference %q used before save_as", v)
		}
	case map[string]any:
		for _, elem := range v {
			if err := checkRefs(elem, saved); err != nil {
				return err
			}
		}
	case []any:
		for _, elem := range v {
			if err := checkRefs(elem, saved); err != nil {
				return err
			}
		}
	}
	return nil
}

func refName(s string) (string, bool) {
	if len(s) > 1 && strings.HasPrefix(s, "$") {
		return s[1:], true
	}
	return "", false
}

func validateAssertion(index int, a *Assertion, saved map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needCount := func() error {
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		return nil
	}
	needRef := func() error {
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for %s", index, a.Type)
		}
		if !saved[a.Ref] {
			return fmt.Errorf("assertions[%d]: ref %q was never saved", index, a.Ref)
		}
		return nil
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		return needCount()
	case AssertFinalState:
		if a.Entity != EntityConsultation && a.Entity != EntityPrescription {
			return fmt.Errorf("assertions[%d]: entity must be consultation or prescription", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		return needRef()
	case AssertPendingCount, AssertExpenseCalls:
		return needCount()
	case AssertQueueSize:
		if a.Doctor == "" {
			return fmt.Errorf("assertions[%d]: doctor is required for queue_size", index)
		}
		return needCount()
	case AssertTotalCost:
		if a.Amount == nil {
			return fmt.Errorf("assertions[%d]: amount is required for total_cost", index)
		}
		return needRef()
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
