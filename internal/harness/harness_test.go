package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Fixtures(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	suite := RunSuite(context.Background(), paths)
	for _, sr := range suite.Scenarios {
		assert.True(t, sr.Pass, "%s: %v", sr.Name, sr.Errors)
	}
	assert.Equal(t, len(paths), suite.Passed)
	assert.Zero(t, suite.Failed)
}

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"happy_path", "flag_then_execute", "double_issue"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadFixture(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "%v", result.Errors)
		})
	}
}

func TestRun_SavesIDs(t *testing.T) {
	result, err := Run(loadFixture(t, "happy_path"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c1": "id-0001", "rx1": "id-0002"}, result.Saved)
	assert.Len(t, result.Trace, 8)
}

func TestRun_ReportsUnexpectedCase(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_case
description: "Accepting an unknown consultation is expected to succeed"
flow:
  - invoke: accept
    args: { consultation_id: missing, doctor_id: DR001 }
assertions:
  - type: pending_count
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected case ok, got NOT_FOUND")
}

func TestRun_ReportsResultMismatch(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_result
description: "A new consultation is not in progress"
flow:
  - invoke: request
    args: { grower_name: Asha Rao, doctor_id: DR001, type: VIDEO }
    expect: { case: ok, result: { status: IN_PROGRESS } }
assertions:
  - type: pending_count
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "does not match")
}

func TestRun_FailedAssertion(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_count
description: "Counts a pending prescription that does not exist"
flow:
  - invoke: request
    args: { grower_name: Asha Rao, doctor_id: DR001, type: VIDEO }
assertions:
  - type: pending_count
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: pending_count")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_setup
description: "Setup requests an unavailable doctor"
setup:
  - invoke: request
    args: { grower_name: Asha Rao, doctor_id: DR004, type: VIDEO }
flow:
  - invoke: request
    args: { grower_name: Asha Rao, doctor_id: DR001, type: VIDEO }
assertions:
  - type: pending_count
    count: 0
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed with VALIDATION_FAILURE")
}

func TestRun_UndecodableArgs(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_args
description: "Typo in an argument name"
flow:
  - invoke: request
    args: { grower: Asha Rao, doctor_id: DR001, type: VIDEO }
assertions:
  - type: pending_count
    count: 0
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode args")
}

func TestRunSuite_ReportsLoadFailures(t *testing.T) {
	suite := RunSuite(context.Background(), []string{filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Equal(t, 1, suite.Total)
	assert.Equal(t, 1, suite.Failed)
	require.Len(t, suite.Scenarios, 1)
	assert.Nil(t, suite.Scenarios[0].Result())
	assert.Contains(t, suite.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestSubstituteRefs(t *testing.T) {
	saved := map[string]string{"c1": "id-0001"}
	args := map[string]any{
		"consultation_id": "$c1",
		"note":            "$",
		"items":           []any{map[string]any{"ref": "$c1"}},
	}

	out, err := substituteRefs(args, saved)
	require.NoError(t, err)
	assert.Equal(t, "id-0001", out["consultation_id"])
	assert.Equal(t, "$", out["note"], "a bare dollar is not a reference")
	assert.Equal(t, "id-0001", out["items"].([]any)[0].(map[string]any)["ref"])
	assert.Equal(t, "$c1", args["consultation_id"], "input is not modified")

	_, err = substituteRefs(map[string]any{"id": "$rx9"}, saved)
	assert.Error(t, err)
}
