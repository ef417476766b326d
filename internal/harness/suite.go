package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	result *Result
}

// Result returns the run result, or nil when the scenario did not load or
// run.
func (r ScenarioResult) Result() *Result { return r.result }

// FindScenarios returns the .yaml and .yml files under dir whose base name
// matches filter, sorted. An empty filter matches everything.
func FindScenarios(dir, filter string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenarios directory: %w", err)
	}
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, filepath.Base(path)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario file. Load and run failures are
// reported per scenario, not returned.
func RunSuite(ctx context.Context, paths []string) *SuiteResult {
	suite := &SuiteResult{
		Scenarios: make([]ScenarioResult, 0, len(paths)),
		Total:     len(paths),
	}

	for _, path := range paths {
		sr := ScenarioResult{Name: filepath.Base(path), Path: path}

		scenario, err := LoadScenario(path)
		if err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		} else {
			sr.Name = scenario.Name
			result, err := RunContext(ctx, scenario)
			switch {
			case err != nil:
				sr.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
			default:
				sr.result = result
				sr.Pass = result.Pass
				sr.Errors = result.Errors
			}
		}

		if sr.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Scenarios = append(suite.Scenarios, sr)
	}
	return suite
}
