package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path has no scenario files.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files found at %s", e.Path)
}

// FindScenarios returns the scenario files at path: the file itself, or the
// .yaml and .yml files of a directory in name order.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	sort.Strings(files)
	return files, nil
}

// SuiteResult summarizes a scenario run.
type SuiteResult struct {
	TotalScenarios int                `json:"total_scenarios"`
	Passed         int                `json:"passed"`
	Failed         int                `json:"failed"`
	Failures       []ScenarioFailure  `json:"failures,omitempty"`
	Results        map[string]*Result `json:"results,omitempty"`
}

// ScenarioFailure describes a scenario that did not pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// RunAll loads and runs every scenario found at path. Load and execution
// failures are counted as failed scenarios, not returned.
func (h *Harness) RunAll(ctx context.Context, path string) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{Results: map[string]*Result{}}
	fail := func(path, format string, args ...any) {
		suite.Failed++
		suite.Failures = append(suite.Failures, ScenarioFailure{
			ScenarioPath: path,
			Error:        fmt.Sprintf(format, args...),
		})
	}

	for _, file := range files {
		suite.TotalScenarios++

		scenario, err := LoadScenarioWithBasePath(file, filepath.Dir(file))
		if err != nil {
			fail(file, "failed to load scenario: %v", err)
			continue
		}

		result, err := h.Run(ctx, scenario)
		if err != nil {
			fail(file, "scenario execution failed: %v", err)
			continue
		}
		suite.Results[scenario.Name] = result

		if !result.Pass {
			fail(file, "scenario assertions failed: %v", result.Errors)
			continue
		}
		suite.Passed++
	}

	return suite, nil
}
