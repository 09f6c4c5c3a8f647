package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "city_margin.yaml"),
		filepath.Join("testdata", "scenarios", "parquet_scan.yaml"),
		filepath.Join("testdata", "scenarios", "sqlite_total.yaml"),
	}, files)

	one := filepath.Join("testdata", "scenarios", "city_margin.yaml")
	files, err = FindScenarios(one)
	require.NoError(t, err)
	assert.Equal(t, []string{one}, files)

	var notFound *ScenarioNotFoundError
	_, err = FindScenarios(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorAs(t, err, &notFound)
	_, err = FindScenarios(t.TempDir())
	assert.ErrorAs(t, err, &notFound)
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	write := func(name, doc string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	write("a_pass.yaml", minimalScenario)
	write("b_fail.yaml", `
name: fails
description: expectation does not hold
source:
  name: sales
  engine: sqlite
  table: sales
  attributes:
    - {name: price, type: NUMBER}
steps:
  - limit: -1
    expect: accepted
`)
	write("c_broken.yaml", "name: broken\n")
	write("notes.txt", "ignored")

	suite, err := New().RunAll(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, suite.TotalScenarios)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	require.Len(t, suite.Failures, 2)
	assert.Contains(t, suite.Failures[0].Error, "expected accepted, got INVALID")
	assert.Contains(t, suite.Failures[1].Error, "failed to load scenario")
	assert.Contains(t, suite.Results, "minimal")
	assert.Contains(t, suite.Results, "fails")
}
