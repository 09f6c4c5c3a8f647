package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/plan"
)

const minimalScenario = `
name: minimal
description: one filter
source:
  name: sales
  engine: sqlite
  table: sales
  attributes:
    - {name: price, type: NUMBER}
steps:
  - filter: '$price > 1'
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.NotNil(t, s.Source)
	assert.Equal(t, "sqlite", s.Source.Engine)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "$price > 1", s.Steps[0].Filter)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown field",
			doc:     minimalScenario + "assertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			doc:     "description: d\nsourceName: s\nsteps: [{limit: 1}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			doc:     "name: n\nsourceName: s\nsteps: [{limit: 1}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no source",
			doc:     "name: n\ndescription: d\nsteps: [{limit: 1}]\n",
			wantErr: "exactly one of source and sourceName",
		},
		{
			name:    "no steps",
			doc:     "name: n\ndescription: d\nsourceName: s\n",
			wantErr: "steps list is required",
		},
		{
			name:    "two operations in one step",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{limit: 1, filter: '$a'}]\n",
			wantErr: "steps[0]: exactly one of",
		},
		{
			name:    "split without expression",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{split: {name: k}}]\n",
			wantErr: "split: expr is required",
		},
		{
			name:    "bad direction",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{sort: {expr: $a, direction: up}}]\n",
			wantErr: "unknown direction",
		},
		{
			name:    "bad expectation",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{limit: 1, expect: NOPE}]\n",
			wantErr: "unknown outcome",
		},
		{
			name:    "bad assertion",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{limit: 1}]\nassertions: [{type: final_state}]\n",
			wantErr: "unknown assertion type",
		},
		{
			name:    "trace_count without outcome",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{limit: 1}]\nassertions: [{type: trace_count, count: 1}]\n",
			wantErr: "outcome must be accepted or rejected",
		},
		{
			name:    "drill without steps",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{total: all}]\ndrill: {row: 0}\n",
			wantErr: "drill: steps list is required",
		},
		{
			name:    "drill with total",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{total: all}]\ndrill: {steps: [{total: again}]}\n",
			wantErr: "drill steps[0]: total is not allowed",
		},
		{
			name:    "drill with negative row",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{total: all}]\ndrill: {row: -1, steps: [{limit: 1}]}\n",
			wantErr: "row must be non-negative",
		},
		{
			name:    "final_mode with unknown mode",
			doc:     "name: n\ndescription: d\nsourceName: s\nsteps: [{limit: 1}]\nassertions: [{type: final_mode, mode: nested}]\n",
			wantErr: "unknown mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDrillOperations(t *testing.T) {
	doc := minimalScenario + `
drill:
  row: 1
  steps:
    - filter: '$price > 15'
    - sort: {expr: $price, direction: descending}
    - limit: 3
`
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, s.Drill)
	assert.Equal(t, 1, s.Drill.Row)

	ops, err := s.Drill.Operations()
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "filter(($price > 15))", ops[0].String())
	assert.Equal(t, plan.Limit{N: 3}, ops[2])

	bad := &Drill{Steps: []Step{{Filter: "$price >"}}}
	_, err = bad.Operations()
	assert.ErrorContains(t, err, "drill steps[0]")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.yaml")
	doc := `
name: scan
description: relative data sources resolve against the base path
source:
  name: events
  engine: parquet
  dataSource: data/events.parquet
steps:
  - limit: 1
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadScenarioWithBasePath(path, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "events.parquet"), s.Source.DataSource)

	s, err = LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "data/events.parquet", s.Source.DataSource)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}
