package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/querystore"
)

const minimalScenario = `
name: minimal
description: "Single source, single query"
sources:
  - name: orders
    columns:
      - {name: OrderID, type: int}
    rows:
      - [1]
definition:
  name: sales
  graphs:
    - name: g
      nodes:
        - {alias: orders, type: source, source: orders}
queries:
  - root: orders
    expect:
      count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "Single source, single query", scenario.Description)
	require.Len(t, scenario.Sources, 1)
	assert.Equal(t, "OrderID", scenario.Sources[0].Columns[0].Name)
	require.NotNil(t, scenario.Definition)
	assert.Equal(t, querystore.Version, scenario.Definition.Version)
	assert.Equal(t, "orders", scenario.Definition.Graphs[0].Nodes[0].Alias)
	require.Len(t, scenario.Queries, 1)
	require.NotNil(t, scenario.Queries[0].Expect.Count)
	assert.Equal(t, 1, *scenario.Queries[0].Expect.Count)
	assert.Equal(t, dir, scenario.dir)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
query:
  - root: x
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_UnknownDefinitionField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
definition:
  name: sales
  graphs:
    - name: g
      nodes:
        - {alias: a, type: source, source: a, limit: 3}
queries:
  - root: a
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
definition_file: d.json
queries: [{root: a}]
`,
			want: "name is required",
		},
		{
			name: "no definition",
			yaml: `
name: x
queries: [{root: a}]
`,
			want: "exactly one of definition or definition_file",
		},
		{
			name: "both definitions",
			yaml: `
name: x
definition_file: d.json
definition: {name: sales, graphs: []}
queries: [{root: a}]
`,
			want: "exactly one of definition or definition_file",
		},
		{
			name: "no queries",
			yaml: `
name: x
definition_file: d.json
`,
			want: "at least one query",
		},
		{
			name: "query without root",
			yaml: `
name: x
definition_file: d.json
queries: [{expect: {count: 1}}]
`,
			want: "queries[0]: root is required",
		},
		{
			name: "error with rows",
			yaml: `
name: x
definition_file: d.json
queries: [{root: a, expect: {error: UNKNOWN_ALIAS, count: 0}}]
`,
			want: "error excludes",
		},
		{
			name: "duplicate source",
			yaml: `
name: x
definition_file: d.json
sources:
  - {name: a, columns: [{name: c, type: int}]}
  - {name: a, columns: [{name: c, type: int}]}
queries: [{root: a}]
`,
			want: `duplicate source "a"`,
		},
		{
			name: "source without columns",
			yaml: `
name: x
definition_file: d.json
sources:
  - {name: a}
queries: [{root: a}]
`,
			want: "columns or records are required",
		},
		{
			name: "records with columns",
			yaml: `
name: x
definition_file: d.json
sources:
  - {name: a, columns: [{name: c, type: int}], records: [{c: 1}]}
queries: [{root: a}]
`,
			want: "records exclude",
		},
		{
			name: "short row",
			yaml: `
name: x
definition_file: d.json
sources:
  - name: a
    columns: [{name: c, type: int}, {name: d, type: string}]
    rows: [[1]]
queries: [{root: a}]
`,
			want: "sources[0].rows[0]: 1 values for 2 columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
