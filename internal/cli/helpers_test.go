package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const salesDocument = `{
  "version": 1,
  "name": "sales",
  "graphs": [
    {
      "name": "orders",
      "nodes": [
        {"alias": "excelSource", "type": "source", "source": "excelSource"},
        {"alias": "objectSource", "type": "source", "source": "objectSource"},
        {"alias": "invoiced", "type": "join", "inputs": ["excelSource", "objectSource"],
         "on": "[excelSource.OrderID] = [objectSource.OrderID]", "kind": "inner"}
      ]
    }
  ]
}
`

const salesCUE = `package sales

federation: "sales"

graphs: orders: {
	nodes: {
		excelSource: {type: "source", source: "excelSource"}
		objectSource: {type: "source", source: "objectSource"}
		invoiced: {
			type:   "join"
			inputs: ["excelSource", "objectSource"]
			on:     "[excelSource.OrderID] = [objectSource.OrderID]"
		}
	}
}
`

// project is a temporary directory holding a config file, two file
// sources, a JSON definition and a CUE definition directory.
type project struct {
	dir    string
	config string
}

func (p *project) path(name string) string {
	return filepath.Join(p.dir, name)
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("sales.csv", "OrderID,Salesperson\n1,Nancy\n3,Andrew\n")
	write("invoices.yaml", "- {InvoiceID: 10, OrderID: 1}\n- {InvoiceID: 11, OrderID: 2}\n")
	write("sales.json", salesDocument)
	write("defs/sales.cue", salesCUE)
	write("fedq.yaml", `log: {level: warn, format: text}
catalog: {driver: sqlite, path: catalog.db}
sources:
  - {name: excelSource, kind: spreadsheet, path: sales.csv}
  - {name: objectSource, kind: objects, path: invoices.yaml}
`)

	return &project{dir: dir, config: filepath.Join(dir, "fedq.yaml")}
}

// run executes the root command against the project config.
func (p *project) run(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", p.config, "--format", format}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// mustSave stores the JSON definition in the project catalog.
func (p *project) mustSave(t *testing.T) {
	t.Helper()
	_, _, err := p.run(t, "text", "save", p.path("sales.json"))
	require.NoError(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
