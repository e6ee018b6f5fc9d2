package cli

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Stdout(t *testing.T) {
	p := newProject(t)

	stdout, _, err := p.run(t, "text", "compile", p.path("defs"))
	require.NoError(t, err)
	assert.Contains(t, stdout, `"name": "sales"`)
	assert.Contains(t, stdout, `"kind": "inner"`)
}

func TestCompile_OutputFile(t *testing.T) {
	p := newProject(t)
	out := p.path("compiled.json")

	stdout, _, err := p.run(t, "text", "compile", p.path("defs"), "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Compiled definition sales: 1 graph(s), 3 node(s)")
	assert.Contains(t, stdout, "Wrote document to "+out)

	// The compiled document validates like any persisted document.
	_, _, err = p.run(t, "text", "validate", out)
	require.NoError(t, err)
}

func TestCompile_DirectoryMatchesFile(t *testing.T) {
	p := newProject(t)
	fromCUE := p.path("cue.json")
	_, _, err := p.run(t, "text", "compile", p.path("defs"), "-o", fromCUE)
	require.NoError(t, err)

	// A directory and its single file compile to the same document.
	fromFile := p.path("file.json")
	_, _, err = p.run(t, "text", "compile", p.path("defs/sales.cue"), "-o", fromFile)
	require.NoError(t, err)

	a, err := os.ReadFile(fromCUE)
	require.NoError(t, err)
	b, err := os.ReadFile(fromFile)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCompile_JSONFormat(t *testing.T) {
	p := newProject(t)

	stdout, _, err := p.run(t, "json", "compile", p.path("defs"))
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sales", resp.Data.Definition)
	assert.Contains(t, string(resp.Data.Document), `"version"`)
}

func TestCompile_RejectsJSONInput(t *testing.T) {
	p := newProject(t)

	stdout, _, err := p.run(t, "text", "compile", p.path("sales.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E003]")
}

func TestCompile_WriteFailure(t *testing.T) {
	p := newProject(t)

	stdout, _, err := p.run(t, "text", "compile", p.path("defs"), "-o", p.path("missing/dir/out.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E007]")
}
