package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Text(t *testing.T) {
	p := newProject(t)
	p.mustSave(t)

	stdout, _, err := p.run(t, "text", "query", "sales", "invoiced")
	require.NoError(t, err)
	assert.Contains(t, stdout, "excelSource.OrderID")
	assert.Contains(t, stdout, "Nancy")
	assert.Contains(t, stdout, "(1 row)")
	assert.NotContains(t, stdout, "Andrew")
}

func TestQuery_CSV(t *testing.T) {
	p := newProject(t)
	p.mustSave(t)

	stdout, _, err := p.run(t, "csv", "query", "sales", "invoiced")
	require.NoError(t, err)
	assert.Equal(t,
		"excelSource.OrderID,excelSource.Salesperson,objectSource.InvoiceID,objectSource.OrderID\n"+
			"1,Nancy,10,1\n",
		stdout)
}

func TestQuery_JSON(t *testing.T) {
	p := newProject(t)
	p.mustSave(t)

	stdout, _, err := p.run(t, "json", "query", "sales", "invoiced")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   TableData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Count)
	require.Len(t, resp.Data.Rows, 1)
	assert.JSONEq(t, `[1,"Nancy",10,1]`, string(resp.Data.Rows[0]))
}

func TestQuery_GraphNameRunsFirstRoot(t *testing.T) {
	p := newProject(t)
	p.mustSave(t)

	byRoot, _, err := p.run(t, "csv", "query", "sales", "invoiced")
	require.NoError(t, err)
	byGraph, _, err := p.run(t, "csv", "query", "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, byRoot, byGraph)
}

func TestQuery_Errors(t *testing.T) {
	p := newProject(t)
	p.mustSave(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"unknown root", []string{"query", "sales", "nowhere"}, ErrCodeUnknownRoot},
		{"unknown definition", []string{"query", "inventory", "stock"}, ErrCodeNoDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := p.run(t, "json", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
