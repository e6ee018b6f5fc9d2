package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fedq/internal/value"
)

// Snapshot renders a result as canonical JSON:
//
//	{"queries":[{"columns":[...],"root":"...","rows":[[...]]}],"scenario":"..."}
//
// Failed queries carry "error" instead of columns and rows. Expectation
// failures are not part of the snapshot.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	queries := make(value.Array, len(result.Queries))
	for i, q := range result.Queries {
		obj := value.Object{"root": value.String(q.Root)}
		if q.Error != "" {
			obj["error"] = value.String(q.Error)
		} else {
			cols := make(value.Array, len(q.Columns))
			for j, c := range q.Columns {
				cols[j] = value.String(c)
			}
			rows := make(value.Array, len(q.Rows))
			for j, r := range q.Rows {
				rows[j] = value.Array(r)
			}
			obj["columns"] = cols
			obj["rows"] = rows
		}
		queries[i] = obj
	}
	return value.MarshalCanonical(value.Object{
		"scenario": value.String(scenarioName),
		"queries":  queries,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Returns error if the
// scenario cannot be set up; a snapshot mismatch fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
