package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedq/internal/querystore"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxFanOut bounds concurrent fetches (default: engine default).
	MaxFanOut int `yaml:"max_fan_out,omitempty"`

	// Sources are registered before the definition is built.
	Sources []SourceSpec `yaml:"sources"`

	// Definition is the persisted document, written inline as YAML.
	Definition *querystore.Document `yaml:"definition,omitempty"`

	// DefinitionFile is a JSON document or CUE directory, relative to
	// the scenario file. Exclusive with Definition.
	DefinitionFile string `yaml:"definition_file,omitempty"`

	// Queries run in order against the definition.
	Queries []Query `yaml:"queries"`

	// dir is the scenario file's directory, for DefinitionFile.
	dir string
}

// SourceSpec declares one inline source.
//
// A source has either columns (with optional rows and fail) or records.
// Records are maps whose schema is inferred.
type SourceSpec struct {
	Name    string       `yaml:"name"`
	Columns []ColumnSpec `yaml:"columns,omitempty"`
	Rows    [][]any      `yaml:"rows,omitempty"`
	Records []any        `yaml:"records,omitempty"`

	// Fail makes every fetch fail as unavailable with this message.
	Fail string `yaml:"fail,omitempty"`
}

// ColumnSpec declares one column. Elem gives the element type of an
// array column.
type ColumnSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Elem string `yaml:"elem,omitempty"`
}

// Query executes one root of the definition.
type Query struct {
	// Definition defaults to the scenario definition's name.
	Definition string `yaml:"definition,omitempty"`
	Root       string `yaml:"root"`
	Expect     Expect `yaml:"expect"`
}

// Expect specifies the expected outcome. Unset fields are not checked.
type Expect struct {
	Columns []string `yaml:"columns,omitempty"`
	Rows    [][]any  `yaml:"rows,omitempty"`
	Count   *int     `yaml:"count,omitempty"`
	Error   string   `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.dir = filepath.Dir(path)
	return scenario, nil
}

// ParseScenario parses scenario YAML. Relative definition files resolve
// against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "query:" vs "queries:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Definition != nil && scenario.Definition.Version == 0 {
		scenario.Definition.Version = querystore.Version
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if (s.Definition == nil) == (s.DefinitionFile == "") {
		return fmt.Errorf("exactly one of definition or definition_file is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("at least one query is required")
	}

	seen := make(map[string]bool, len(s.Sources))
	for i, src := range s.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("sources[%d]: duplicate source %q", i, src.Name)
		}
		seen[src.Name] = true

		if len(src.Records) > 0 {
			if len(src.Columns) > 0 || len(src.Rows) > 0 || src.Fail != "" {
				return fmt.Errorf("sources[%d]: records exclude columns, rows and fail", i)
			}
			continue
		}
		if len(src.Columns) == 0 {
			return fmt.Errorf("sources[%d]: columns or records are required", i)
		}
		for j, row := range src.Rows {
			if len(row) != len(src.Columns) {
				return fmt.Errorf("sources[%d].rows[%d]: %d values for %d columns", i, j, len(row), len(src.Columns))
			}
		}
	}

	for i, q := range s.Queries {
		if q.Root == "" {
			return fmt.Errorf("queries[%d]: root is required", i)
		}
		if q.Expect.Error != "" && (q.Expect.Rows != nil || q.Expect.Columns != nil || q.Expect.Count != nil) {
			return fmt.Errorf("queries[%d].expect: error excludes columns, rows and count", i)
		}
	}
	return nil
}
