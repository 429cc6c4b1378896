package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a database, a sequence of
// engine calls with their expected outcomes, and assertions on the final
// state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema holds the SQLite DDL that creates the tables.
	Schema string `yaml:"schema"`

	// Setup holds SQL statements run after the schema, outside the engine.
	Setup []string `yaml:"setup,omitempty"`

	// BatchBytes overrides the engine batch budget when positive.
	BatchBytes int `yaml:"batch_bytes,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine call.
type Step struct {
	// Op is "get", "update" or "claim".
	Op string `yaml:"op"`

	// Path is a request path with an optional query string,
	// e.g. /job?status=0&update:status=1.
	Path string `yaml:"path"`

	// Rows are the submitted rows of an update.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Expect is optional; without it the step only has to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// IDs are the identities an update must report, in order.
	IDs []any `yaml:"ids,omitempty"`

	// Rows are the rows a get or claim must return, in order. Each
	// expected row is a subset of the returned one.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Count is the number of rows a get or claim must return.
	Count *int `yaml:"count,omitempty"`

	// Error is the error kind the step must fail with, e.g. VALIDATION.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state through a get.
type Assertion struct {
	// Type is "final_state" or "row_count".
	Type string `yaml:"type"`

	// Path selects the rows. Remember the default limit of one row when
	// counting.
	Path string `yaml:"path"`

	// Expect holds the fields of the single selected row (final_state).
	// Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of selected rows (row_count).
	Count int `yaml:"count,omitempty"`
}

// Step and assertion types.
const (
	OpGet    = "get"
	OpUpdate = "update"
	OpClaim  = "claim"

	AssertFinalState = "final_state"
	AssertRowCount   = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	if step.Path == "" {
		return fmt.Errorf("steps[%d]: path is required", index)
	}
	switch step.Op {
	case OpUpdate:
		if step.Expect != nil && (len(step.Expect.Rows) > 0 || step.Expect.Count != nil) {
			return fmt.Errorf("steps[%d]: update steps expect ids, not rows", index)
		}
	case OpGet, OpClaim:
		if len(step.Rows) > 0 {
			return fmt.Errorf("steps[%d]: rows are only submitted by update", index)
		}
		if step.Expect != nil && len(step.Expect.IDs) > 0 {
			return fmt.Errorf("steps[%d]: %s steps expect rows, not ids", index, step.Op)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Path == "" {
		return fmt.Errorf("assertions[%d]: path is required", index)
	}
	switch a.Type {
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
