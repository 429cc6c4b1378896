package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/fangwd/restup/internal/request"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}

// evaluate runs one assertion against the engine's view of the database.
func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	d, err := request.ParseString(a.Path)
	if err != nil {
		return err
	}
	rows, err := h.engine.Get(ctx, d)
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("rows at %s", a.Path),
			Actual:   fmt.Sprintf("error: %v", err),
		}
	}
	got := normalizeRows(rows)

	switch a.Type {
	case AssertRowCount:
		if len(got) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d rows at %s", a.Count, a.Path),
				Actual:   fmt.Sprintf("%d rows", len(got)),
			}
		}

	case AssertFinalState:
		if len(got) != 1 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("exactly one row at %s", a.Path),
				Actual:   fmt.Sprintf("%d rows", len(got)),
			}
		}
		if diff := subsetDiff(a.Expect, got[0]); diff != "" {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%v at %s", a.Expect, a.Path),
				Actual:   diff,
			}
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// subsetDiff describes the fields of want that got lacks or disagrees on.
// got must already be normalised.
func subsetDiff(want, got map[string]any) string {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		g, ok := got[k]
		if !ok {
			parts = append(parts, fmt.Sprintf("field %q missing", k))
			continue
		}
		w := normalize(want[k])
		if !cmp.Equal(w, g) {
			parts = append(parts, fmt.Sprintf("field %q = %v (%T), want %v (%T)", k, g, g, w, w))
		}
	}
	return strings.Join(parts, "; ")
}
