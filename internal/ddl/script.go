package ddl

import (
	"fmt"
	"strings"

	"github.com/datakelola/skema/internal/schema"
)

// EntityError records a generation failure for a single entity so callers
// can keep going in non-strict mode.
type EntityError struct {
	Entity string
	Path   string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Entity, e.Path, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// Script assembles the full build script: extension prologue once, then one
// statement block per entity in load order, blocks separated by a blank
// line. Entities that fail to render are reported and skipped.
func Script(entities []*schema.Entity, opts Options) (string, []error) {
	var (
		blocks []string
		errs   []error
	)

	if prologue := Extensions(opts); len(prologue) > 0 {
		blocks = append(blocks, strings.Join(prologue, "\n"))
	}

	for _, e := range entities {
		stmts, err := Statements(e, opts)
		if err != nil {
			errs = append(errs, &EntityError{Entity: e.TechnicalName, Path: e.Path, Err: err})
			continue
		}
		blocks = append(blocks, strings.Join(stmts, "\n"))
	}

	if len(blocks) == 0 {
		return "", errs
	}
	return strings.Join(blocks, "\n\n") + "\n", errs
}
