// Package lint checks a parsed schema registry against the corpus
// conventions: primary-key discipline, foreign-key resolution, naming, and
// type hygiene. Structural document checks happen earlier, at parse time.
package lint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datakelola/skema/internal/schema"
)

// Lint error codes (E100-E199).
const (
	ErrPrimaryKeyCount    = "E101" // exactly one pk field required
	ErrIDWithoutFK        = "E102" // *_id field without fk block
	ErrUnknownFKTarget    = "E103" // fk.ref_table does not resolve
	ErrDuplicateEntity    = "E104" // duplicate entity technical name
	ErrEntityNotSnake     = "E105" // entity technical name not snake_case
	ErrFieldNotSnake      = "E106" // field technical name not snake_case
	ErrDuplicateField     = "E107" // duplicate field technical name
	ErrSerialForbidden    = "E108" // legacy auto-increment type
	ErrUnknownType        = "E109" // type outside the allowed set
	ErrInvalidOnDelete    = "E110" // unknown on_delete policy
	ErrInvalidOnUpdate    = "E111" // unknown on_update policy
	ErrInvalidDeferrable  = "E112" // unknown deferrable mode
	ErrIndexUnknownColumn = "E113" // index references undefined column
	ErrMissingComment     = "E114" // entity comment required but absent
	ErrDefaultConflict    = "E115" // default and generated both set
	ErrInvalidLength      = "E116" // non-positive varchar/char length
	ErrGeneratedNonUUID   = "E117" // generated uuid on non-uuid column
)

var referentialActions = map[string]bool{
	"cascade": true, "restrict": true, "set null": true,
	"no action": true, "set default": true,
}

var deferrableModes = map[string]bool{
	"deferrable": true, "not deferrable": true,
	"deferrable initially deferred": true,
}

var snakeCaseRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Issue is one lint finding.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Entity  string `json:"entity"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	if i.Field != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", i.Code, i.Entity, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Entity, i.Message)
}

// Options controls optional rules.
type Options struct {
	RequireComments bool // flag missing entity comments (E114)
}

// Run lints every entity in the registry and returns all findings.
// Does not fail fast: callers get the complete list.
func Run(reg *schema.Registry, opts Options) []Issue {
	var issues []Issue
	for _, e := range reg.Entities {
		issues = append(issues, lintEntity(reg, e, opts)...)
	}
	return issues
}

// HardIssues filters findings down to the rules that make an entity
// ungeneratable: pk discipline, forbidden and unknown types.
func HardIssues(issues []Issue) []Issue {
	var hard []Issue
	for _, i := range issues {
		switch i.Code {
		case ErrPrimaryKeyCount, ErrSerialForbidden, ErrUnknownType:
			hard = append(hard, i)
		}
	}
	return hard
}

func lintEntity(reg *schema.Registry, e *schema.Entity, opts Options) []Issue {
	var issues []Issue

	report := func(field, code, format string, args ...any) {
		issues = append(issues, Issue{
			Path:    e.Path,
			Entity:  e.TechnicalName,
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if !snakeCaseRe.MatchString(e.TechnicalName) {
		report("", ErrEntityNotSnake, "entity technical name %q is not snake_case", e.TechnicalName)
	}
	if opts.RequireComments && strings.TrimSpace(e.Comment) == "" {
		report("", ErrMissingComment, "entity comment is required")
	}

	pkCount := 0
	fieldNames := make(map[string]bool, len(e.Fields))

	for i := range e.Fields {
		f := &e.Fields[i]
		name := f.TechnicalName

		if !snakeCaseRe.MatchString(name) {
			report(name, ErrFieldNotSnake, "field technical name %q is not snake_case", name)
		}
		if fieldNames[name] {
			report(name, ErrDuplicateField, "duplicate field technical name %q", name)
		}
		fieldNames[name] = true

		if f.PK {
			pkCount++
		}

		issues = append(issues, lintFieldType(e, f)...)

		if strings.HasSuffix(name, "_id") && len(name) > len("_id") && f.FK == nil {
			report(name, ErrIDWithoutFK, "field ends in _id but declares no foreign key")
		}
		if f.FK != nil {
			issues = append(issues, lintForeignKey(reg, e, f)...)
		}
		if f.Default != nil && f.Generated != "" {
			report(name, ErrDefaultConflict, "default and generated cannot both be set")
		}
		if f.Generated == "uuid_v4" && f.Type != "uuid" {
			report(name, ErrGeneratedNonUUID, "generated uuid_v4 requires type uuid, got %q", f.Type)
		}
	}

	if pkCount != 1 {
		report("", ErrPrimaryKeyCount, "exactly one field must have pk: true, found %d", pkCount)
	}

	for _, idx := range e.Indexes {
		for _, col := range idx.Columns {
			if !fieldNames[col] {
				report(col, ErrIndexUnknownColumn, "index %q references undefined column %q", idx.Name, col)
			}
		}
	}

	return issues
}

func lintFieldType(e *schema.Entity, f *schema.Field) []Issue {
	var issues []Issue

	report := func(code, format string, args ...any) {
		issues = append(issues, Issue{
			Path:    e.Path,
			Entity:  e.TechnicalName,
			Field:   f.TechnicalName,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	switch {
	case f.Type == "serial":
		report(ErrSerialForbidden, "type serial is forbidden; use integer with an explicit sequence or uuid")
	case !schema.AllowedTypes[f.Type]:
		report(ErrUnknownType, "unknown type %q", f.Type)
	}

	// Length 0 means unset; the generator falls back to the configured
	// default for varchar/char.
	if (f.Type == "varchar" || f.Type == "char") && f.Length < 0 {
		report(ErrInvalidLength, "length must be positive, got %d", f.Length)
	}

	return issues
}

func lintForeignKey(reg *schema.Registry, e *schema.Entity, f *schema.Field) []Issue {
	var issues []Issue
	fk := f.FK

	report := func(code, format string, args ...any) {
		issues = append(issues, Issue{
			Path:    e.Path,
			Entity:  e.TechnicalName,
			Field:   f.TechnicalName,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if fk.RefTable == "" || !reg.Has(fk.RefTable) {
		report(ErrUnknownFKTarget, "foreign key target %q does not match any entity", fk.RefTable)
	}
	if fk.OnDelete != "" && !referentialActions[fk.OnDelete] {
		report(ErrInvalidOnDelete, "unknown on_delete policy %q", fk.OnDelete)
	}
	if fk.OnUpdate != "" && !referentialActions[fk.OnUpdate] {
		report(ErrInvalidOnUpdate, "unknown on_update policy %q", fk.OnUpdate)
	}
	if fk.Deferrable != "" && !deferrableModes[fk.Deferrable] {
		report(ErrInvalidDeferrable, "unknown deferrable mode %q", fk.Deferrable)
	}

	return issues
}
