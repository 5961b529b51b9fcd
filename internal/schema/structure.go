package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

var (
	structureOnce   sync.Once
	structureCtx    *cue.Context
	structureSchema cue.Value
)

// documentSchema compiles the embedded CUE schema once and returns the
// #Document definition.
func documentSchema() (*cue.Context, cue.Value, error) {
	structureOnce.Do(func() {
		structureCtx = cuecontext.New()
		structureSchema = structureCtx.
			CompileString(schemaCUE, cue.Filename("schema.cue")).
			LookupPath(cue.ParsePath("#Document"))
	})
	if err := structureSchema.Err(); err != nil {
		return nil, cue.Value{}, fmt.Errorf("compiling embedded document schema: %w", err)
	}
	return structureCtx, structureSchema, nil
}

// StructureError reports a document that does not match the structural schema.
type StructureError struct {
	Path string
	Err  error
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: invalid document structure: %v", e.Path, e.Err)
}

func (e *StructureError) Unwrap() error { return e.Err }

// CheckStructure validates one decoded YAML document against the embedded
// CUE schema. Returns a *StructureError on mismatch.
func CheckStructure(path string, node *yaml.Node) error {
	ctx, docSchema, err := documentSchema()
	if err != nil {
		return err
	}

	// Round-trip through YAML bytes so CUE's YAML decoder sees the same
	// document the parser will decode.
	data, err := yaml.Marshal(node)
	if err != nil {
		return &StructureError{Path: path, Err: err}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return &StructureError{Path: path, Err: err}
	}

	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return &StructureError{Path: path, Err: err}
	}

	// Final() makes missing required fields (marked ! in the schema) an
	// error without demanding every optional value be concrete.
	unified := docSchema.Unify(value)
	if err := unified.Validate(cue.Concrete(false), cue.Final()); err != nil {
		return &StructureError{Path: path, Err: err}
	}
	return nil
}
