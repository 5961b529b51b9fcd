package schema

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllowedTypes is the permitted column type set. serial is deliberately
// absent: new fields must not use the legacy auto-increment type.
var AllowedTypes = map[string]bool{
	"integer": true, "bigint": true, "smallint": true,
	"uuid": true,
	"text": true, "varchar": true, "char": true,
	"date": true, "timestamp": true, "timestamptz": true, "time": true, "timetz": true,
	"boolean": true,
	"numeric": true, "decimal": true, "float": true, "double": true, "real": true,
	"json": true, "jsonb": true,
}

// Entity is one parsed entity-schema document, normalized from either the
// current document format or the legacy columns format.
type Entity struct {
	Path          string // source file the entity was parsed from
	SpecVersion   string
	Name          string // human-readable display name
	TechnicalName string // snake_case table name
	Schema        string // optional Postgres schema override
	Comment       string
	Fields        []Field
	Constraints   []Constraint
	Indexes       []Index
}

// Field is one column definition.
type Field struct {
	Name          string
	TechnicalName string
	Type          string
	Length        int // 0 means unset
	NotNull       bool
	Unique        bool
	PK            bool
	Default       any // nil means unset
	Generated     string
	Comment       string
	FK            *ForeignKey
}

// ForeignKey is the fk block of a field.
type ForeignKey struct {
	RefTable   string
	RefField   string // defaults to "id"
	OnDelete   string
	OnUpdate   string
	Deferrable string
}

// Constraint is a raw table-level constraint appended via ALTER TABLE.
type Constraint struct {
	Name       string
	Expression string
}

// Index is a secondary index definition.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Method  string // btree, hash, gin, gist, brin
	Where   string // partial index predicate
}

// QualifiedName returns schema.table with the given fallback schema applied
// when the entity does not override it.
func (e *Entity) QualifiedName(defaultSchema string) string {
	s := e.Schema
	if s == "" {
		s = defaultSchema
	}
	return s + "." + e.TechnicalName
}

// FieldByName returns the field with the given technical name, or nil.
func (e *Entity) FieldByName(technical string) *Field {
	for i := range e.Fields {
		if e.Fields[i].TechnicalName == technical {
			return &e.Fields[i]
		}
	}
	return nil
}

// looseBool decodes YAML booleans plus the loose spellings that predate
// strict YAML 1.2 parsing ("yes", "on", "1").
type looseBool bool

func (b *looseBool) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = looseBool(t)
		return nil
	case int:
		*b = t != 0
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y", "on":
			*b = true
			return nil
		case "", "0", "false", "no", "n", "off":
			*b = false
			return nil
		}
	}
	return fmt.Errorf("invalid boolean value %v", v)
}

// looseInt decodes integers that may be written as quoted strings.
type looseInt int

func (n *looseInt) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case int:
		*n = looseInt(t)
		return nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("invalid integer %q", t)
		}
		*n = looseInt(parsed)
		return nil
	}
	return fmt.Errorf("invalid integer value %v", v)
}
