package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// rawDocument mirrors the on-disk YAML shape. A document is either the
// current format (entity + fields) or the legacy format (columns).
type rawDocument struct {
	SpecVersion string          `yaml:"spec_version"`
	Entity      *rawEntity      `yaml:"entity"`
	Fields      []rawField      `yaml:"fields"`
	Constraints []rawConstraint `yaml:"constraints"`
	Indexes     []rawIndex      `yaml:"indexes"`

	// Legacy format.
	Table       string      `yaml:"table"`
	Description string      `yaml:"description"`
	Columns     []rawColumn `yaml:"columns"`
}

type rawEntity struct {
	Name          string `yaml:"name"`
	TechnicalName string `yaml:"technical_name"`
	Schema        string `yaml:"schema"`
	Comment       string `yaml:"comment"`
}

type rawField struct {
	Name          string    `yaml:"name"`
	TechnicalName string    `yaml:"technical_name"`
	Type          string    `yaml:"type"`
	Length        looseInt  `yaml:"length"`
	NotNull       looseBool `yaml:"not_null"`
	Unique        looseBool `yaml:"unique"`
	PK            looseBool `yaml:"pk"`
	Default       any       `yaml:"default"`
	Generated     string    `yaml:"generated"`
	Comment       string    `yaml:"comment"`
	FK            *rawFK    `yaml:"fk"`
}

type rawFK struct {
	RefTable   string `yaml:"ref_table"`
	RefField   string `yaml:"ref_field"`
	OnDelete   string `yaml:"on_delete"`
	OnUpdate   string `yaml:"on_update"`
	Deferrable string `yaml:"deferrable"`
}

type rawConstraint struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

type rawIndex struct {
	Name    string    `yaml:"name"`
	Columns []string  `yaml:"columns"`
	Unique  looseBool `yaml:"unique"`
	Method  string    `yaml:"method"`
	Where   string    `yaml:"where"`
}

type rawColumn struct {
	Name       string    `yaml:"name"`
	Label      string    `yaml:"label"`
	Type       string    `yaml:"type"`
	Nullable   *bool     `yaml:"nullable"`
	Unique     looseBool `yaml:"unique"`
	PrimaryKey looseBool `yaml:"primary_key"`
	Default    any       `yaml:"default"`
	Comment    string    `yaml:"comment"`
	RefTable   string    `yaml:"ref_table"`
	RefField   string    `yaml:"ref_field"`
}

var titleCaser = cases.Title(language.Und)

// ParseFile reads one YAML file and returns the entities it defines.
// Multi-document files are supported. Each document is checked against the
// embedded structural schema before decoding.
func ParseFile(path string) ([]*Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(path, f)
}

func parse(path string, r io.Reader) ([]*Entity, error) {
	dec := yaml.NewDecoder(r)

	var entities []*Entity
	for docIndex := 0; ; docIndex++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, docIndex+1, err)
		}
		if node.Kind == 0 || node.IsZero() {
			continue
		}

		if err := CheckStructure(path, &node); err != nil {
			return nil, err
		}

		var raw rawDocument
		if err := node.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, docIndex+1, err)
		}

		entity, err := normalize(path, &raw)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, docIndex+1, err)
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}

	return entities, nil
}

// normalize converts a raw document into an Entity, applying defaults and
// the legacy columns conversion.
func normalize(path string, raw *rawDocument) (*Entity, error) {
	if raw.Entity == nil && len(raw.Fields) == 0 && len(raw.Columns) > 0 {
		convertLegacy(path, raw)
	}

	e := &Entity{
		Path:        path,
		SpecVersion: raw.SpecVersion,
	}
	if raw.Entity != nil {
		e.Name = strings.TrimSpace(raw.Entity.Name)
		e.TechnicalName = strings.TrimSpace(raw.Entity.TechnicalName)
		e.Schema = strings.TrimSpace(raw.Entity.Schema)
		e.Comment = raw.Entity.Comment
	}
	if e.TechnicalName == "" {
		e.TechnicalName = fileStem(path)
	}
	if e.Name == "" {
		e.Name = displayName(e.TechnicalName)
	}

	for _, rf := range raw.Fields {
		f := Field{
			Name:          strings.TrimSpace(rf.Name),
			TechnicalName: strings.TrimSpace(rf.TechnicalName),
			Type:          strings.ToLower(strings.TrimSpace(rf.Type)),
			Length:        int(rf.Length),
			NotNull:       bool(rf.NotNull),
			Unique:        bool(rf.Unique),
			PK:            bool(rf.PK),
			Default:       rf.Default,
			Generated:     strings.ToLower(strings.TrimSpace(rf.Generated)),
			Comment:       rf.Comment,
		}
		if f.TechnicalName == "" {
			f.TechnicalName = f.Name
		}
		if f.TechnicalName == "" {
			return nil, fmt.Errorf("field without technical_name or name")
		}
		if f.Name == "" {
			f.Name = displayName(f.TechnicalName)
		}
		if rf.FK != nil {
			fk := &ForeignKey{
				RefTable:   strings.TrimSpace(rf.FK.RefTable),
				RefField:   strings.TrimSpace(rf.FK.RefField),
				OnDelete:   strings.ToLower(strings.TrimSpace(rf.FK.OnDelete)),
				OnUpdate:   strings.ToLower(strings.TrimSpace(rf.FK.OnUpdate)),
				Deferrable: strings.ToLower(strings.TrimSpace(rf.FK.Deferrable)),
			}
			if fk.RefField == "" {
				fk.RefField = "id"
			}
			f.FK = fk
		}
		e.Fields = append(e.Fields, f)
	}

	for _, rc := range raw.Constraints {
		e.Constraints = append(e.Constraints, Constraint{
			Name:       strings.TrimSpace(rc.Name),
			Expression: strings.TrimSpace(rc.Expression),
		})
	}
	for _, ri := range raw.Indexes {
		e.Indexes = append(e.Indexes, Index{
			Name:    strings.TrimSpace(ri.Name),
			Columns: ri.Columns,
			Unique:  bool(ri.Unique),
			Method:  strings.ToLower(strings.TrimSpace(ri.Method)),
			Where:   strings.TrimSpace(ri.Where),
		})
	}

	return e, nil
}

// convertLegacy maps the legacy columns format onto the current one in place.
func convertLegacy(path string, raw *rawDocument) {
	tech := strings.TrimSpace(raw.Table)
	if tech == "" {
		tech = fileStem(path)
	}
	raw.Entity = &rawEntity{
		TechnicalName: tech,
		Comment:       raw.Description,
	}
	for _, col := range raw.Columns {
		f := rawField{
			Name:          col.Label,
			TechnicalName: col.Name,
			Type:          strings.ToLower(col.Type),
			Unique:        col.Unique,
			PK:            col.PrimaryKey,
			Default:       col.Default,
			Comment:       col.Comment,
		}
		if f.Name == "" {
			f.Name = col.Name
		}
		// Legacy columns are nullable unless said otherwise.
		if col.Nullable != nil {
			f.NotNull = looseBool(!*col.Nullable)
		}
		if rt := strings.TrimSpace(col.RefTable); rt != "" {
			rf := strings.TrimSpace(col.RefField)
			if rf == "" {
				rf = "id"
			}
			f.FK = &rawFK{RefTable: rt, RefField: rf}
		}
		raw.Fields = append(raw.Fields, f)
	}
	raw.Columns = nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// displayName derives a human-readable label from a snake_case technical
// name: "wali_kelas" becomes "Wali Kelas".
func displayName(technical string) string {
	return titleCaser.String(strings.ReplaceAll(technical, "_", " "))
}
