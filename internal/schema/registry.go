package schema

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Registry holds all entities parsed from a schema directory, keyed by
// technical name. Entities keep their file order; lookups are by name.
type Registry struct {
	Entities []*Entity
	byName   map[string]*Entity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Entity)}
}

// Add inserts an entity. Duplicate technical names are an error: the corpus
// maps one entity to one table.
func (r *Registry) Add(e *Entity) error {
	if prev, exists := r.byName[e.TechnicalName]; exists {
		return fmt.Errorf("duplicate entity %q in %s (already defined in %s)",
			e.TechnicalName, e.Path, prev.Path)
	}
	r.byName[e.TechnicalName] = e
	r.Entities = append(r.Entities, e)
	return nil
}

// Lookup returns the entity with the given technical name.
func (r *Registry) Lookup(technical string) (*Entity, bool) {
	e, ok := r.byName[technical]
	return e, ok
}

// Has reports whether an entity with the given technical name exists.
// Qualified references ("public.guru") match on their last component.
func (r *Registry) Has(ref string) bool {
	if _, ok := r.byName[ref]; ok {
		return true
	}
	if i := strings.LastIndex(ref, "."); i >= 0 {
		_, ok := r.byName[ref[i+1:]]
		return ok
	}
	return false
}

// TableNames returns all entity technical names, sorted.
func (r *Registry) TableNames() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindSchemaFiles walks dir and returns all YAML file paths, sorted.
func FindSchemaFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
