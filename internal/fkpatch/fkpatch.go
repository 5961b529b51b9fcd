// Package fkpatch rewrites schema YAML files to add missing foreign-key
// references from a patch map. Files are edited through yaml.Node trees so
// comments and key order survive, and a .bak copy is written before the
// first modification of each file.
package fkpatch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/datakelola/skema/internal/schema"
)

// Target is one requested patch: set field's reference to RefTable inside
// File (relative to the schema directory).
type Target struct {
	File     string `yaml:"file" json:"file"`
	Field    string `yaml:"field" json:"field"`
	RefTable string `yaml:"ref_table" json:"ref_table"`
}

// Applied records a successful patch.
type Applied struct {
	Target
	Changes  int  `json:"changes"`
	Fallback bool `json:"fallback,omitempty"` // found by scanning outside the mapped file
}

// Result summarizes a patch run.
type Result struct {
	Patched  []Applied `json:"patched"`
	NotFound []Target  `json:"not_found,omitempty"`
}

// LoadTargets reads a patch map file: a YAML list of {file, field, ref_table}.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var targets []Target
	if err := yaml.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, t := range targets {
		if t.File == "" || t.Field == "" || t.RefTable == "" {
			return nil, fmt.Errorf("%s: target %d: file, field and ref_table are all required", path, i+1)
		}
	}
	return targets, nil
}

// Apply patches each target in its mapped file, then falls back to scanning
// the whole directory for fields that were not found where expected.
func Apply(dir string, targets []Target) (*Result, error) {
	result := &Result{}
	var pending []Target

	for _, t := range targets {
		path := filepath.Join(dir, t.File)
		changes, err := patchFile(path, t.Field, t.RefTable)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if changes > 0 {
			result.Patched = append(result.Patched, Applied{Target: t, Changes: changes})
			continue
		}
		pending = append(pending, t)
	}

	if len(pending) > 0 {
		files, err := schema.FindSchemaFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, t := range pending {
			found := false
			for _, path := range files {
				changes, err := patchFile(path, t.Field, t.RefTable)
				if err != nil {
					return nil, err
				}
				if changes > 0 {
					rel, relErr := filepath.Rel(dir, path)
					if relErr != nil {
						rel = path
					}
					applied := Applied{Target: t, Changes: changes, Fallback: true}
					applied.File = rel
					result.Patched = append(result.Patched, applied)
					found = true
					break
				}
			}
			if !found {
				result.NotFound = append(result.NotFound, t)
			}
		}
	}

	return result, nil
}

// patchFile sets the reference for every matching field in every document of
// one file. Returns the number of changed field definitions.
func patchFile(path, field, refTable string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	var docs []*yaml.Node
	dec := yaml.NewDecoder(f)
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.Close()
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, &node)
	}
	f.Close()

	total := 0
	for _, doc := range docs {
		total += patchNode(doc, field, refTable)
	}
	if total == 0 {
		return 0, nil
	}

	if err := ensureBackup(path); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return 0, err
	}
	return total, nil
}

// patchNode walks the node tree looking for field definitions with the given
// name and sets their reference. Current-format fields get an fk block;
// legacy fields get a plain ref_table key.
func patchNode(node *yaml.Node, field, refTable string) int {
	if node == nil {
		return 0
	}

	changed := 0
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			changed += patchNode(child, field, refTable)
		}
	case yaml.SequenceNode:
		for _, child := range node.Content {
			changed += patchNode(child, field, refTable)
		}
	case yaml.MappingNode:
		if isFieldNode(node, field) {
			if setReference(node, refTable) {
				changed++
			}
		}
		for i := 1; i < len(node.Content); i += 2 {
			changed += patchNode(node.Content[i], field, refTable)
		}
	}
	return changed
}

// isFieldNode reports whether a mapping looks like a field definition with
// the given name (by technical_name or name).
func isFieldNode(node *yaml.Node, field string) bool {
	if v := mappingValue(node, "technical_name"); v != nil {
		return v.Value == field
	}
	if v := mappingValue(node, "name"); v != nil {
		return v.Value == field
	}
	return false
}

// setReference points the field at refTable. Returns false when the field
// already carries that reference.
func setReference(node *yaml.Node, refTable string) bool {
	// Current format: fk block, created if missing.
	if mappingValue(node, "technical_name") != nil || mappingValue(node, "fk") != nil {
		fk := mappingValue(node, "fk")
		if fk == nil {
			fk = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			appendMapping(node, "fk", fk)
		}
		return setScalar(fk, "ref_table", refTable)
	}
	// Legacy format: plain ref_table key on the field.
	return setScalar(node, "ref_table", refTable)
}

// setScalar sets key to value inside a mapping, adding the key if absent.
// Returns false when the value was already set.
func setScalar(node *yaml.Node, key, value string) bool {
	if v := mappingValue(node, key); v != nil {
		if v.Value == value {
			return false
		}
		v.SetString(value)
		return true
	}
	val := &yaml.Node{}
	val.SetString(value)
	appendMapping(node, key, val)
	return true
}

// mappingValue returns the value node for a key in a mapping, or nil.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func appendMapping(node *yaml.Node, key string, value *yaml.Node) {
	k := &yaml.Node{}
	k.SetString(key)
	node.Content = append(node.Content, k, value)
}

// ensureBackup copies path to path.bak once; an existing backup is kept.
func ensureBackup(path string) error {
	bak := path + ".bak"
	if _, err := os.Stat(bak); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(bak, data, 0644)
}
