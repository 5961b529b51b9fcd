// Package fkreport scans raw schema documents for foreign-key references and
// reports candidates whose target table does not exist in the corpus.
//
// Unlike the lint rules, which run on strictly parsed entities, the report
// works on raw YAML and recognizes the loose reference spellings that
// accumulated in older documents (ref_table, references, relation, many2one).
package fkreport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/datakelola/skema/internal/schema"
)

// Candidate is one detected foreign-key reference.
type Candidate struct {
	Table  string `json:"table"`
	File   string `json:"file"`
	Field  string `json:"field"`
	Target string `json:"target"`
}

// ParseError records a file that could not be decoded.
type ParseError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// Report is the result of scanning a schema directory.
type Report struct {
	Tables      []string     `json:"tables"` // sorted
	Candidates  []Candidate  `json:"candidates"`
	Missing     []Candidate  `json:"missing"`
	ParseErrors []ParseError `json:"parse_errors,omitempty"`
}

// Clean reports whether every candidate target resolved.
func (r *Report) Clean() bool {
	return len(r.Missing) == 0 && len(r.ParseErrors) == 0
}

// Scan walks dir, collects table names and FK candidates from every YAML
// document, and resolves candidates against the detected table set.
func Scan(dir string) (*Report, error) {
	files, err := schema.FindSchemaFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML files found in %s", dir)
	}

	report := &Report{}
	tables := make(map[string]bool)

	type scanned struct {
		file  string
		table string
		doc   map[string]any
	}
	var docs []scanned

	for _, path := range files {
		fileDocs, err := loadDocuments(path)
		if err != nil {
			report.ParseErrors = append(report.ParseErrors, ParseError{File: path, Message: err.Error()})
			continue
		}
		for _, doc := range fileDocs {
			table := inferTableName(doc, path)
			tables[table] = true
			docs = append(docs, scanned{file: path, table: table, doc: doc})
		}
	}

	for _, s := range docs {
		for _, c := range findCandidates(s.doc) {
			c.Table = s.table
			c.File = s.file
			report.Candidates = append(report.Candidates, c)
			if !targetExists(tables, c.Target) {
				report.Missing = append(report.Missing, c)
			}
		}
	}

	for t := range tables {
		report.Tables = append(report.Tables, t)
	}
	sort.Strings(report.Tables)

	return report, nil
}

// loadDocuments decodes all YAML documents in a file into generic maps.
func loadDocuments(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	var docs []map[string]any
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// inferTableName picks the table name for a document:
// entity.technical_name, then name, then table, then the file stem.
func inferTableName(doc map[string]any, path string) string {
	if entity, ok := doc["entity"].(map[string]any); ok {
		if s := stringValue(entity["technical_name"]); s != "" {
			return s
		}
	}
	if s := stringValue(doc["name"]); s != "" {
		return s
	}
	if s := stringValue(doc["table"]); s != "" {
		return s
	}
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// documentFields extracts the field list from the known layouts: fields or
// columns at the root, or nested under schema.
func documentFields(doc map[string]any) []map[string]any {
	for _, key := range []string{"fields", "columns"} {
		if fields := mapList(doc[key]); len(fields) > 0 {
			return fields
		}
	}
	if nested, ok := doc["schema"].(map[string]any); ok {
		for _, key := range []string{"fields", "columns"} {
			if fields := mapList(nested[key]); len(fields) > 0 {
				return fields
			}
		}
	}
	return nil
}

// findCandidates applies the reference heuristics to every field.
func findCandidates(doc map[string]any) []Candidate {
	var out []Candidate

	add := func(field, target string) {
		target = strings.TrimSpace(target)
		if target == "" {
			return
		}
		out = append(out, Candidate{Field: field, Target: target})
	}

	for _, f := range documentFields(doc) {
		name := stringValue(f["technical_name"])
		if name == "" {
			name = stringValue(f["name"])
		}

		// Suffix heuristic: xxx_id references xxx.
		if strings.HasSuffix(name, "_id") && len(name) > len("_id") {
			if fk, ok := f["fk"].(map[string]any); ok {
				add(name, stringValue(fk["ref_table"]))
			} else {
				add(name, strings.TrimSuffix(name, "_id"))
			}
		} else if fk, ok := f["fk"].(map[string]any); ok {
			add(name, stringValue(fk["ref_table"]))
		}

		if rt := stringValue(f["ref_table"]); rt != "" {
			add(name, rt)
		}
		for _, key := range []string{"references", "foreign_key"} {
			if v := stringValue(f[key]); v != "" {
				add(name, refTarget(v))
			}
		}

		switch strings.ToLower(stringValue(f["type"])) {
		case "fk", "foreign_key", "reference", "many2one":
			for _, key := range []string{"ref", "reference", "target", "comodel", "model"} {
				if v := stringValue(f[key]); v != "" {
					add(name, refTarget(v))
				}
			}
		}

		if rel := stringValue(f["relation"]); rel != "" {
			add(name, rel)
		}
		if m2o, ok := f["many2one"].(map[string]any); ok {
			for _, key := range []string{"comodel", "model", "table"} {
				if v := stringValue(m2o[key]); v != "" {
					add(name, refTarget(v))
				}
			}
		}
	}

	return out
}

// refTarget strips a trailing column component from a reference string:
// "siswa.id" resolves to "siswa", "school.siswa.id" to "school.siswa".
func refTarget(ref string) string {
	ref = strings.TrimSpace(ref)
	parts := strings.Split(ref, ".")
	if len(parts) <= 1 {
		return ref
	}
	return strings.Join(parts[:len(parts)-1], ".")
}

// targetExists checks a candidate target against the table set, accepting
// qualified references by their last component.
func targetExists(tables map[string]bool, target string) bool {
	if tables[target] {
		return true
	}
	if i := strings.LastIndex(target, "."); i >= 0 {
		return tables[target[i+1:]]
	}
	return false
}

// Write renders the detailed report in the fk_report.txt layout.
func (r *Report) Write(w io.Writer) error {
	rule := strings.Repeat("=", 80)

	fmt.Fprintln(w, "FK REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total tables detected : %d\n", len(r.Tables))
	fmt.Fprintf(w, "Total FK candidates   : %d\n", len(r.Candidates))
	fmt.Fprintf(w, "Missing FK targets    : %d\n", len(r.Missing))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	if len(r.ParseErrors) > 0 {
		fmt.Fprintln(w, "YAML Parse Errors:")
		for _, pe := range r.ParseErrors {
			fmt.Fprintf(w, " - %s: %s\n", pe.File, pe.Message)
		}
		fmt.Fprintln(w)
	}

	if len(r.Candidates) == 0 {
		fmt.Fprintln(w, "No FK candidates detected.")
		fmt.Fprintln(w)
	}

	if len(r.Missing) > 0 {
		fmt.Fprintln(w, "Missing targets detail:")
		for i, m := range r.Missing {
			fmt.Fprintf(w, "%3d. [%s] %s -> %s (file: %s)\n", i+1, m.Table, m.Field, m.Target, m.File)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "All FK targets exist.")
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Tables (sorted):")
	for _, t := range r.Tables {
		fmt.Fprintf(w, " - %s\n", t)
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func mapList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
