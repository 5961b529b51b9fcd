// Package mview lints the BI side of the corpus: materialized-view SQL files
// and the chart definitions that sit on top of them.
package mview

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/datakelola/skema/internal/schema"
)

// ViewFile is one materialized-view definition file.
type ViewFile struct {
	Path string   `json:"path"`
	Name string   `json:"name"` // file stem, used as the view name
	Refs []string `json:"refs"` // relations referenced in FROM/JOIN clauses
}

// Finding is one unresolved relation reference.
type Finding struct {
	View     string `json:"view"`
	Relation string `json:"relation"`
	Path     string `json:"path"`
}

func (f Finding) Error() string {
	return fmt.Sprintf("%s: unknown relation %q", f.View, f.Relation)
}

// relationRe captures the relation after FROM and JOIN. Subqueries start
// with a parenthesis and are skipped by construction.
var relationRe = regexp.MustCompile(`(?i)\b(?:from|join)\s+([A-Za-z_][A-Za-z0-9_.]*)`)

// sqlBuiltins are set-returning functions that legitimately follow FROM.
var sqlBuiltins = map[string]bool{
	"generate_series": true,
	"unnest":          true,
	"jsonb_each":      true,
	"json_each":       true,
	"lateral":         true,
}

// ScanViews reads all .sql files under dir, sorted by path, and extracts the
// relations each one references.
func ScanViews(dir string) ([]ViewFile, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".sql") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var views []ViewFile
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(path)
		views = append(views, ViewFile{
			Path: path,
			Name: strings.TrimSuffix(base, filepath.Ext(base)),
			Refs: extractRefs(string(data)),
		})
	}
	return views, nil
}

// extractRefs returns the distinct relations referenced by a SQL text, in
// first-appearance order.
func extractRefs(sql string) []string {
	sql = stripComments(sql)

	var refs []string
	seen := make(map[string]bool)
	for _, m := range relationRe.FindAllStringSubmatch(sql, -1) {
		ref := strings.ToLower(m[1])
		if sqlBuiltins[ref] || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

var sqlCommentRe = regexp.MustCompile(`(?s)--[^\n]*|/\*.*?\*/`)

func stripComments(sql string) string {
	return sqlCommentRe.ReplaceAllString(sql, " ")
}

// LintViews flags references to relations that are neither schema entities
// nor other materialized views in the set.
func LintViews(views []ViewFile, reg *schema.Registry) []Finding {
	viewNames := make(map[string]bool, len(views))
	for _, v := range views {
		viewNames[v.Name] = true
	}

	var findings []Finding
	for _, v := range views {
		for _, ref := range v.Refs {
			if reg.Has(ref) || viewNames[bareName(ref)] {
				continue
			}
			findings = append(findings, Finding{View: v.Name, Relation: ref, Path: v.Path})
		}
	}
	return findings
}

// RefreshScript renders REFRESH statements for every view, sorted by view
// name so the script is stable across runs.
func RefreshScript(views []ViewFile, concurrently bool) string {
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}
	sort.Strings(names)

	mode := ""
	if concurrently {
		mode = "CONCURRENTLY "
	}

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "REFRESH MATERIALIZED VIEW %s%s;\n", mode, name)
	}
	return b.String()
}

func bareName(ref string) string {
	if i := strings.LastIndex(ref, "."); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
