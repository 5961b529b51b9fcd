package mview

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

// Chart is one BI chart definition. Charts sit on a dataset, which must be
// an entity table or a materialized view.
type Chart struct {
	Path    string `json:"path" yaml:"-"`
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type,omitempty" yaml:"type"`
	Dataset string `json:"dataset" yaml:"dataset"`
}

// ChartFinding is one problem with a chart definition.
type ChartFinding struct {
	Chart   string `json:"chart"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (f ChartFinding) Error() string {
	return fmt.Sprintf("%s: %s", f.Chart, f.Message)
}

// ScanCharts reads all chart YAML files under dir, sorted by path.
// Multi-document files hold one chart per document.
func ScanCharts(dir string) ([]Chart, error) {
	paths, err := schema.FindSchemaFiles(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var charts []Chart
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(f)
		for {
			var c Chart
			err := dec.Decode(&c)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			c.Path = path
			charts = append(charts, c)
		}
		f.Close()
	}
	return charts, nil
}

// LintCharts checks that every chart names a dataset and that the dataset
// resolves to a schema entity or a materialized view.
func LintCharts(charts []Chart, reg *schema.Registry, views []ViewFile) []ChartFinding {
	viewNames := make(map[string]bool, len(views))
	for _, v := range views {
		viewNames[v.Name] = true
	}

	var findings []ChartFinding
	for _, c := range charts {
		name := c.Name
		if name == "" {
			name = c.Path
		}
		dataset := strings.TrimSpace(c.Dataset)
		if dataset == "" {
			findings = append(findings, ChartFinding{
				Chart:   name,
				Path:    c.Path,
				Message: "chart has no dataset",
			})
			continue
		}
		if reg.Has(dataset) || viewNames[bareName(dataset)] {
			continue
		}
		findings = append(findings, ChartFinding{
			Chart:   name,
			Path:    c.Path,
			Message: fmt.Sprintf("dataset %q is neither an entity nor a materialized view", dataset),
		})
	}
	return findings
}
