package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/mview"
)

// ChartsOptions holds flags for the charts command.
type ChartsOptions struct {
	*RootOptions
	ChartsDir string
	ViewsDir  string
}

// ChartsResult holds chart lint results for JSON output.
type ChartsResult struct {
	Charts   []mview.Chart        `json:"charts"`
	Findings []mview.ChartFinding `json:"findings,omitempty"`
}

// NewChartsCommand creates the charts command.
func NewChartsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChartsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "charts [schema-dir]",
		Short: "Lint chart definitions against tables and views",
		Long: `Scan the chart directory for YAML chart definitions and check that
every chart names a dataset resolving to an entity table or a
materialized view.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharts(opts, schemaDir(rootOpts, args), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ChartsDir, "charts-dir", "", "chart directory (default from config, then charts)")
	cmd.Flags().StringVar(&opts.ViewsDir, "views-dir", "", "materialized-view directory (default from config, then materialized_view)")

	return cmd
}

func runCharts(opts *ChartsOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	chartsDir := opts.ChartsDir
	if chartsDir == "" && opts.Config != nil {
		chartsDir = opts.Config.ChartsDir
	}
	if chartsDir == "" {
		chartsDir = "charts"
	}
	viewsDir := opts.ViewsDir
	if viewsDir == "" && opts.Config != nil {
		viewsDir = opts.Config.ViewsDir
	}
	if viewsDir == "" {
		viewsDir = "materialized_view"
	}

	loadResult, loadErrors := LoadCorpus(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCommandError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCommandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	charts, err := mview.ScanCharts(chartsDir)
	if err != nil {
		return outputCommandError(formatter, ErrCodeParseFailed, err.Error())
	}
	if len(charts) == 0 {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("no chart files found in %s", chartsDir))
	}

	// Views are optional context: charts may sit directly on tables.
	views, err := mview.ScanViews(viewsDir)
	if err != nil {
		formatter.VerboseLog("Skipping views: %v", err)
		views = nil
	}

	formatter.VerboseLog("Found %d chart(s) in %s, %d view(s) in %s",
		len(charts), chartsDir, len(views), viewsDir)

	findings := mview.LintCharts(charts, loadResult.Registry, views)
	result := ChartsResult{Charts: charts, Findings: findings}

	if formatter.Format == "json" {
		if len(findings) == 0 {
			return formatter.Success(result)
		}
		_ = formatter.Error(ErrCodeGeneric,
			fmt.Sprintf("%d chart issue(s)", len(findings)), result)
		return NewExitError(ExitFailure, fmt.Sprintf("%d chart issue(s)", len(findings)))
	}

	if len(findings) == 0 {
		fmt.Fprintf(formatter.Writer, "✓ %d chart(s) resolve\n", len(charts))
		return nil
	}

	fmt.Fprintln(formatter.Writer, "✗ Chart issues")
	fmt.Fprintln(formatter.Writer)
	for _, f := range findings {
		fmt.Fprintf(formatter.Writer, "  %s (%s)\n", f.Error(), f.Path)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d chart issue(s)", len(findings)))
}
