package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/mview"
)

// ViewsOptions holds flags for the views command.
type ViewsOptions struct {
	*RootOptions
	ViewsDir     string
	RefreshOut   string
	Concurrently bool
}

// ViewsResult holds view lint results for JSON output.
type ViewsResult struct {
	Views      []mview.ViewFile `json:"views"`
	Findings   []mview.Finding  `json:"findings,omitempty"`
	RefreshOut string           `json:"refresh_out,omitempty"`
}

// NewViewsCommand creates the views command.
func NewViewsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "views [schema-dir]",
		Short: "Lint materialized-view SQL against the schema corpus",
		Long: `Scan the materialized-view directory for .sql files and check that
every relation referenced in a FROM or JOIN clause is either an entity
table or another view in the set.

With --refresh-out, also render a REFRESH MATERIALIZED VIEW script
covering every view, sorted by name.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViews(opts, schemaDir(rootOpts, args), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ViewsDir, "views-dir", "", "materialized-view directory (default from config, then materialized_view)")
	cmd.Flags().StringVar(&opts.RefreshOut, "refresh-out", "", "write a refresh script to this path (- for stdout)")
	cmd.Flags().BoolVar(&opts.Concurrently, "concurrently", false, "refresh with CONCURRENTLY")

	return cmd
}

func runViews(opts *ViewsOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

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

	views, err := mview.ScanViews(viewsDir)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	if len(views) == 0 {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("no .sql files found in %s", viewsDir))
	}

	formatter.VerboseLog("Found %d view file(s) in %s", len(views), viewsDir)

	findings := mview.LintViews(views, loadResult.Registry)
	result := ViewsResult{Views: views, Findings: findings}

	if opts.RefreshOut != "" {
		script := mview.RefreshScript(views, opts.Concurrently)
		if opts.RefreshOut == "-" {
			if formatter.Format != "json" {
				fmt.Fprint(formatter.Writer, script)
			}
		} else {
			if err := os.WriteFile(opts.RefreshOut, []byte(script), 0644); err != nil {
				return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing %s: %v", opts.RefreshOut, err))
			}
			result.RefreshOut = opts.RefreshOut
		}
	}

	if formatter.Format == "json" {
		if len(findings) == 0 {
			return formatter.Success(result)
		}
		_ = formatter.Error(ErrCodeGeneric,
			fmt.Sprintf("%d unresolved relation(s)", len(findings)), result)
		return NewExitError(ExitFailure, fmt.Sprintf("%d unresolved relation(s)", len(findings)))
	}

	if result.RefreshOut != "" {
		fmt.Fprintf(formatter.Writer, "Wrote refresh script to %s\n", result.RefreshOut)
	}

	if len(findings) == 0 {
		fmt.Fprintf(formatter.Writer, "✓ %d view(s) resolve against %d entities\n",
			len(views), len(loadResult.Registry.Entities))
		return nil
	}

	fmt.Fprintln(formatter.Writer, "✗ Unresolved relations")
	fmt.Fprintln(formatter.Writer)
	for _, f := range findings {
		fmt.Fprintf(formatter.Writer, "  %s (%s)\n", f.Error(), f.Path)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d unresolved relation(s)", len(findings)))
}
