package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/fkpatch"
	"github.com/datakelola/skema/internal/fkreport"
)

// NewFKCommand creates the fk command group.
func NewFKCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fk",
		Short: "Inspect and repair foreign-key references",
	}

	cmd.AddCommand(newFKReportCommand(rootOpts))
	cmd.AddCommand(newFKPatchCommand(rootOpts))

	return cmd
}

func newFKReportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report [schema-dir]",
		Short: "Report foreign-key candidates with missing targets",
		Long: `Scan raw schema documents for foreign-key references and report the
candidates whose target table does not exist anywhere in the corpus.

The scan is deliberately looser than lint: it recognizes the legacy
reference spellings (ref_table, references, relation, many2one) so old
documents still get checked.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFKReport(rootOpts, schemaDir(rootOpts, args), out, cmd)
		},
	}

	cmd.Flags().StringVar(&out, "out", "fk_report.txt", "report file path (- for stdout only)")

	return cmd
}

func runFKReport(opts *RootOptions, dir, out string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	report, err := fkreport.Scan(dir)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Detected %d tables, %d FK candidates", len(report.Tables), len(report.Candidates))

	if out != "-" {
		var buf strings.Builder
		if err := report.Write(&buf); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
		}
		if err := os.WriteFile(out, []byte(buf.String()), 0644); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing %s: %v", out, err))
		}
	}

	if formatter.Format == "json" {
		if report.Clean() {
			return formatter.Success(report)
		}
		_ = formatter.Error(ErrCodeGeneric,
			fmt.Sprintf("%d FK target(s) missing", len(report.Missing)), report)
		return NewExitError(ExitFailure, fmt.Sprintf("%d FK target(s) missing", len(report.Missing)))
	}

	if out == "-" {
		if err := report.Write(formatter.Writer); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "Wrote report to %s\n", out)
	}

	if report.Clean() {
		fmt.Fprintf(formatter.Writer, "✓ All %d FK candidates resolve (%d tables)\n",
			len(report.Candidates), len(report.Tables))
		return nil
	}

	fmt.Fprintf(formatter.Writer, "✗ %d FK target(s) missing\n", len(report.Missing))
	for _, m := range report.Missing {
		fmt.Fprintf(formatter.Writer, "  [%s] %s -> %s (file: %s)\n", m.Table, m.Field, m.Target, m.File)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d FK target(s) missing", len(report.Missing)))
}

func newFKPatchCommand(rootOpts *RootOptions) *cobra.Command {
	var mapPath string

	cmd := &cobra.Command{
		Use:   "patch [schema-dir]",
		Short: "Patch missing foreign-key references from a map file",
		Long: `Apply a patch map (a YAML list of {file, field, ref_table}) to the
schema corpus. Each field gets its reference set in place; comments and
key order in the edited files survive, and a .bak copy is written before
the first change to each file.

Fields not found in their mapped file are searched for across the whole
directory before being reported as not found.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFKPatch(rootOpts, schemaDir(rootOpts, args), mapPath, cmd)
		},
	}

	cmd.Flags().StringVar(&mapPath, "map", "patches.yaml", "patch map file")

	return cmd
}

func runFKPatch(opts *RootOptions, dir, mapPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	targets, err := fkpatch.LoadTargets(mapPath)
	if err != nil {
		return outputCommandError(formatter, ErrCodeParseFailed, err.Error())
	}
	if len(targets) == 0 {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("%s: no patch targets", mapPath))
	}

	formatter.VerboseLog("Loaded %d patch target(s) from %s", len(targets), mapPath)

	result, err := fkpatch.Apply(dir, targets)
	if err != nil {
		return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
	}

	if formatter.Format == "json" {
		if len(result.NotFound) == 0 {
			return formatter.Success(result)
		}
		_ = formatter.Error(ErrCodeGeneric,
			fmt.Sprintf("%d patch target(s) not found", len(result.NotFound)), result)
		return NewExitError(ExitFailure, fmt.Sprintf("%d patch target(s) not found", len(result.NotFound)))
	}

	for _, p := range result.Patched {
		note := ""
		if p.Fallback {
			note = " (found by directory scan)"
		}
		fmt.Fprintf(formatter.Writer, "  patched %s: %s -> %s (%d change(s))%s\n",
			p.File, p.Field, p.RefTable, p.Changes, note)
	}

	if len(result.NotFound) == 0 {
		fmt.Fprintf(formatter.Writer, "✓ Patched %d target(s)\n", len(result.Patched))
		return nil
	}

	fmt.Fprintf(formatter.Writer, "✗ %d target(s) not found:\n", len(result.NotFound))
	for _, t := range result.NotFound {
		fmt.Fprintf(formatter.Writer, "  %s: %s -> %s\n", t.File, t.Field, t.RefTable)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d patch target(s) not found", len(result.NotFound)))
}
