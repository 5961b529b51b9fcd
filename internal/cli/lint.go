package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/lint"
)

// LintResult holds lint results for JSON output.
type LintResult struct {
	Clean    bool         `json:"clean"`
	Entities int          `json:"entities"`
	Files    int          `json:"files"`
	Issues   []lint.Issue `json:"issues,omitempty"`
}

// NewLintCommand creates the lint command.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	var requireComments bool

	cmd := &cobra.Command{
		Use:   "lint [schema-dir]",
		Short: "Lint entity schema files",
		Long: `Lint all entity schema files in a directory.

Checks document structure, primary-key discipline (exactly one pk field),
foreign-key resolution for *_id fields, snake_case naming, uniqueness of
entity names, and the allowed type set (serial is forbidden).`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lint.Options{RequireComments: requireComments}
			return runLint(rootOpts, schemaDir(rootOpts, args), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&requireComments, "require-comments", false, "flag entities without a comment")

	return cmd
}

func runLint(opts *RootOptions, dir string, lintOpts lint.Options, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadCorpus(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCommandError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCommandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d YAML file(s) in %s", loadResult.FileCount, dir)
	for _, e := range loadResult.Registry.Entities {
		formatter.VerboseLog("Linting entity: %s", e.TechnicalName)
	}

	issues := lint.Run(loadResult.Registry, lintOpts)

	// Load-time failures (unparseable files, duplicate entities) are
	// findings too; they must not hide the rest of the corpus.
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			issues = append(issues, lint.Issue{
				Path:    loadErr.Path,
				Code:    loadErr.Code,
				Message: loadErr.Message,
			})
		} else {
			issues = append(issues, lint.Issue{Code: ErrCodeGeneric, Message: err.Error()})
		}
	}

	result := LintResult{
		Clean:    len(issues) == 0,
		Entities: len(loadResult.Registry.Entities),
		Files:    loadResult.FileCount,
		Issues:   issues,
	}

	if len(issues) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ Schema corpus clean (%d entities in %d files)\n",
			result.Entities, result.Files)
		return nil
	}

	return outputLintIssues(formatter, result)
}

// outputLintIssues outputs findings and returns the failure exit error.
func outputLintIssues(formatter *OutputFormatter, result LintResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Issues[0].Code,
				Message: result.Issues[0].Message,
			},
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("lint failed with %d issue(s)", len(result.Issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Lint failed")
	fmt.Fprintln(formatter.Writer)

	lastPath := ""
	for _, issue := range result.Issues {
		if issue.Path != "" && issue.Path != lastPath {
			fmt.Fprintf(formatter.Writer, "%s\n", issue.Path)
			lastPath = issue.Path
		}
		fmt.Fprintf(formatter.Writer, "  %s\n", issue.Error())
	}
	fmt.Fprintln(formatter.Writer)

	return NewExitError(ExitFailure, fmt.Sprintf("lint failed with %d issue(s)", len(result.Issues)))
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
