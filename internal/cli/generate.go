package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/ddl"
	"github.com/datakelola/skema/internal/lint"
	"github.com/datakelola/skema/internal/schema"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	sqlFlags
	Output string
	Strict bool
}

// GenerateResult holds generation results for JSON output.
type GenerateResult struct {
	Entities int      `json:"entities"`
	Failed   int      `json:"failed"`
	Output   string   `json:"output,omitempty"`
	Script   string   `json:"script,omitempty"` // only when writing to stdout
	Failures []string `json:"failures,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate [schema-dir]",
		Short: "Generate PostgreSQL DDL from entity schemas",
		Long: `Generate a PostgreSQL build script from the entity schema corpus.

Files render in sorted path order so the same corpus always produces the
same script. Entities that fail the hard lint rules (primary-key count,
forbidden or unknown types) are skipped and reported.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, schemaDir(rootOpts, args), cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "build.sql", "output file path (- for stdout)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "stop at the first failing file")
	opts.sqlFlags.register(cmd)

	return cmd
}

func runGenerate(opts *GenerateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	mode := LoadModeCollectAll
	if opts.Strict {
		mode = LoadModeFailFast
	}
	loadResult, loadErrors := LoadCorpus(dir, mode)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCommandError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCommandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}
	if opts.Strict && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCommandError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCommandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d YAML file(s) in %s", loadResult.FileCount, dir)

	var failures []string
	for _, err := range loadErrors {
		failures = append(failures, err.Error())
	}

	entities, hardFailures := excludeUngeneratable(loadResult.Registry)
	failures = append(failures, hardFailures...)
	if opts.Strict && len(failures) > 0 {
		return outputGenerateFailure(formatter, GenerateResult{Failures: failures, Failed: len(failures)})
	}

	script, scriptErrs := ddl.Script(entities, opts.sqlFlags.options(cmd, opts.Config))
	for _, err := range scriptErrs {
		failures = append(failures, err.Error())
	}
	if opts.Strict && len(failures) > 0 {
		return outputGenerateFailure(formatter, GenerateResult{Failures: failures, Failed: len(failures)})
	}

	result := GenerateResult{
		Entities: len(entities) - len(scriptErrs),
		Failed:   len(failures),
		Failures: failures,
	}

	if opts.Output == "-" {
		if formatter.Format == "json" {
			result.Script = script
		} else {
			fmt.Fprint(formatter.Writer, script)
		}
	} else {
		if err := os.WriteFile(opts.Output, []byte(script), 0644); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing %s: %v", opts.Output, err))
		}
		result.Output = opts.Output
	}

	if len(failures) > 0 {
		return outputGenerateFailure(formatter, result)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Output != "-" {
		fmt.Fprintf(formatter.Writer, "✓ Generated DDL for %d entities\n", result.Entities)
		fmt.Fprintf(formatter.Writer, "Wrote build script to %s\n", opts.Output)
	}
	return nil
}

// excludeUngeneratable filters out entities with hard lint failures and
// returns the failure messages alongside the generatable entities.
func excludeUngeneratable(reg *schema.Registry) ([]*schema.Entity, []string) {
	hard := lint.HardIssues(lint.Run(reg, lint.Options{}))
	bad := make(map[string]bool)
	var failures []string
	for _, issue := range hard {
		bad[issue.Entity] = true
		failures = append(failures, issue.Error())
	}

	var entities []*schema.Entity
	for _, e := range reg.Entities {
		if !bad[e.TechnicalName] {
			entities = append(entities, e)
		}
	}
	return entities, failures
}

func outputGenerateFailure(formatter *OutputFormatter, result GenerateResult) error {
	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("generation failed for %d entit(ies)", result.Failed), result)
		return NewExitError(ExitFailure, fmt.Sprintf("generation failed with %d error(s)", result.Failed))
	}

	fmt.Fprintln(formatter.Writer, "✗ Generation completed with errors")
	fmt.Fprintln(formatter.Writer)
	for _, f := range result.Failures {
		fmt.Fprintf(formatter.Writer, "  %s\n", f)
	}
	fmt.Fprintln(formatter.Writer)
	if result.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote partial build script to %s\n", result.Output)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("generation failed with %d error(s)", result.Failed))
}
