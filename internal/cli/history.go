package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	LedgerPath string
	Limit      int
}

// HistoryRun is one run with its per-entity outcomes.
type HistoryRun struct {
	ledger.Run
	Statements []ledger.Statement `json:"statements,omitempty"`
}

// HistoryResult holds history output.
type HistoryResult struct {
	Ledger string       `json:"ledger"`
	Runs   []HistoryRun `json:"runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent apply runs from the ledger",
		Long: `List recent apply runs recorded in the local SQLite ledger, newest
first, with the per-entity outcome of each run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.LedgerPath, "ledger", "", "apply-ledger path (default from config, then skema.db)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum number of runs to show")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ledgerPath := opts.LedgerPath
	if ledgerPath == "" && opts.Config != nil {
		ledgerPath = opts.Config.Ledger.Path
	}
	if ledgerPath == "" {
		ledgerPath = "skema.db"
	}

	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return outputCommandError(formatter, ErrCodeLedger, err.Error())
	}
	defer led.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	runs, err := led.RecentRuns(ctx, opts.Limit)
	if err != nil {
		return outputCommandError(formatter, ErrCodeLedger, err.Error())
	}

	result := HistoryResult{Ledger: ledgerPath}
	for _, r := range runs {
		stmts, err := led.RunStatements(ctx, r.ID)
		if err != nil {
			return outputCommandError(formatter, ErrCodeLedger, err.Error())
		}
		result.Runs = append(result.Runs, HistoryRun{Run: r, Statements: stmts})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if len(result.Runs) == 0 {
		fmt.Fprintf(formatter.Writer, "No runs recorded in %s\n", ledgerPath)
		return nil
	}

	for _, r := range result.Runs {
		fmt.Fprintf(formatter.Writer, "%s  %s  %s  (%s, %s)\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Outcome, r.Target,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		for _, s := range r.Statements {
			fmt.Fprintf(formatter.Writer, "    %-10s %s\n", s.Status, s.Entity)
		}
	}
	return nil
}
