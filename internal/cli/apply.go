package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datakelola/skema/internal/ddl"
	"github.com/datakelola/skema/internal/ledger"
	"github.com/datakelola/skema/internal/lint"
	"github.com/datakelola/skema/internal/logging"
	"github.com/datakelola/skema/internal/pg"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	sqlFlags
	DBURL      string
	LedgerPath string
	Force      bool
	Timeout    time.Duration
}

// ApplyResult holds apply results for JSON output.
type ApplyResult struct {
	RunID             string `json:"run_id"`
	Target            string `json:"target"`
	Applied           int    `json:"applied"`
	Unchanged         int    `json:"unchanged"`
	SkippedStatements int    `json:"skipped_statements"` // objects that already existed
	FailedEntity      string `json:"failed_entity,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [schema-dir]",
		Short: "Apply generated DDL to PostgreSQL",
		Long: `Generate DDL from the entity schema corpus and execute it against
PostgreSQL. Objects that already exist are skipped, so re-applying the same
corpus is idempotent.

Every run is recorded in a local SQLite ledger. Entities whose rendered DDL
is unchanged since the last applied run are skipped unless --force is set.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, schemaDir(rootOpts, args), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBURL, "db-url", "", "PostgreSQL DSN (default from config or SKEMA_DATABASE_URL)")
	cmd.Flags().StringVar(&opts.LedgerPath, "ledger", "", "apply-ledger path (default from config, then skema.db)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "re-apply entities even when their DDL is unchanged")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "overall apply timeout")
	opts.sqlFlags.register(cmd)

	return cmd
}

func runApply(opts *ApplyOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	dsn := opts.DBURL
	if dsn == "" && opts.Config != nil {
		dsn = opts.Config.Database.URL
	}
	if dsn == "" {
		return outputCommandError(formatter, ErrCodeDatabase, "no database URL: set --db-url, database.url in skema.yaml, or SKEMA_DATABASE_URL")
	}
	ledgerPath := opts.LedgerPath
	if ledgerPath == "" && opts.Config != nil {
		ledgerPath = opts.Config.Ledger.Path
	}
	if ledgerPath == "" {
		ledgerPath = "skema.db"
	}

	loadResult, loadErrors := LoadCorpus(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCommandError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCommandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	// A corpus with hard lint failures never reaches the database.
	if hard := lint.HardIssues(lint.Run(loadResult.Registry, lint.Options{})); len(hard) > 0 {
		result := LintResult{Issues: hard, Entities: len(loadResult.Registry.Entities), Files: loadResult.FileCount}
		return outputLintIssues(formatter, result)
	}

	log, err := newApplyLogger(opts)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	defer log.Sync() //nolint:errcheck // stderr sync failures are harmless

	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return outputCommandError(formatter, ErrCodeLedger, err.Error())
	}
	defer led.Close()

	db, err := pg.Open(dsn)
	if err != nil {
		return outputCommandError(formatter, ErrCodeDatabase, fmt.Sprintf("connecting to %s: %v", redactDSN(dsn), err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	ddlOpts := opts.sqlFlags.options(cmd, opts.Config)
	log.Info("starting apply",
		zap.String("target", redactDSN(dsn)),
		zap.Int("entities", len(loadResult.Registry.Entities)))

	// Extensions go first and are not tracked per entity.
	if prologue := ddl.Extensions(ddlOpts); len(prologue) > 0 {
		if _, err := pg.Apply(ctx, db, log, prologue); err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, fmt.Sprintf("creating extensions: %v", err))
		}
	}

	run := ledger.Run{
		ID:        uuid.NewString(),
		Target:    redactDSN(dsn),
		StartedAt: time.Now().UTC(),
		Outcome:   "ok",
	}
	result := ApplyResult{RunID: run.ID, Target: run.Target}

	var (
		records  []ledger.Statement
		applyErr error
	)
	for _, e := range loadResult.Registry.Entities {
		stmts, err := ddl.Statements(e, ddlOpts)
		if err != nil {
			applyErr = err
			result.FailedEntity = e.TechnicalName
			records = append(records, ledger.Statement{Entity: e.TechnicalName, Status: ledger.StatusFailed})
			break
		}
		hash := ledger.StatementHash(strings.Join(stmts, "\n"))

		if !opts.Force {
			last, ok, err := led.LastAppliedHash(ctx, e.TechnicalName)
			if err != nil {
				return outputCommandError(formatter, ErrCodeLedger, err.Error())
			}
			if ok && last == hash {
				log.Debug("entity unchanged", zap.String("entity", e.TechnicalName))
				records = append(records, ledger.Statement{Entity: e.TechnicalName, Hash: hash, Status: ledger.StatusUnchanged})
				result.Unchanged++
				continue
			}
		}

		skipped, err := pg.Apply(ctx, db, log, stmts)
		result.SkippedStatements += skipped
		if err != nil {
			applyErr = err
			result.FailedEntity = e.TechnicalName
			records = append(records, ledger.Statement{Entity: e.TechnicalName, Hash: hash, Status: ledger.StatusFailed})
			break
		}
		log.Info("entity applied", zap.String("entity", e.TechnicalName), zap.Int("statements", len(stmts)))
		records = append(records, ledger.Statement{Entity: e.TechnicalName, Hash: hash, Status: ledger.StatusApplied})
		result.Applied++
	}

	run.FinishedAt = time.Now().UTC()
	if applyErr != nil {
		run.Outcome = "failed"
	}
	// Record against a fresh context: the apply timeout may already be spent.
	recordCtx, recordCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer recordCancel()
	if err := led.RecordRun(recordCtx, run, records); err != nil {
		return outputCommandError(formatter, ErrCodeLedger, err.Error())
	}

	if applyErr != nil {
		_ = formatter.Error(ErrCodeDatabase,
			fmt.Sprintf("apply failed at entity %s: %v", result.FailedEntity, applyErr), result)
		return NewExitError(ExitFailure, fmt.Sprintf("apply failed at entity %s", result.FailedEntity))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Applied %d entities (%d unchanged, %d existing objects skipped)\n",
		result.Applied, result.Unchanged, result.SkippedStatements)
	fmt.Fprintf(formatter.Writer, "Run %s recorded in %s\n", run.ID, ledgerPath)
	return nil
}

func newApplyLogger(opts *ApplyOptions) (*zap.Logger, error) {
	level, format := "info", "console"
	if opts.Config != nil {
		if opts.Config.Log.Level != "" {
			level = opts.Config.Log.Level
		}
		if opts.Config.Log.Format != "" {
			format = opts.Config.Log.Format
		}
	}
	if opts.Verbose {
		level = "debug"
	}
	return logging.New(level, format)
}

// redactDSN strips credentials from a DSN before it reaches logs or the
// ledger.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "postgres"
	}
	u.User = nil
	return u.String()
}
