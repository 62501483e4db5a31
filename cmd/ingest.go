package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newIngestCmd creates the 'ingest' subcommand. It runs exactly one
// ingestion cycle synchronously and exits.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Runs one ingestion cycle over the configured sources",
		Long: `Discovers job postings from every configured source, normalizes
and tags them, and reconciles them into the store. The run record with
final status and counters is written regardless of outcome.`,

		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	run, err := appInstance.Runner().Run(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run ingestion: %w", err)
	}

	appInstance.Logger().Info("ingestion finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("jobs_scraped", run.Counters.JobsScraped),
		zap.Int("duplicates_found", run.Counters.DuplicatesFound),
		zap.Int("errors_count", run.Counters.ErrorsCount),
	)
	return nil
}
