package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newAggregateCmd creates the 'aggregate' subcommand. It rebuilds the
// regional summary table from current job and occurrence data.
func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuilds the regional summary table",

		RunE: runAggregateCommand,
	}
}

func runAggregateCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	stats, err := appInstance.Aggregator().Rebuild(cmd.Context())
	if err != nil {
		return fmt.Errorf("rebuild summaries: %w", err)
	}

	appInstance.Logger().Info("summary rebuild finished",
		zap.Int("groups", stats.Groups),
		zap.Int("upserted", stats.Upserted),
		zap.Int("skipped", stats.Skipped),
	)
	return nil
}
