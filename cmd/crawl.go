package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs the configured job
// file once.
func newCrawlCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every topic in the job file",
		Long: `Loads the job file, scrapes the proxy list, and crawls each topic's
modifiers in order while topics run in parallel. Malformed job entries are
skipped and reported. The command fails when the job file itself is missing
or unreadable; with --strict it also fails when any topic fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any topic fails")
	return cmd
}

func runCrawl(cmd *cobra.Command, strict bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	res, err := appInstance.Crawl(cmd.Context())
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	report := res.Report
	for _, r := range report.Results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tbatches=%d\titems=%d\tdropped=%d\n",
			r.Topic, r.BatchesStored, r.ItemsStored, r.ItemsDropped)
	}
	failed := report.Failed()
	logger.Info("crawl finished",
		zap.String("run_id", report.RunID),
		zap.Int("topics", len(report.Results)),
		zap.Int("failed", len(failed)),
		zap.Int("skipped_entries", len(res.TopicErrors)),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	if errors.Is(cmd.Context().Err(), context.Canceled) {
		return nil
	}
	if strict && len(failed) > 0 {
		return fmt.Errorf("%d of %d topics failed: %w", len(failed), len(report.Results), report.Err())
	}
	return nil
}
