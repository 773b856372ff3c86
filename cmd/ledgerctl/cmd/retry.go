package cmd

import (
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/bootstrap"
	"github.com/spf13/cobra"
)

var retryFlags struct {
	olderThan time.Duration
	limit     int
	list      bool
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry ballots that were accepted but never confirmed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := bootstrap.OpenStore(ctx, e.logger, e.cfg.Database, "ledgerctl")
		if err != nil {
			return err
		}
		defer store.Close()

		voting, err := bootstrap.NewVoting(e.cfg, store, e.ledger, nil, e.logger)
		if err != nil {
			return err
		}
		if retryFlags.list {
			pending, err := voting.Service.PendingVotes(ctx, retryFlags.olderThan, retryFlags.limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"pending": len(pending)})
		}

		sweeper := ballot.NewSweeper(voting.Service, e.cfg.Retrier.Workers, e.logger)
		defer sweeper.Close()
		report, err := sweeper.Run(ctx, retryFlags.olderThan, retryFlags.limit)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

func init() {
	retryCmd.Flags().DurationVar(&retryFlags.olderThan, "older-than", time.Minute, "only ballots accepted at least this long ago")
	retryCmd.Flags().IntVar(&retryFlags.limit, "limit", 100, "maximum ballots per run")
	retryCmd.Flags().BoolVar(&retryFlags.list, "list", false, "count pending ballots without retrying")
}
