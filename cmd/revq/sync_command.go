package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"revq/internal/config"
	"revq/internal/ledger"
	"revq/internal/queue"
	"revq/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		prune      bool
		noPrune    bool
		repository string
		author     string
		limit      int
		days       int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the queue with the review server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) error {
				s, err := ctx.newSyncer(cfg, store, ledgerStore)
				if err != nil {
					return err
				}

				opts := syncer.Options{
					Days:       days,
					Limit:      limit,
					Repository: repository,
					Author:     author,
					Prune:      prune && !noPrune,
				}
				if opts.Days == 0 {
					opts.Days = cfg.Queue.SyncDays
				}
				if opts.Limit == 0 {
					opts.Limit = cfg.Queue.SyncLimit
				}

				counts, err := s.Sync(cmd.Context(), opts)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Fetched %d pending review(s).\n", counts.Fetched)
				fmt.Fprintf(out, "  inserted: %d  reset: %d  unchanged: %d  already analyzed: %d\n",
					counts.Inserted, counts.Reset, counts.Unchanged, counts.Analyzed)
				if opts.Prune {
					fmt.Fprintf(out, "  pruned: %d\n", counts.Pruned)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", true, "Remove waiting rows no longer pending upstream")
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "Disable pruning for this pass")
	cmd.Flags().StringVar(&repository, "repo", "", "Only sync requests for this repository")
	cmd.Flags().StringVar(&author, "author", "", "Only sync requests from this author")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum requests to fetch (default from config)")
	cmd.Flags().IntVar(&days, "days", 0, "Only fetch requests updated in the last N days (default from config)")
	return cmd
}
