package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"revq/internal/chain"
	"revq/internal/config"
	"revq/internal/ledger"
	"revq/internal/queue"
	"revq/internal/runner"
	"revq/internal/syncer"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		limit     int
		submit    bool
		dryRun    bool
		fake      bool
		chainFile string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Analyze queued requests with status next",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) error {
				r, err := ctx.newRunner(cfg, store, ledgerStore, fake)
				if err != nil {
					return err
				}

				opts := runner.Options{
					Limit:  limit,
					Submit: submit,
					DryRun: dryRun,
				}
				if opts.Limit == 0 {
					opts.Limit = cfg.Queue.ProcessCount
				}
				if chainFile != "" {
					ids, err := chain.LoadFile(chainFile)
					if err != nil {
						return err
					}
					opts.ChainIDs = ids
				}

				summary, err := r.Run(cmd.Context(), opts)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if summary.Reset > 0 {
					fmt.Fprintf(out, "Recovered %d stale in-progress item(s).\n", summary.Reset)
				}
				if dryRun {
					if len(summary.Candidates) == 0 {
						fmt.Fprintln(out, "Nothing to process.")
						return nil
					}
					fmt.Fprintln(out, "Would process:")
					for _, id := range summary.Candidates {
						fmt.Fprintf(out, "  r/%d\n", id)
					}
					return nil
				}
				if len(summary.Candidates) == 0 {
					fmt.Fprintln(out, "No items with status next to process.")
					return nil
				}
				fmt.Fprintf(out, "Processed %d item(s): %d succeeded, %d skipped, %d failed.\n",
					summary.Processed, summary.Succeeded, summary.Skipped, summary.Failed)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items to process (default from config)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Publish reviews after successful analysis")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be processed without analyzing")
	cmd.Flags().BoolVar(&fake, "fake", false, "Record canned results instead of calling the model")
	cmd.Flags().StringVar(&chainFile, "chain-file", "", "File with explicit request ordering, base first")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		intervalSeconds int
		submit          bool
		fake            bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically sync and process pending reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) error {
				r, err := ctx.newRunner(cfg, store, ledgerStore, fake)
				if err != nil {
					return err
				}
				s, err := ctx.newSyncer(cfg, store, ledgerStore)
				if err != nil {
					return err
				}

				interval := time.Duration(intervalSeconds) * time.Second
				if intervalSeconds == 0 {
					interval = time.Duration(cfg.Workflow.PollInterval) * time.Second
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				fmt.Fprintf(cmd.OutOrStdout(), "Watching every %s. Press Ctrl+C to stop.\n", interval)
				syncOpts := syncer.Options{
					Days:  cfg.Queue.SyncDays,
					Limit: cfg.Queue.SyncLimit,
					Prune: true,
				}
				runOpts := runner.Options{
					Limit:  cfg.Queue.ProcessCount,
					Submit: submit,
				}
				err = r.Watch(runCtx, s, interval, syncOpts, runOpts)
				if runCtx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&intervalSeconds, "interval", 0, "Seconds between passes (default from config)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Publish reviews after successful analysis")
	cmd.Flags().BoolVar(&fake, "fake", false, "Record canned results instead of calling the model")
	return cmd
}
