package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"revq/internal/config"
	"revq/internal/ledger"
	"revq/internal/queue"
)

func parseRequestIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid request id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		repository string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued review requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				filter := queue.Filter{Repository: repository, Limit: limit}
				if statusFlag != "" {
					status, ok := queue.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFlag)
					}
					filter.Status = status
				}

				items, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.RequestID, 10),
						strconv.Itoa(item.DiffRevision),
						statusCell(item.Status, colorize),
						item.Repository,
						item.Author,
						truncate(item.Summary, 48),
						item.LastSyncedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				table := renderTable(
					[]string{"Request", "Rev", "Status", "Repository", "Author", "Summary", "Synced"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only list items with this status")
	cmd.Flags().StringVar(&repository, "repo", "", "Only list items for this repository")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show one queued request in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRequestIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) error {
				item, err := store.Get(cmd.Context(), ids[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Request:       r/%d\n", item.RequestID)
				fmt.Fprintf(out, "Diff revision: %d\n", item.DiffRevision)
				fmt.Fprintf(out, "Status:        %s\n", statusCell(item.Status, shouldColorize(out)))
				fmt.Fprintf(out, "Repository:    %s\n", item.Repository)
				fmt.Fprintf(out, "Author:        %s\n", item.Author)
				fmt.Fprintf(out, "Summary:       %s\n", item.Summary)
				if item.Branch != "" {
					fmt.Fprintf(out, "Branch:        %s\n", item.Branch)
				}
				if item.BaseCommit != "" {
					fmt.Fprintf(out, "Base commit:   %s\n", item.BaseCommit)
				}
				fmt.Fprintf(out, "Created:       %s\n", item.CreatedAt.Local().Format(time.RFC1123))
				fmt.Fprintf(out, "Updated:       %s\n", item.UpdatedAt.Local().Format(time.RFC1123))
				fmt.Fprintf(out, "Last synced:   %s\n", item.LastSyncedAt.Local().Format(time.RFC1123))
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:         %s\n", item.ErrorMessage)
				}

				if item.AnalysisID != nil {
					analysis, err := ledgerStore.Find(cmd.Context(), item.RequestID, item.DiffRevision)
					if err != nil {
						return err
					}
					if analysis != nil {
						fmt.Fprintf(out, "Analysis:      #%d (%s, %s, %d issue(s))\n",
							analysis.ID, analysis.Method, analysis.Model, analysis.IssueCount)
						if analysis.Summary != "" {
							fmt.Fprintf(out, "  %s\n", analysis.Summary)
						}
					}
				}
				return nil
			})
		},
	}
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "set <request-id>...",
		Short: "Change the status of queued requests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRequestIDs(args)
			if err != nil {
				return err
			}
			status, ok := queue.ParseStatus(statusFlag)
			if !ok {
				return fmt.Errorf("unknown status %q", statusFlag)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					prev, err := store.SetStatus(cmd.Context(), id, status)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "r/%d: %s -> %s\n", id, prev, status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Target status (todo, next, ignore, ...)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <request-id>...",
		Short: "Remove requests from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRequestIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					deleted, err := store.Delete(cmd.Context(), id)
					if err != nil {
						return err
					}
					if deleted {
						fmt.Fprintf(out, "Deleted r/%d\n", id)
					} else {
						fmt.Fprintf(out, "r/%d not in queue\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [request-id]...",
		Short: "Move failed requests back to next",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRequestIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed item(s).\n", count)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				statuses := make([]queue.Status, 0, len(stats))
				total := 0
				for status, count := range stats {
					statuses = append(statuses, status)
					total += count
				}
				sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(statuses)+1)
				for _, status := range statuses {
					rows = append(rows, []string{statusCell(status, colorize), strconv.Itoa(stats[status])})
				}
				rows = append(rows, []string{"total", strconv.Itoa(total)})
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, table)

				analyses, fakes, err := ledgerStore.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Recorded analyses: %d (%d fake)\n", analyses, fakes)
				return nil
			})
		},
	}
}

func newClearFakesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-fakes",
		Short: "Delete canned analysis records from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) error {
				count, err := ledgerStore.DeleteFakes(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d fake analysis record(s).\n", count)
				return nil
			})
		},
	}
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
