// Package syncer reconciles the local work queue with the review server.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"revq/internal/ledger"
	"revq/internal/logging"
	"revq/internal/queue"
	"revq/internal/review"
	"revq/internal/reviewboard"
)

// Lister fetches the pending change requests from the review server.
type Lister interface {
	ListPending(ctx context.Context, opts reviewboard.ListOptions) ([]review.PendingReview, error)
}

// Options narrows a sync pass.
type Options struct {
	Days       int
	Limit      int
	Repository string
	Author     string
	Prune      bool
}

// Counts summarizes what a sync pass did.
type Counts struct {
	Fetched   int
	Inserted  int
	Reset     int
	Unchanged int
	Analyzed  int
	Pruned    int
}

// Syncer applies the server's pending set to the local queue.
type Syncer struct {
	client Lister
	store  *queue.Store
	ledger *ledger.Store
	logger *slog.Logger
}

// New constructs a syncer. A nil logger disables logging.
func New(client Lister, store *queue.Store, ledgerStore *ledger.Store, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Syncer{client: client, store: store, ledger: ledgerStore, logger: logger}
}

// Sync fetches the pending set and reconciles the queue against it. A server
// failure aborts the whole pass; rows already upserted are kept, so a later
// re-run converges without losing work.
func (s *Syncer) Sync(ctx context.Context, opts Options) (Counts, error) {
	var counts Counts

	pending, err := s.client.ListPending(ctx, reviewboard.ListOptions{
		Days:       opts.Days,
		Limit:      opts.Limit,
		Repository: opts.Repository,
		Author:     opts.Author,
	})
	if err != nil {
		return counts, fmt.Errorf("fetch pending reviews: %w", err)
	}
	counts.Fetched = len(pending)
	s.logger.Info("fetched pending reviews", logging.Int("count", len(pending)))

	seen := make(map[int64]bool, len(pending))
	for _, pr := range pending {
		seen[pr.RequestID] = true

		analyzed, err := s.alreadyAnalyzed(ctx, pr)
		if err != nil {
			return counts, err
		}
		if analyzed {
			// A real analysis for this exact revision exists. Refresh the
			// row's metadata but leave its status alone.
			if _, err := s.store.Upsert(ctx, pr); err != nil {
				return counts, fmt.Errorf("refresh request %d: %w", pr.RequestID, err)
			}
			counts.Analyzed++
			s.logger.Debug("already analyzed",
				logging.Int64(logging.FieldRequest, pr.RequestID),
				logging.Int(logging.FieldRevision, pr.DiffRevision))
			continue
		}

		action, err := s.store.Upsert(ctx, pr)
		if err != nil {
			return counts, fmt.Errorf("upsert request %d: %w", pr.RequestID, err)
		}
		switch action {
		case queue.UpsertInserted:
			counts.Inserted++
		case queue.UpsertReset:
			counts.Reset++
		default:
			counts.Unchanged++
		}
		s.logger.Debug("reconciled request",
			logging.Int64(logging.FieldRequest, pr.RequestID),
			logging.Int(logging.FieldRevision, pr.DiffRevision),
			logging.String("action", string(action)))
	}

	if opts.Prune {
		pruned, err := s.prune(ctx, seen, opts)
		if err != nil {
			return counts, err
		}
		counts.Pruned = pruned
	}

	s.logger.Info("sync complete",
		logging.Int("fetched", counts.Fetched),
		logging.Int("inserted", counts.Inserted),
		logging.Int("reset", counts.Reset),
		logging.Int("unchanged", counts.Unchanged),
		logging.Int("already_analyzed", counts.Analyzed),
		logging.Int("pruned", counts.Pruned))
	return counts, nil
}

// alreadyAnalyzed reports whether a real (non-fake) analysis exists for the
// request at the revision the server currently advertises, and the queue row
// is still at that same revision. A revision bump always goes back through
// the normal upsert path so the item is re-analyzed.
func (s *Syncer) alreadyAnalyzed(ctx context.Context, pr review.PendingReview) (bool, error) {
	if s.ledger == nil {
		return false, nil
	}
	item, err := s.store.Get(ctx, pr.RequestID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load request %d: %w", pr.RequestID, err)
	}
	if item.DiffRevision != pr.DiffRevision {
		return false, nil
	}
	analyzed, err := s.ledger.HasReal(ctx, pr.RequestID, pr.DiffRevision)
	if err != nil {
		return false, fmt.Errorf("check analysis ledger for request %d: %w", pr.RequestID, err)
	}
	return analyzed, nil
}

// prune removes rows the server no longer reports. Only waiting rows go;
// anything in flight or finished keeps its history.
func (s *Syncer) prune(ctx context.Context, seen map[int64]bool, opts Options) (int, error) {
	items, err := s.store.List(ctx, queue.Filter{Repository: opts.Repository})
	if err != nil {
		return 0, fmt.Errorf("list queue for prune: %w", err)
	}
	pruned := 0
	for _, item := range items {
		if seen[item.RequestID] {
			continue
		}
		if !item.Status.Prunable() {
			continue
		}
		deleted, err := s.store.Delete(ctx, item.RequestID)
		if err != nil {
			return pruned, fmt.Errorf("prune request %d: %w", item.RequestID, err)
		}
		if deleted {
			pruned++
			s.logger.Debug("pruned request",
				logging.Int64(logging.FieldRequest, item.RequestID),
				logging.String(logging.FieldStatus, string(item.Status)))
		}
	}
	return pruned, nil
}
