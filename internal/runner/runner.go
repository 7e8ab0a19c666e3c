// Package runner drives analysis of queued change requests: crash-recovery
// sweep, dispatch in queue order, dependency chains, and result recording.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"revq/internal/analyzer"
	"revq/internal/chain"
	"revq/internal/ledger"
	"revq/internal/logging"
	"revq/internal/queue"
	"revq/internal/review"
)

// Server is the review-server surface the runner needs.
type Server interface {
	GetRequestInfo(ctx context.Context, requestID int64) (review.RequestInfo, error)
	GetDiff(ctx context.Context, requestID int64, revision int) (review.DiffInfo, error)
	PostReview(ctx context.Context, requestID int64, bodyTop string, comments []review.Comment, publish bool) error
}

// Options controls a processing pass.
type Options struct {
	Limit    int
	Submit   bool
	DryRun   bool
	ChainIDs []int64
}

// Summary reports what a pass did.
type Summary struct {
	Reset     int
	Processed int
	Succeeded int
	Skipped   int
	Failed    int

	// Candidates lists the request ids picked for this pass, before chain
	// expansion. Dry runs report them without touching anything.
	Candidates []int64
}

// Runner owns one processing session over the queue.
type Runner struct {
	store     *queue.Store
	ledger    *ledger.Store
	server    Server
	analyzer  analyzer.Analyzer
	logger    *slog.Logger
	lock      *flock.Flock
	sessionID string
}

// New constructs a runner. lockPath may be empty to disable locking.
// A nil logger disables logging.
func New(store *queue.Store, ledgerStore *ledger.Store, server Server, a analyzer.Analyzer, logger *slog.Logger, lockPath string) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		store:     store,
		ledger:    ledgerStore,
		server:    server,
		analyzer:  a,
		logger:    logger,
		sessionID: uuid.NewString(),
	}
	if lockPath != "" {
		r.lock = flock.New(lockPath)
	}
	return r
}

// SessionID identifies this runner's ledger entries.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Run executes one processing pass: sweep stale in-flight rows back to next,
// pick the oldest waiting items, and analyze each one. A failure on one item
// never stops the rest of the pass.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary

	if r.lock != nil {
		ok, err := r.lock.TryLock()
		if err != nil {
			return summary, fmt.Errorf("acquire process lock: %w", err)
		}
		if !ok {
			return summary, errors.New("another processing pass is already running")
		}
		defer func() {
			_ = r.lock.Unlock()
		}()
	}

	reset, err := r.store.ResetStaleInProgress(ctx)
	if err != nil {
		return summary, fmt.Errorf("recover stale items: %w", err)
	}
	summary.Reset = int(reset)
	if reset > 0 {
		r.logger.Info("recovered stale in-progress items", logging.Int64("count", reset))
	}

	candidates, err := r.store.PickNext(ctx, opts.Limit)
	if err != nil {
		return summary, fmt.Errorf("pick next items: %w", err)
	}
	for _, item := range candidates {
		summary.Candidates = append(summary.Candidates, item.RequestID)
	}

	if opts.DryRun {
		for _, item := range candidates {
			r.logger.Info("would process",
				logging.Int64(logging.FieldRequest, item.RequestID),
				logging.Int(logging.FieldRevision, item.DiffRevision))
		}
		return summary, nil
	}

	processed := make(map[int64]bool)
	for _, item := range candidates {
		if processed[item.RequestID] {
			continue
		}
		order, err := r.workOrder(ctx, item, opts)
		if err != nil {
			r.failItem(ctx, item.RequestID, err, &summary)
			processed[item.RequestID] = true
			continue
		}
		for _, id := range order {
			if processed[id] {
				continue
			}
			processed[id] = true
			r.processOne(ctx, id, opts, &summary)
		}
	}

	r.logger.Info("processing pass complete",
		logging.Int("reset", summary.Reset),
		logging.Int("processed", summary.Processed),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed))
	return summary, nil
}

// workOrder returns the request ids to analyze for one candidate, oldest
// predecessor first, the candidate last. Predecessors the queue no longer
// tracks, or that already finished, are treated as satisfied.
func (r *Runner) workOrder(ctx context.Context, item *queue.Item, opts Options) ([]int64, error) {
	var resolved chain.Chain
	var err error
	if len(opts.ChainIDs) > 0 {
		resolved, err = chain.Explicit(ctx, r.server, opts.ChainIDs)
	} else {
		resolved, err = chain.Resolve(ctx, r.server, item.RequestID)
	}
	if err != nil {
		return nil, err
	}

	var order []int64
	for _, link := range resolved.Pending() {
		if link.RequestID == item.RequestID {
			continue
		}
		row, err := r.store.Get(ctx, link.RequestID)
		if err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load predecessor r/%d: %w", link.RequestID, err)
		}
		switch row.Status {
		case queue.StatusDone, queue.StatusIgnore, queue.StatusInProgress:
			continue
		}
		order = append(order, link.RequestID)
	}
	return append(order, item.RequestID), nil
}

// processOne analyzes a single request, updating the queue row and ledger.
func (r *Runner) processOne(ctx context.Context, requestID int64, opts Options, summary *Summary) {
	item, err := r.store.Get(ctx, requestID)
	if err != nil {
		r.failItem(ctx, requestID, err, summary)
		return
	}
	if item.Status == queue.StatusDone || item.Status == queue.StatusIgnore {
		return
	}

	// Predecessors pulled into the pass may still sit at todo or failed.
	if item.Status == queue.StatusTodo || item.Status == queue.StatusFailed {
		if _, err := r.store.SetStatus(ctx, requestID, queue.StatusNext); err != nil {
			r.failItem(ctx, requestID, err, summary)
			return
		}
	}

	done, err := r.skipIfAnalyzed(ctx, item)
	if err != nil {
		r.failItem(ctx, requestID, err, summary)
		return
	}
	if done {
		summary.Skipped++
		r.logger.Info("skipping already analyzed request",
			logging.Int64(logging.FieldRequest, requestID),
			logging.Int(logging.FieldRevision, item.DiffRevision))
		return
	}

	if err := r.store.MarkInProgress(ctx, requestID); err != nil {
		r.failItem(ctx, requestID, err, summary)
		return
	}
	summary.Processed++

	if err := r.analyze(ctx, item, opts); err != nil {
		r.failItem(ctx, requestID, err, summary)
		return
	}
	summary.Succeeded++
}

// skipIfAnalyzed marks the row done when a real analysis already exists for
// its current revision, linking the existing ledger entry.
func (r *Runner) skipIfAnalyzed(ctx context.Context, item *queue.Item) (bool, error) {
	if r.ledger == nil {
		return false, nil
	}
	has, err := r.ledger.HasReal(ctx, item.RequestID, item.DiffRevision)
	if err != nil || !has {
		return false, err
	}
	existing, err := r.ledger.Find(ctx, item.RequestID, item.DiffRevision)
	if err != nil {
		return false, err
	}
	var analysisID *int64
	if existing != nil {
		analysisID = &existing.ID
	}
	if err := r.store.MarkInProgress(ctx, item.RequestID); err != nil {
		return false, err
	}
	if err := r.store.MarkDone(ctx, item.RequestID, analysisID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) analyze(ctx context.Context, item *queue.Item, opts Options) error {
	diff, err := r.server.GetDiff(ctx, item.RequestID, item.DiffRevision)
	if err != nil {
		return fmt.Errorf("fetch diff: %w", err)
	}

	result, err := r.analyzer.Analyze(ctx, item, diff)
	if err != nil {
		return err
	}

	var analysisID *int64
	if r.ledger != nil {
		id, err := r.ledger.Save(ctx, result, r.analyzer.Method(), r.analyzer.Model(), r.sessionID, r.analyzer.Fake())
		if err != nil {
			return fmt.Errorf("record analysis: %w", err)
		}
		analysisID = &id
	}

	if err := r.store.MarkDone(ctx, item.RequestID, analysisID); err != nil {
		return err
	}

	r.logger.Info("analysis complete",
		logging.Int64(logging.FieldRequest, item.RequestID),
		logging.Int(logging.FieldRevision, item.DiffRevision),
		logging.Int("issues", result.IssueCount()))

	if opts.Submit && !r.analyzer.Fake() {
		if err := r.server.PostReview(ctx, item.RequestID, result.Summary, result.Comments, true); err != nil {
			// The analysis itself landed; surface the submit failure
			// without rolling the row back.
			r.logger.Warn("failed to post review",
				logging.Int64(logging.FieldRequest, item.RequestID),
				logging.Error(err))
		}
	}
	return nil
}

// failItem records a failure on the row and keeps the pass going.
func (r *Runner) failItem(ctx context.Context, requestID int64, cause error, summary *Summary) {
	summary.Failed++
	r.logger.Error("processing failed",
		logging.Int64(logging.FieldRequest, requestID),
		logging.Error(cause))

	item, err := r.store.Get(ctx, requestID)
	if err != nil {
		return
	}
	// failed is only reachable from in_progress; walk the row there first.
	switch item.Status {
	case queue.StatusTodo, queue.StatusFailed:
		if _, err := r.store.SetStatus(ctx, requestID, queue.StatusNext); err != nil {
			return
		}
		fallthrough
	case queue.StatusNext:
		if err := r.store.MarkInProgress(ctx, requestID); err != nil {
			return
		}
	case queue.StatusInProgress:
	default:
		return
	}
	if err := r.store.MarkFailed(ctx, requestID, cause.Error()); err != nil {
		r.logger.Warn("could not record failure",
			logging.Int64(logging.FieldRequest, requestID),
			logging.Error(err))
	}
}
