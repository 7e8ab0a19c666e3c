package queue

import (
	"context"
	"fmt"
	"time"
)

// SetStatus transitions a queue item, validating against the transition
// table. Returns the previous status, or ErrInvalidTransition /
// ErrNotFound without mutating the row.
func (s *Store) SetStatus(ctx context.Context, requestID int64, newStatus Status) (Status, error) {
	return s.transition(ctx, requestID, newStatus,
		`UPDATE review_queue SET status = ?, updated_at = ? WHERE request_id = ?`,
		newStatus, timestamp(time.Now()), requestID)
}

// MarkInProgress claims an item for analysis.
func (s *Store) MarkInProgress(ctx context.Context, requestID int64) error {
	_, err := s.SetStatus(ctx, requestID, StatusInProgress)
	return err
}

// MarkDone records a completed analysis, linking the ledger record when
// one was found. A nil analysisID is allowed; the link is logical and
// resolved by callers at read time.
func (s *Store) MarkDone(ctx context.Context, requestID int64, analysisID *int64) error {
	var link any
	if analysisID != nil {
		link = *analysisID
	}
	_, err := s.transition(ctx, requestID, StatusDone,
		`UPDATE review_queue SET status = ?, analysis_id = ?, error_message = NULL, updated_at = ? WHERE request_id = ?`,
		StatusDone, link, timestamp(time.Now()), requestID)
	return err
}

// MarkFailed records an analysis failure with the error message for
// operator visibility.
func (s *Store) MarkFailed(ctx context.Context, requestID int64, message string) error {
	_, err := s.transition(ctx, requestID, StatusFailed,
		`UPDATE review_queue SET status = ?, error_message = ?, updated_at = ? WHERE request_id = ?`,
		StatusFailed, nullableString(message), timestamp(time.Now()), requestID)
	return err
}

func (s *Store) transition(ctx context.Context, requestID int64, newStatus Status, query string, args ...any) (Status, error) {
	ctx = ensureContext(ctx)

	current, err := s.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	if !CanTransition(current.Status, newStatus) {
		return "", invalidTransitionError(requestID, current.Status, newStatus)
	}

	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}
	return current.Status, nil
}

// ResetStaleInProgress returns orphaned in_progress items to next. It runs
// at the start of every processing pass: in_progress observed before any
// work was dispatched means the prior pass died mid-item.
func (s *Store) ResetStaleInProgress(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE review_queue SET status = ?, updated_at = ? WHERE status = ?`,
		StatusNext,
		timestamp(time.Now()),
		StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale in_progress items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to next for reprocessing. With no
// ids, all failed items are retried.
func (s *Store) RetryFailed(ctx context.Context, requestIDs ...int64) (int64, error) {
	now := timestamp(time.Now())
	if len(requestIDs) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE review_queue SET status = ?, error_message = NULL, updated_at = ? WHERE status = ?`,
			StatusNext,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(requestIDs))
	args := make([]any, 0, len(requestIDs)+3)
	args = append(args, StatusNext, now, StatusFailed)
	for _, id := range requestIDs {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE review_queue SET status = ?, error_message = NULL, updated_at = ?
         WHERE status = ? AND request_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
