package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"revq/internal/review"
)

// Upsert reconciles one pending review into the queue and reports what
// happened: a missing row is inserted as todo; a row whose diff revision
// changed is reset to todo with its analysis link and error cleared; a row
// at the same revision only gets a metadata refresh, keeping its status
// and updated_at untouched.
func (s *Store) Upsert(ctx context.Context, pending review.PendingReview) (UpsertAction, error) {
	ctx = ensureContext(ctx)
	now := timestamp(time.Now())

	existing, err := s.Get(ctx, pending.RequestID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if existing == nil {
		_, err := s.execWithRetry(
			ctx,
			`INSERT INTO review_queue (
                request_id, diff_revision, status, repository, author,
                summary, branch, base_commit, created_at, updated_at, last_synced_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pending.RequestID,
			pending.DiffRevision,
			StatusTodo,
			nullableString(pending.Repository),
			nullableString(pending.Author),
			nullableString(pending.Summary),
			nullableString(pending.Branch),
			nullableString(pending.BaseCommit),
			now,
			now,
			now,
		)
		if err != nil {
			return "", fmt.Errorf("insert queue item: %w", err)
		}
		return UpsertInserted, nil
	}

	if existing.DiffRevision != pending.DiffRevision {
		// New upload is new, unreviewed work.
		_, err := s.execWithRetry(
			ctx,
			`UPDATE review_queue
             SET diff_revision = ?, status = ?, analysis_id = NULL, error_message = NULL,
                 repository = COALESCE(?, repository),
                 author = COALESCE(?, author),
                 summary = COALESCE(?, summary),
                 branch = COALESCE(?, branch),
                 base_commit = COALESCE(?, base_commit),
                 updated_at = ?, last_synced_at = ?
             WHERE request_id = ?`,
			pending.DiffRevision,
			StatusTodo,
			nullableString(pending.Repository),
			nullableString(pending.Author),
			nullableString(pending.Summary),
			nullableString(pending.Branch),
			nullableString(pending.BaseCommit),
			now,
			now,
			pending.RequestID,
		)
		if err != nil {
			return "", fmt.Errorf("reset queue item: %w", err)
		}
		return UpsertReset, nil
	}

	_, err = s.execWithRetry(
		ctx,
		`UPDATE review_queue
         SET repository = COALESCE(?, repository),
             author = COALESCE(?, author),
             summary = COALESCE(?, summary),
             branch = COALESCE(?, branch),
             base_commit = COALESCE(?, base_commit),
             last_synced_at = ?
         WHERE request_id = ?`,
		nullableString(pending.Repository),
		nullableString(pending.Author),
		nullableString(pending.Summary),
		nullableString(pending.Branch),
		nullableString(pending.BaseCommit),
		now,
		pending.RequestID,
	)
	if err != nil {
		return "", fmt.Errorf("refresh queue item: %w", err)
	}
	return UpsertRefreshed, nil
}

// Get fetches a queue item by request id.
func (s *Store) Get(ctx context.Context, requestID int64) (*Item, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM review_queue WHERE request_id = ?`, requestID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// List returns queue items matching the filter, newest sync first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Item, error) {
	ctx = ensureContext(ctx)

	query := `SELECT ` + itemColumns + ` FROM review_queue`
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Repository != "" {
		conditions = append(conditions, "repository = ?")
		args = append(args, filter.Repository)
	}
	for i, condition := range conditions {
		if i == 0 {
			query += " WHERE " + condition
		} else {
			query += " AND " + condition
		}
	}
	query += " ORDER BY last_synced_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// PickNext returns items ready for processing, oldest updated_at first.
func (s *Store) PickNext(ctx context.Context, limit int) ([]*Item, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM review_queue WHERE status = ? ORDER BY updated_at ASC LIMIT ?`,
		StatusNext,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pick next items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes an item by request id. Returns false when absent.
func (s *Store) Delete(ctx context.Context, requestID int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM review_queue WHERE request_id = ?`, requestID)
	if err != nil {
		return false, fmt.Errorf("delete queue item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM review_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
