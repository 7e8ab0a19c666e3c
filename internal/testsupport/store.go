package testsupport

import (
	"context"
	"testing"
	"time"

	"revq/internal/config"
	"revq/internal/ledger"
	"revq/internal/queue"
	"revq/internal/review"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Pending builds a PendingReview with sensible test defaults.
func Pending(requestID int64, diffRevision int) review.PendingReview {
	return review.PendingReview{
		RequestID:    requestID,
		DiffRevision: diffRevision,
		Repository:   "main-repo",
		Author:       "alice",
		Summary:      "Change the widget",
		Branch:       "feature",
		BaseCommit:   "abc123",
		CreatedAt:    time.Now().UTC(),
	}
}

// SeedItem upserts a pending review and optionally advances its status
// through the given transition sequence.
func SeedItem(t testing.TB, store *queue.Store, requestID int64, diffRevision int, path ...queue.Status) *queue.Item {
	t.Helper()

	ctx := context.Background()
	if _, err := store.Upsert(ctx, Pending(requestID, diffRevision)); err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	for _, status := range path {
		if _, err := store.SetStatus(ctx, requestID, status); err != nil {
			t.Fatalf("store.SetStatus(%d, %s): %v", requestID, status, err)
		}
	}
	item, err := store.Get(ctx, requestID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return item
}
