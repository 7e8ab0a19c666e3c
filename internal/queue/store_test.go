package queue_test

import (
	"context"
	"errors"
	"testing"

	"revq/internal/queue"
	"revq/internal/testsupport"
)

func TestUpsertInsertsAsTodo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	action, err := store.Upsert(ctx, testsupport.Pending(101, 1))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if action != queue.UpsertInserted {
		t.Fatalf("expected inserted, got %s", action)
	}

	item, err := store.Get(ctx, 101)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != queue.StatusTodo {
		t.Fatalf("expected todo, got %s", item.Status)
	}
	if item.DiffRevision != 1 || item.Repository != "main-repo" {
		t.Fatalf("unexpected item: %#v", item)
	}
}

func TestUpsertKeepsOneRowPerRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.Upsert(ctx, testsupport.Pending(7, 1)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if _, err := store.Upsert(ctx, testsupport.Pending(7, 2)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	items, err := store.List(ctx, queue.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(items))
	}
	if items[0].DiffRevision != 2 {
		t.Fatalf("expected revision updated in place, got %d", items[0].DiffRevision)
	}
}

func TestUpsertResetsOnNewRevision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 42, 1, queue.StatusNext, queue.StatusInProgress)
	analysisID := int64(9)
	if err := store.MarkDone(ctx, 42, &analysisID); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	action, err := store.Upsert(ctx, testsupport.Pending(42, 2))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if action != queue.UpsertReset {
		t.Fatalf("expected reset, got %s", action)
	}

	item, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != queue.StatusTodo {
		t.Fatalf("expected todo after reset, got %s", item.Status)
	}
	if item.AnalysisID != nil {
		t.Fatalf("expected analysis link cleared, got %d", *item.AnalysisID)
	}
	if item.DiffRevision != 2 {
		t.Fatalf("expected revision 2, got %d", item.DiffRevision)
	}
}

func TestUpsertRefreshKeepsStatusAndUpdatedAt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 55, 3, queue.StatusNext)
	before, err := store.Get(ctx, 55)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	action, err := store.Upsert(ctx, testsupport.Pending(55, 3))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if action != queue.UpsertRefreshed {
		t.Fatalf("expected refreshed, got %s", action)
	}

	after, err := store.Get(ctx, 55)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after.Status != queue.StatusNext {
		t.Fatalf("expected status preserved, got %s", after.Status)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatal("expected updated_at untouched by metadata refresh")
	}
	if !after.LastSyncedAt.After(before.LastSyncedAt) && !after.LastSyncedAt.Equal(before.LastSyncedAt) {
		t.Fatal("expected last_synced_at refreshed")
	}
}

func TestSetStatusRejectsIllegalTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 8, 1)

	if _, err := store.SetStatus(ctx, 8, queue.StatusDone); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	item, err := store.Get(ctx, 8)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != queue.StatusTodo {
		t.Fatalf("row must be unchanged after rejected transition, got %s", item.Status)
	}
}

func TestSetStatusMissingItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.SetStatus(context.Background(), 999, queue.StatusNext); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIgnoreReactivation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 30, 1, queue.StatusIgnore)

	if _, err := store.SetStatus(ctx, 30, queue.StatusNext); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("ignore -> next must be rejected, got %v", err)
	}
	prev, err := store.SetStatus(ctx, 30, queue.StatusTodo)
	if err != nil {
		t.Fatalf("ignore -> todo reactivation failed: %v", err)
	}
	if prev != queue.StatusIgnore {
		t.Fatalf("expected previous status ignore, got %s", prev)
	}
}

func TestMarkDoneRecordsAnalysisLink(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 13, 1, queue.StatusNext, queue.StatusInProgress)

	analysisID := int64(77)
	if err := store.MarkDone(ctx, 13, &analysisID); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	item, err := store.Get(ctx, 13)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != queue.StatusDone {
		t.Fatalf("expected done, got %s", item.Status)
	}
	if item.AnalysisID == nil || *item.AnalysisID != 77 {
		t.Fatalf("expected analysis link 77, got %v", item.AnalysisID)
	}
}

func TestMarkDoneWithoutLedgerRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 14, 1, queue.StatusNext, queue.StatusInProgress)

	// Absence of a ledger record is not an error; the link stays null.
	if err := store.MarkDone(ctx, 14, nil); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	item, err := store.Get(ctx, 14)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.AnalysisID != nil {
		t.Fatalf("expected nil analysis link, got %v", item.AnalysisID)
	}
}

func TestMarkFailedRecordsErrorMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 21, 1, queue.StatusNext, queue.StatusInProgress)

	if err := store.MarkFailed(ctx, 21, "analyzer exploded"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	item, err := store.Get(ctx, 21)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", item.Status)
	}
	if item.ErrorMessage != "analyzer exploded" {
		t.Fatalf("expected error message recorded, got %q", item.ErrorMessage)
	}
}

func TestResetStaleInProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 1, 1, queue.StatusNext, queue.StatusInProgress)
	testsupport.SeedItem(t, store, 2, 1, queue.StatusNext, queue.StatusInProgress)
	testsupport.SeedItem(t, store, 3, 1, queue.StatusNext)

	count, err := store.ResetStaleInProgress(ctx)
	if err != nil {
		t.Fatalf("ResetStaleInProgress failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 items reset, got %d", count)
	}

	for _, id := range []int64{1, 2, 3} {
		item, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if item.Status != queue.StatusNext {
			t.Fatalf("r/%d: expected next, got %s", id, item.Status)
		}
	}
}

func TestPickNextOrdersOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 1, 1, queue.StatusNext)
	testsupport.SeedItem(t, store, 2, 1, queue.StatusNext)
	testsupport.SeedItem(t, store, 3, 1)

	// Touch r/1 so it becomes the most recently updated.
	if _, err := store.SetStatus(ctx, 1, queue.StatusTodo); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if _, err := store.SetStatus(ctx, 1, queue.StatusNext); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	items, err := store.PickNext(ctx, 10)
	if err != nil {
		t.Fatalf("PickNext failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 next items, got %d", len(items))
	}
	if items[0].RequestID != 2 || items[1].RequestID != 1 {
		t.Fatalf("expected oldest-updated first [2 1], got [%d %d]", items[0].RequestID, items[1].RequestID)
	}
}

func TestListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 1, 1)
	testsupport.SeedItem(t, store, 2, 1, queue.StatusNext)
	testsupport.SeedItem(t, store, 3, 1, queue.StatusIgnore)

	byStatus, err := store.List(ctx, queue.Filter{Status: queue.StatusNext})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].RequestID != 2 {
		t.Fatalf("unexpected status filter result: %#v", byStatus)
	}

	byRepo, err := store.List(ctx, queue.Filter{Repository: "main-repo"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byRepo) != 3 {
		t.Fatalf("expected 3 items for repository, got %d", len(byRepo))
	}

	limited, err := store.List(ctx, queue.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit respected, got %d", len(limited))
	}
}

func TestDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 5, 1)

	deleted, err := store.Delete(ctx, 5)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected item deleted")
	}
	deleted, err = store.Delete(ctx, 5)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report absence")
	}
	if _, err := store.Get(ctx, 5); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 1, 1, queue.StatusNext, queue.StatusInProgress)
	if err := store.MarkFailed(ctx, 1, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	testsupport.SeedItem(t, store, 2, 1, queue.StatusNext, queue.StatusInProgress)
	if err := store.MarkFailed(ctx, 2, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	count, err := store.RetryFailed(ctx, 1)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried, got %d", count)
	}
	item, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != queue.StatusNext || item.ErrorMessage != "" {
		t.Fatalf("expected next with cleared error, got %s %q", item.Status, item.ErrorMessage)
	}

	count, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected remaining failed item retried, got %d", count)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, 1, 1)
	testsupport.SeedItem(t, store, 2, 1, queue.StatusNext)
	testsupport.SeedItem(t, store, 3, 1, queue.StatusNext)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusTodo] != 1 || stats[queue.StatusNext] != 2 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
