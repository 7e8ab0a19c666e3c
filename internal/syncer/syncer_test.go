package syncer

import (
	"context"
	"errors"
	"testing"

	"revq/internal/queue"
	"revq/internal/review"
	"revq/internal/reviewboard"
	"revq/internal/testsupport"
)

type stubLister struct {
	pending []review.PendingReview
	err     error
	calls   int
}

func (s *stubLister) ListPending(_ context.Context, _ reviewboard.ListOptions) ([]review.PendingReview, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.pending, nil
}

func TestSyncInsertsNewRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	lister := &stubLister{pending: []review.PendingReview{
		testsupport.Pending(101, 1),
		testsupport.Pending(102, 1),
	}}

	s := New(lister, store, nil, nil)
	counts, err := s.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if counts.Fetched != 2 || counts.Inserted != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	item, err := store.Get(context.Background(), 101)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if item.Status != queue.StatusTodo {
		t.Fatalf("new item must start as todo, got %s", item.Status)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	lister := &stubLister{pending: []review.PendingReview{testsupport.Pending(101, 1)}}

	s := New(lister, store, nil, nil)
	if _, err := s.Sync(context.Background(), Options{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	counts, err := s.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if counts.Inserted != 0 || counts.Unchanged != 1 {
		t.Fatalf("second sync should refresh only, got %+v", counts)
	}
}

func TestSyncResetsOnNewRevision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedItem(t, store, 101, 1, queue.StatusNext, queue.StatusInProgress, queue.StatusDone)

	lister := &stubLister{pending: []review.PendingReview{testsupport.Pending(101, 2)}}
	s := New(lister, store, nil, nil)
	counts, err := s.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if counts.Reset != 1 {
		t.Fatalf("expected 1 reset, got %+v", counts)
	}

	item, err := store.Get(context.Background(), 101)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if item.Status != queue.StatusTodo || item.DiffRevision != 2 {
		t.Fatalf("expected reset to todo at revision 2, got %+v", item)
	}
}

func TestSyncServerErrorAbortsPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedItem(t, store, 101, 1)

	lister := &stubLister{err: reviewboard.ErrServer}
	s := New(lister, store, nil, nil)
	_, err := s.Sync(context.Background(), Options{Prune: true})
	if !errors.Is(err, reviewboard.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}

	// The existing row must survive an aborted pass even with prune on.
	if _, err := store.Get(context.Background(), 101); err != nil {
		t.Fatalf("row lost after aborted sync: %v", err)
	}
}

func TestSyncSkipsAlreadyAnalyzed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ledgerStore := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	testsupport.SeedItem(t, store, 101, 3, queue.StatusNext, queue.StatusInProgress, queue.StatusDone)
	result := review.Result{RequestID: 101, DiffRevision: 3, Summary: "clean"}
	if _, err := ledgerStore.Save(ctx, result, "llm", "test-model", "session", false); err != nil {
		t.Fatalf("ledger.Save: %v", err)
	}

	lister := &stubLister{pending: []review.PendingReview{testsupport.Pending(101, 3)}}
	s := New(lister, store, ledgerStore, nil)
	counts, err := s.Sync(ctx, Options{})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if counts.Analyzed != 1 || counts.Unchanged != 0 {
		t.Fatalf("expected already-analyzed count, got %+v", counts)
	}

	item, err := store.Get(ctx, 101)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if item.Status != queue.StatusDone {
		t.Fatalf("analyzed item must keep its status, got %s", item.Status)
	}
}

func TestSyncFakeAnalysisDoesNotSkip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ledgerStore := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	result := review.Result{RequestID: 101, DiffRevision: 1, Summary: "canned"}
	if _, err := ledgerStore.Save(ctx, result, "fake", "fake", "session", true); err != nil {
		t.Fatalf("ledger.Save: %v", err)
	}

	lister := &stubLister{pending: []review.PendingReview{testsupport.Pending(101, 1)}}
	s := New(lister, store, ledgerStore, nil)
	counts, err := s.Sync(ctx, Options{})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if counts.Analyzed != 0 || counts.Inserted != 1 {
		t.Fatalf("fake analysis must not short-circuit sync, got %+v", counts)
	}
}

func TestSyncPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// 101 stays upstream; 102 is waiting and gone upstream; 103 is in
	// flight and 104 finished, both gone upstream.
	testsupport.SeedItem(t, store, 101, 1)
	testsupport.SeedItem(t, store, 102, 1)
	testsupport.SeedItem(t, store, 103, 1, queue.StatusNext, queue.StatusInProgress)
	testsupport.SeedItem(t, store, 104, 1, queue.StatusNext, queue.StatusInProgress, queue.StatusDone)

	lister := &stubLister{pending: []review.PendingReview{testsupport.Pending(101, 1)}}
	s := New(lister, store, nil, nil)
	counts, err := s.Sync(ctx, Options{Prune: true})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if counts.Pruned != 1 {
		t.Fatalf("expected exactly the waiting row pruned, got %+v", counts)
	}

	if _, err := store.Get(ctx, 102); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected 102 pruned, got %v", err)
	}
	for _, id := range []int64{101, 103, 104} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Fatalf("request %d must survive prune: %v", id, err)
		}
	}
}

func TestSyncPruneOffKeepsRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItem(t, store, 102, 1)

	lister := &stubLister{}
	s := New(lister, store, nil, nil)
	if _, err := s.Sync(ctx, Options{}); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if _, err := store.Get(ctx, 102); err != nil {
		t.Fatalf("row must survive sync without prune: %v", err)
	}
}
