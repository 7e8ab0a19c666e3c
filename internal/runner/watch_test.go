package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"revq/internal/analyzer"
	"revq/internal/queue"
	"revq/internal/syncer"
	"revq/internal/testsupport"
)

func TestWatchProcessesAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.SeedItem(t, store, 101, 1, queue.StatusNext)
	server := newStubServer()
	server.addRequest(101)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(store, nil, server, analyzer.Fake(), nil, "")
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, nil, 10*time.Millisecond, syncer.Options{}, Options{})
	}()

	deadline := time.After(5 * time.Second)
	for {
		item, err := store.Get(context.Background(), 101)
		if err != nil {
			t.Fatalf("store.Get: %v", err)
		}
		if item.Status == queue.StatusDone {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("item never processed, status %s", item.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
