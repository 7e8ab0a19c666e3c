package chain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"revq/internal/review"
)

type stubSource map[int64]review.RequestInfo

func (s stubSource) GetRequestInfo(_ context.Context, requestID int64) (review.RequestInfo, error) {
	info, ok := s[requestID]
	if !ok {
		return review.RequestInfo{}, errors.New("request not found")
	}
	return info, nil
}

func pendingInfo(id int64, dependsOn ...int64) review.RequestInfo {
	return review.RequestInfo{
		RequestID:    id,
		Status:       review.RequestPending,
		Repository:   "main-repo",
		DiffRevision: 1,
		DependsOn:    dependsOn,
	}
}

func TestResolveLinearChain(t *testing.T) {
	src := stubSource{
		1: pendingInfo(1),
		2: pendingInfo(2, 1),
		3: pendingInfo(3, 2),
	}

	chain, err := Resolve(context.Background(), src, 3)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	ids := chain.IDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", ids)
	}
	target, ok := chain.Target()
	if !ok || target.RequestID != 3 {
		t.Fatalf("unexpected target %+v", target)
	}
	if len(chain.Pending()) != 3 {
		t.Fatalf("expected all links pending, got %d", len(chain.Pending()))
	}
}

func TestResolveSingleRequest(t *testing.T) {
	src := stubSource{7: pendingInfo(7)}

	chain, err := Resolve(context.Background(), src, 7)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(chain.Links) != 1 || chain.Links[0].RequestID != 7 {
		t.Fatalf("unexpected chain %+v", chain.Links)
	}
}

func TestResolveSubmittedPredecessorEndsWalk(t *testing.T) {
	src := stubSource{
		1: {RequestID: 1, Status: review.RequestSubmitted, Repository: "main-repo", DependsOn: []int64{99}},
		2: pendingInfo(2, 1),
		3: pendingInfo(3, 2),
	}

	chain, err := Resolve(context.Background(), src, 3)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	ids := chain.IDs()
	if len(ids) != 3 || ids[0] != 1 {
		t.Fatalf("expected walk to stop at submitted base, got %v", ids)
	}
	pending := chain.Pending()
	if len(pending) != 2 || pending[0].RequestID != 2 {
		t.Fatalf("submitted base must not need review, got %+v", pending)
	}
}

func TestResolveCycle(t *testing.T) {
	src := stubSource{
		1: pendingInfo(1, 3),
		2: pendingInfo(2, 1),
		3: pendingInfo(3, 2),
	}

	_, err := Resolve(context.Background(), src, 3)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestResolveMultipleDependencies(t *testing.T) {
	src := stubSource{
		1: pendingInfo(1),
		2: pendingInfo(2),
		3: pendingInfo(3, 1, 2),
	}

	_, err := Resolve(context.Background(), src, 3)
	if !errors.Is(err, ErrMultipleDependencies) {
		t.Fatalf("expected ErrMultipleDependencies, got %v", err)
	}
}

func TestResolveDiscardedDependency(t *testing.T) {
	src := stubSource{
		1: {RequestID: 1, Status: review.RequestDiscarded, Repository: "main-repo"},
		2: pendingInfo(2, 1),
	}

	_, err := Resolve(context.Background(), src, 2)
	if !errors.Is(err, ErrDiscardedDependency) {
		t.Fatalf("expected ErrDiscardedDependency, got %v", err)
	}
}

func TestResolveCrossRepository(t *testing.T) {
	src := stubSource{
		1: {RequestID: 1, Status: review.RequestPending, Repository: "other-repo"},
		2: pendingInfo(2, 1),
	}

	_, err := Resolve(context.Background(), src, 2)
	if !errors.Is(err, ErrCrossRepository) {
		t.Fatalf("expected ErrCrossRepository, got %v", err)
	}
}

func TestExplicitKeepsOrder(t *testing.T) {
	src := stubSource{
		1: pendingInfo(1),
		2: pendingInfo(2),
		3: pendingInfo(3, 1, 2),
	}

	chain, err := Explicit(context.Background(), src, []int64{2, 1, 3})
	if err != nil {
		t.Fatalf("Explicit returned error: %v", err)
	}
	ids := chain.IDs()
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 1 || ids[2] != 3 {
		t.Fatalf("expected operator order preserved, got %v", ids)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.txt")
	content := "# series for the parser rework\n12\n/r/34/\n\nhttps://reviews.example.com/r/56/\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chain file: %v", err)
	}

	ids, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if len(ids) != 3 || ids[0] != 12 || ids[1] != 34 || ids[2] != 56 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.txt")
	if err := os.WriteFile(path, []byte("12\nnot-an-id\n"), 0o644); err != nil {
		t.Fatalf("write chain file: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.txt")
	if err := os.WriteFile(path, []byte("# nothing here\n"), 0o644); err != nil {
		t.Fatalf("write chain file: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for empty chain file")
	}
}
