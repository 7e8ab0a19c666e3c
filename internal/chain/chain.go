// Package chain resolves dependency chains between change requests.
//
// Change requests may declare a predecessor they build on. Analysis of a
// request deep in a patch series only makes sense once its predecessors are
// known, so the resolver walks the declared links backward to the root and
// returns the series in apply order.
package chain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"revq/internal/review"
	"revq/internal/reviewboard"
)

var (
	// ErrCycle is returned when a request's dependency links loop back on
	// themselves.
	ErrCycle = errors.New("circular dependency")

	// ErrMultipleDependencies is returned when a request declares more than
	// one predecessor. Branching series need an explicit operator-supplied
	// ordering; the resolver never guesses.
	ErrMultipleDependencies = errors.New("multiple dependencies")

	// ErrDiscardedDependency is returned when a predecessor has been
	// discarded on the server.
	ErrDiscardedDependency = errors.New("discarded dependency")

	// ErrCrossRepository is returned when a predecessor lives in a
	// different repository than the target.
	ErrCrossRepository = errors.New("cross-repository dependency")
)

// InfoSource supplies request metadata for chain walking. The review server
// client satisfies it.
type InfoSource interface {
	GetRequestInfo(ctx context.Context, requestID int64) (review.RequestInfo, error)
}

// Link is one request in a resolved chain.
type Link struct {
	RequestID    int64
	Summary      string
	Status       review.RequestStatus
	DiffRevision int
	BaseCommit   string
	NeedsReview  bool
}

// Chain is a series of dependent requests ordered from the oldest ancestor
// to the target.
type Chain struct {
	Links      []Link
	Repository string
}

// Target returns the tip of the chain.
func (c Chain) Target() (Link, bool) {
	if len(c.Links) == 0 {
		return Link{}, false
	}
	return c.Links[len(c.Links)-1], true
}

// Pending returns the links still awaiting review, in apply order.
func (c Chain) Pending() []Link {
	pending := make([]Link, 0, len(c.Links))
	for _, link := range c.Links {
		if link.NeedsReview {
			pending = append(pending, link)
		}
	}
	return pending
}

// IDs returns the request ids in apply order.
func (c Chain) IDs() []int64 {
	ids := make([]int64, len(c.Links))
	for i, link := range c.Links {
		ids[i] = link.RequestID
	}
	return ids
}

// Resolve walks the declared predecessors of targetID back to the root and
// returns the chain ordered oldest first. A submitted predecessor ends the
// walk: it is already landed and acts as the base of the series.
func Resolve(ctx context.Context, src InfoSource, targetID int64) (Chain, error) {
	visited := make(map[int64]bool)
	var path []int64
	var links []Link
	repository := ""

	currentID := targetID
	for {
		if visited[currentID] {
			path = append(path, currentID)
			return Chain{}, fmt.Errorf("%w: %s", ErrCycle, formatPath(path))
		}
		visited[currentID] = true
		path = append(path, currentID)

		info, err := src.GetRequestInfo(ctx, currentID)
		if err != nil {
			return Chain{}, fmt.Errorf("resolve chain for request %d: %w", targetID, err)
		}

		if repository == "" {
			repository = info.Repository
		} else if info.Repository != repository {
			return Chain{}, fmt.Errorf("%w: request %d is in %q, chain is in %q",
				ErrCrossRepository, currentID, info.Repository, repository)
		}

		if info.Status == review.RequestDiscarded {
			return Chain{}, fmt.Errorf("%w: request %d", ErrDiscardedDependency, currentID)
		}
		if len(info.DependsOn) > 1 {
			return Chain{}, fmt.Errorf("%w: request %d depends on %v",
				ErrMultipleDependencies, currentID, info.DependsOn)
		}

		links = append(links, Link{
			RequestID:    info.RequestID,
			Summary:      info.Summary,
			Status:       info.Status,
			DiffRevision: info.DiffRevision,
			BaseCommit:   info.BaseCommit,
			NeedsReview:  info.Status == review.RequestPending,
		})

		if info.Status == review.RequestSubmitted {
			break
		}
		if len(info.DependsOn) == 0 {
			break
		}
		currentID = info.DependsOn[0]
	}

	reverse(links)
	return Chain{Links: links, Repository: repository}, nil
}

// Explicit builds a chain from an operator-supplied id list, in the given
// order, without walking dependency links. Discarded requests still fail.
func Explicit(ctx context.Context, src InfoSource, ids []int64) (Chain, error) {
	links := make([]Link, 0, len(ids))
	repository := ""
	for _, id := range ids {
		info, err := src.GetRequestInfo(ctx, id)
		if err != nil {
			return Chain{}, fmt.Errorf("explicit chain: %w", err)
		}
		if info.Status == review.RequestDiscarded {
			return Chain{}, fmt.Errorf("%w: request %d", ErrDiscardedDependency, id)
		}
		if repository == "" {
			repository = info.Repository
		}
		links = append(links, Link{
			RequestID:    info.RequestID,
			Summary:      info.Summary,
			Status:       info.Status,
			DiffRevision: info.DiffRevision,
			BaseCommit:   info.BaseCommit,
			NeedsReview:  info.Status == review.RequestPending,
		})
	}
	return Chain{Links: links, Repository: repository}, nil
}

// LoadFile reads an explicit chain ordering from a file, one request id or
// /r/<id>/ URL per line, base first. Blank lines and # comments are skipped.
func LoadFile(path string) ([]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var ids []int64
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, ok := reviewboard.ParseRequestID(line)
		if !ok {
			return nil, fmt.Errorf("chain file %s line %d: cannot parse request id from %q", path, lineNo, line)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("chain file %s contains no request ids", path)
	}
	return ids, nil
}

func reverse(links []Link) {
	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
}

func formatPath(path []int64) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = fmt.Sprintf("r/%d", id)
	}
	return strings.Join(parts, " -> ")
}
