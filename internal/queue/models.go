package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusNext       Status = "next"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusIgnore     Status = "ignore"
)

var allStatuses = []Status{
	StatusTodo,
	StatusNext,
	StatusInProgress,
	StatusDone,
	StatusFailed,
	StatusIgnore,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions is the total transition table. Any (from, to) pair not
// listed here is rejected with ErrInvalidTransition. done is terminal
// (deletable only); ignore leaves only through explicit reactivation.
var validTransitions = map[Status][]Status{
	StatusTodo:       {StatusNext, StatusIgnore},
	StatusNext:       {StatusInProgress, StatusTodo, StatusIgnore},
	StatusInProgress: {StatusDone, StatusFailed, StatusNext},
	StatusFailed:     {StatusNext, StatusIgnore},
	StatusDone:       {},
	StatusIgnore:     {StatusTodo},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given one.
func AllowedTargets(from Status) []Status {
	targets := validTransitions[from]
	cp := make([]Status, len(targets))
	copy(cp, targets)
	return cp
}

// prunableStatuses marks rows that a sync pass may delete when their
// request is no longer reported by the server. Work in flight or with a
// recorded outcome is never pruned.
var prunableStatuses = map[Status]struct{}{
	StatusTodo:   {},
	StatusNext:   {},
	StatusIgnore: {},
}

// Prunable reports whether a status permits automatic deletion during sync.
func (s Status) Prunable() bool {
	_, ok := prunableStatuses[s]
	return ok
}

// Item represents a queue row persisted in SQLite. There is exactly one
// row per RequestID; a new diff revision updates the row in place.
type Item struct {
	ID           int64
	RequestID    int64
	DiffRevision int
	Status       Status
	Repository   string
	Author       string
	Summary      string
	Branch       string
	BaseCommit   string
	AnalysisID   *int64
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt time.Time
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status     Status
	Repository string
	Limit      int
}

// UpsertAction reports what Upsert did to the row.
type UpsertAction string

const (
	UpsertInserted  UpsertAction = "inserted"
	UpsertReset     UpsertAction = "reset"
	UpsertRefreshed UpsertAction = "refreshed"
)
