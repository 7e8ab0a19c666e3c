package review

import (
	"strings"
	"time"
)

// RequestStatus reflects the lifecycle of a change request on the review server.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestSubmitted RequestStatus = "submitted"
	RequestDiscarded RequestStatus = "discarded"
)

// PendingReview is a change request awaiting analysis, as reported by the
// review server during a sync pass.
type PendingReview struct {
	RequestID    int64
	DiffRevision int
	Repository   string
	Author       string
	Summary      string
	Branch       string
	BaseCommit   string
	CreatedAt    time.Time
}

// DiffInfo describes the patch content of a change request at a specific
// revision. The revision changes whenever new content is uploaded.
type DiffInfo struct {
	RequestID    int64
	Revision     int
	RawDiff      string
	BaseCommit   string
	TargetCommit string
}

// RequestInfo carries the metadata needed for dependency-chain resolution.
// DependsOn lists declared predecessor request ids; the resolver only
// accepts linear chains (at most one entry).
type RequestInfo struct {
	RequestID    int64
	Status       RequestStatus
	Summary      string
	Repository   string
	DiffRevision int
	BaseCommit   string
	DependsOn    []int64
}

// Severity ranks review comments.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a severity string, defaulting to medium for
// values the analyzer emits outside the known set.
func ParseSeverity(value string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityLow:
		return SeverityLow
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// Comment is a single finding to be posted against a diff line.
type Comment struct {
	FilePath   string
	Line       int
	Message    string
	Severity   Severity
	Suggestion string
}

// Result is the complete outcome of analyzing one change request.
type Result struct {
	RequestID    int64
	DiffRevision int
	Summary      string
	Comments     []Comment
}

// IssueCount returns the number of findings.
func (r Result) IssueCount() int {
	return len(r.Comments)
}

// HasCritical reports whether any comment is critical.
func (r Result) HasCritical() bool {
	for _, comment := range r.Comments {
		if comment.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
