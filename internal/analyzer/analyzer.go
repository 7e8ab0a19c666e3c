// Package analyzer turns a raw diff into review findings.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"revq/internal/queue"
	"revq/internal/review"
)

// Analyzer produces a review result for one queued change request.
type Analyzer interface {
	// Analyze reviews the diff and returns the findings. The returned
	// result carries the request id and diff revision of the input.
	Analyze(ctx context.Context, item *queue.Item, diff review.DiffInfo) (review.Result, error)

	// Method identifies how results from this analyzer were produced.
	Method() string

	// Model names the model behind the analyzer, if any.
	Model() string

	// Fake reports whether results are canned. Fake results are recorded
	// in the ledger but never count as a completed real analysis.
	Fake() bool
}

// LLM is the production analyzer backed by a chat-completion model.
type LLM struct {
	client *Client
}

// NewLLM builds the production analyzer.
func NewLLM(client *Client) *LLM {
	return &LLM{client: client}
}

func (a *LLM) Method() string { return "llm" }

func (a *LLM) Model() string { return a.client.Model() }

func (a *LLM) Fake() bool { return false }

// Analyze sends the diff to the model and parses the structured findings.
func (a *LLM) Analyze(ctx context.Context, item *queue.Item, diff review.DiffInfo) (review.Result, error) {
	if strings.TrimSpace(diff.RawDiff) == "" {
		return review.Result{}, fmt.Errorf("analyze r/%d: empty diff", item.RequestID)
	}

	content, err := a.client.CompleteJSON(ctx, reviewSystemPrompt, buildUserPrompt(item, diff))
	if err != nil {
		return review.Result{}, fmt.Errorf("analyze r/%d: %w", item.RequestID, err)
	}

	var parsed reviewPayload
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return review.Result{}, fmt.Errorf("analyze r/%d: parse model payload: %w", item.RequestID, err)
	}

	result := review.Result{
		RequestID:    item.RequestID,
		DiffRevision: diff.Revision,
		Summary:      strings.TrimSpace(parsed.Summary),
	}
	for _, c := range parsed.Comments {
		message := strings.TrimSpace(c.Message)
		if message == "" {
			continue
		}
		line := c.Line
		if line < 1 {
			line = 1
		}
		result.Comments = append(result.Comments, review.Comment{
			FilePath:   strings.TrimSpace(c.FilePath),
			Line:       line,
			Message:    message,
			Severity:   review.ParseSeverity(c.Severity),
			Suggestion: strings.TrimSpace(c.Suggestion),
		})
	}
	if result.Summary == "" {
		result.Summary = fmt.Sprintf("Automated review: %d issue(s) found.", len(result.Comments))
	}
	return result, nil
}

type reviewPayload struct {
	Summary  string `json:"summary"`
	Comments []struct {
		FilePath   string `json:"file_path"`
		Line       int    `json:"line"`
		Message    string `json:"message"`
		Severity   string `json:"severity"`
		Suggestion string `json:"suggestion"`
	} `json:"comments"`
}

// Canned is a stand-in analyzer for dry runs and tests. Its results are
// flagged fake in the ledger so reconciliation ignores them.
type Canned struct{}

// Fake returns the canned analyzer.
func Fake() Canned { return Canned{} }

func (Canned) Method() string { return "fake" }

func (Canned) Model() string { return "fake" }

func (Canned) Fake() bool { return true }

func (Canned) Analyze(_ context.Context, item *queue.Item, diff review.DiffInfo) (review.Result, error) {
	return review.Result{
		RequestID:    item.RequestID,
		DiffRevision: diff.Revision,
		Summary:      "Fake review for testing. No issues recorded.",
	}, nil
}
