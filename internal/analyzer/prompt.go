package analyzer

import (
	"fmt"
	"strings"

	"revq/internal/queue"
	"revq/internal/review"
)

// Diffs beyond this size get truncated before prompting. Keeps the request
// under typical context limits for large generated changes.
const maxDiffBytes = 300_000

const reviewSystemPrompt = `You are an expert code reviewer. Your task is to analyze code changes (diffs) and provide actionable, specific feedback.

Guidelines for your review:
1. Focus on substantive issues, not style nitpicks
2. Be specific: reference exact line numbers and code
3. Explain WHY something is a problem, not just WHAT is wrong
4. Suggest concrete fixes when possible
5. Prioritize issues by severity (critical > high > medium > low)
6. Only comment on actual issues; if the code is good, return an empty comments array

Your response must be valid JSON matching this schema:
{
  "summary": "Brief overall assessment of the changes",
  "comments": [
    {
      "file_path": "path/to/file.ext",
      "line": 42,
      "severity": "low|medium|high|critical",
      "message": "Clear explanation of the issue",
      "suggestion": "Suggested fix or improvement (optional)"
    }
  ]
}

line must reference lines in the NEW version of the file (lines starting with + in the diff). Be constructive and professional in tone.`

func buildUserPrompt(item *queue.Item, diff review.DiffInfo) string {
	var b strings.Builder
	b.WriteString("## Change Request\n")
	fmt.Fprintf(&b, "Request: r/%d (diff revision %d)\n", item.RequestID, diff.Revision)
	if item.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", item.Summary)
	}
	if item.Repository != "" {
		fmt.Fprintf(&b, "Repository: %s\n", item.Repository)
	}
	if item.Branch != "" {
		fmt.Fprintf(&b, "Branch: %s\n", item.Branch)
	}
	if item.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", item.Author)
	}

	raw := diff.RawDiff
	truncated := false
	if len(raw) > maxDiffBytes {
		raw = raw[:maxDiffBytes]
		truncated = true
	}
	b.WriteString("\n## Diff\n```diff\n")
	b.WriteString(raw)
	if !strings.HasSuffix(raw, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	if truncated {
		b.WriteString("\nNote: the diff was truncated for length. Review what is shown.\n")
	}
	return b.String()
}
