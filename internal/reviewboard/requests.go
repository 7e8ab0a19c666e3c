package reviewboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"revq/internal/review"
)

// ListOptions narrows the pending-review query.
type ListOptions struct {
	Days       int
	Limit      int
	Repository string
	Author     string
}

type apiEnvelope struct {
	Stat string `json:"stat"`
	Err  struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"err"`
}

type apiLink struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

type reviewRequestPayload struct {
	ID        int64     `json:"id"`
	Summary   string    `json:"summary"`
	Branch    string    `json:"branch"`
	Status    string    `json:"status"`
	TimeAdded time.Time `json:"time_added"`
	DependsOn []apiLink `json:"depends_on"`
	Links     struct {
		Submitter  apiLink `json:"submitter"`
		Repository apiLink `json:"repository"`
	} `json:"links"`
}

type reviewRequestListPayload struct {
	apiEnvelope
	TotalResults   int                    `json:"total_results"`
	ReviewRequests []reviewRequestPayload `json:"review_requests"`
}

type reviewRequestGetPayload struct {
	apiEnvelope
	ReviewRequest reviewRequestPayload `json:"review_request"`
}

type diffPayload struct {
	ID           int64  `json:"id"`
	Revision     int    `json:"revision"`
	BaseCommitID string `json:"base_commit_id"`
}

type diffListPayload struct {
	apiEnvelope
	TotalResults int           `json:"total_results"`
	Diffs        []diffPayload `json:"diffs"`
}

type fileDiffPayload struct {
	ID         int64  `json:"id"`
	SourceFile string `json:"source_file"`
	DestFile   string `json:"dest_file"`
}

type fileDiffListPayload struct {
	apiEnvelope
	Files []fileDiffPayload `json:"files"`
}

type reviewCreatePayload struct {
	apiEnvelope
	Review struct {
		ID int64 `json:"id"`
	} `json:"review"`
}

// ListPending returns change requests addressed to the bot account that are
// still open on the server. Each entry carries the latest diff revision;
// requests without an uploaded diff yet are skipped.
func (c *Client) ListPending(ctx context.Context, opts ListOptions) ([]review.PendingReview, error) {
	query := url.Values{}
	query.Set("to-users", c.cfg.Username)
	query.Set("status", "pending")
	if opts.Limit > 0 {
		query.Set("max-results", strconv.Itoa(opts.Limit))
	}
	if opts.Days > 0 {
		since := time.Now().UTC().AddDate(0, 0, -opts.Days)
		query.Set("last-updated-from", since.Format(time.RFC3339))
	}
	if opts.Author != "" {
		query.Set("from-user", opts.Author)
	}

	var payload reviewRequestListPayload
	if err := c.getJSON(ctx, "/api/review-requests/?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	pending := make([]review.PendingReview, 0, len(payload.ReviewRequests))
	for _, rr := range payload.ReviewRequests {
		repository := rr.Links.Repository.Title
		if opts.Repository != "" && repository != opts.Repository {
			continue
		}
		revision, baseCommit, err := c.latestDiff(ctx, rr.ID)
		if err != nil {
			return nil, err
		}
		if revision == 0 {
			continue
		}
		pending = append(pending, review.PendingReview{
			RequestID:    rr.ID,
			DiffRevision: revision,
			Repository:   repository,
			Author:       rr.Links.Submitter.Title,
			Summary:      rr.Summary,
			Branch:       rr.Branch,
			BaseCommit:   baseCommit,
			CreatedAt:    rr.TimeAdded,
		})
	}
	return pending, nil
}

// GetRequestInfo fetches the metadata needed for chain resolution,
// including the declared predecessor ids.
func (c *Client) GetRequestInfo(ctx context.Context, requestID int64) (review.RequestInfo, error) {
	var payload reviewRequestGetPayload
	path := fmt.Sprintf("/api/review-requests/%d/", requestID)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return review.RequestInfo{}, err
	}
	rr := payload.ReviewRequest

	dependsOn := make([]int64, 0, len(rr.DependsOn))
	for _, link := range rr.DependsOn {
		id, ok := ParseRequestID(link.Title)
		if !ok {
			id, ok = ParseRequestID(link.Href)
		}
		if ok {
			dependsOn = append(dependsOn, id)
		}
	}

	revision, baseCommit, err := c.latestDiff(ctx, requestID)
	if err != nil {
		return review.RequestInfo{}, err
	}

	return review.RequestInfo{
		RequestID:    rr.ID,
		Status:       review.RequestStatus(rr.Status),
		Summary:      rr.Summary,
		Repository:   rr.Links.Repository.Title,
		DiffRevision: revision,
		BaseCommit:   baseCommit,
		DependsOn:    dependsOn,
	}, nil
}

// GetDiff fetches the raw patch for a change request. A revision of zero
// selects the latest uploaded diff.
func (c *Client) GetDiff(ctx context.Context, requestID int64, revision int) (review.DiffInfo, error) {
	baseCommit := ""
	if revision <= 0 {
		latest, base, err := c.latestDiff(ctx, requestID)
		if err != nil {
			return review.DiffInfo{}, err
		}
		if latest == 0 {
			return review.DiffInfo{}, fmt.Errorf("%w: request %d has no diff", ErrServer, requestID)
		}
		revision = latest
		baseCommit = base
	} else {
		diffs, err := c.listDiffs(ctx, requestID)
		if err != nil {
			return review.DiffInfo{}, err
		}
		found := false
		for _, diff := range diffs {
			if diff.Revision == revision {
				baseCommit = diff.BaseCommitID
				found = true
			}
		}
		if !found {
			return review.DiffInfo{}, fmt.Errorf("%w: request %d has no diff revision %d", ErrServer, requestID, revision)
		}
	}

	path := fmt.Sprintf("/api/review-requests/%d/diffs/%d/", requestID, revision)
	raw, _, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.cfg.URL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/x-patch")
		return req, nil
	})
	if err != nil {
		return review.DiffInfo{}, err
	}

	return review.DiffInfo{
		RequestID:  requestID,
		Revision:   revision,
		RawDiff:    string(raw),
		BaseCommit: baseCommit,
	}, nil
}

// PostReview creates a review draft with the supplied findings attached as
// diff comments and optionally publishes it.
func (c *Client) PostReview(ctx context.Context, requestID int64, bodyTop string, comments []review.Comment, publish bool) error {
	latest, _, err := c.latestDiff(ctx, requestID)
	if err != nil {
		return err
	}

	reviewsPath := fmt.Sprintf("/api/review-requests/%d/reviews/", requestID)
	var created reviewCreatePayload
	form := url.Values{}
	form.Set("body_top", bodyTop)
	form.Set("public", "0")
	if err := c.postForm(ctx, reviewsPath, form, &created); err != nil {
		return err
	}
	reviewID := created.Review.ID

	var files []fileDiffPayload
	if len(comments) > 0 && latest > 0 {
		files, err = c.listFiles(ctx, requestID, latest)
		if err != nil {
			return err
		}
	}
	for _, comment := range comments {
		fileDiffID, ok := matchFileDiff(files, comment.FilePath)
		if !ok {
			continue
		}
		commentForm := url.Values{}
		commentForm.Set("filediff_id", strconv.FormatInt(fileDiffID, 10))
		commentForm.Set("first_line", strconv.Itoa(comment.Line))
		commentForm.Set("num_lines", "1")
		commentForm.Set("text", formatCommentText(comment))
		commentForm.Set("issue_opened", "1")
		commentsPath := fmt.Sprintf("%s%d/diff-comments/", reviewsPath, reviewID)
		var ignored apiEnvelope
		if err := c.postForm(ctx, commentsPath, commentForm, &ignored); err != nil {
			return err
		}
	}

	if publish {
		publishForm := url.Values{}
		publishForm.Set("public", "1")
		var ignored apiEnvelope
		publishPath := fmt.Sprintf("%s%d/", reviewsPath, reviewID)
		if err := c.putForm(ctx, publishPath, publishForm, &ignored); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) latestDiff(ctx context.Context, requestID int64) (int, string, error) {
	diffs, err := c.listDiffs(ctx, requestID)
	if err != nil {
		return 0, "", err
	}
	revision := 0
	baseCommit := ""
	for _, diff := range diffs {
		if diff.Revision > revision {
			revision = diff.Revision
			baseCommit = diff.BaseCommitID
		}
	}
	return revision, baseCommit, nil
}

func (c *Client) listDiffs(ctx context.Context, requestID int64) ([]diffPayload, error) {
	var payload diffListPayload
	path := fmt.Sprintf("/api/review-requests/%d/diffs/", requestID)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Diffs, nil
}

func (c *Client) listFiles(ctx context.Context, requestID int64, revision int) ([]fileDiffPayload, error) {
	var payload fileDiffListPayload
	path := fmt.Sprintf("/api/review-requests/%d/diffs/%d/files/", requestID, revision)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Files, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{ check() error }) error {
	body, _, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.cfg.URL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodePayload(body, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{ check() error }) error {
	return c.sendForm(ctx, http.MethodPost, path, form, out)
}

func (c *Client) putForm(ctx context.Context, path string, form url.Values, out interface{ check() error }) error {
	return c.sendForm(ctx, http.MethodPut, path, form, out)
}

func (c *Client) sendForm(ctx context.Context, method, path string, form url.Values, out interface{ check() error }) error {
	encoded := form.Encode()
	body, _, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(method, c.cfg.URL+path, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodePayload(body, out)
}

func decodePayload(body []byte, out interface{ check() error }) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrServer, err)
	}
	if err := out.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrServer, err)
	}
	return nil
}

func (e *apiEnvelope) check() error {
	if e.Stat != "" && e.Stat != "ok" {
		if e.Err.Msg != "" {
			return fmt.Errorf("api error %d: %s", e.Err.Code, e.Err.Msg)
		}
		return fmt.Errorf("api returned stat %q", e.Stat)
	}
	return nil
}

// ParseRequestID extracts a request id from a bare number, a /r/<id>/ path,
// or a full request URL.
func ParseRequestID(value string) (int64, bool) {
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "/"))
	if value == "" {
		return 0, false
	}
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		value = value[idx+1:]
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func matchFileDiff(files []fileDiffPayload, filePath string) (int64, bool) {
	for _, file := range files {
		if file.DestFile == filePath || file.SourceFile == filePath {
			return file.ID, true
		}
	}
	for _, file := range files {
		if strings.HasSuffix(file.DestFile, filePath) || strings.HasSuffix(filePath, file.DestFile) {
			return file.ID, true
		}
	}
	return 0, false
}

func formatCommentText(comment review.Comment) string {
	var builder strings.Builder
	if comment.Severity != "" {
		builder.WriteString("[")
		builder.WriteString(strings.ToUpper(string(comment.Severity)))
		builder.WriteString("] ")
	}
	builder.WriteString(comment.Message)
	if comment.Suggestion != "" {
		builder.WriteString("\n\nSuggestion:\n```\n")
		builder.WriteString(comment.Suggestion)
		builder.WriteString("\n```")
	}
	return builder.String()
}
