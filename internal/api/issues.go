package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// IssueDetail is an issue together with its comment thread.
type IssueDetail struct {
	Issue    *model.Issue
	Comments []model.Comment
}

// SubmitResult holds exactly one of a created issue or a verdict.
type SubmitResult struct {
	Issue   *model.Issue
	Verdict *model.Verdict
}

// ErrLocalMedia is returned when an attachment cannot be read from disk.
var ErrLocalMedia = errors.New("cannot read attachment")

// ListIssues fetches every issue visible to the session. Elements that do
// not decode are logged and left out; skipped counts them. Only a body that
// is not a list at all is an error.
func (c *Client) ListIssues(ctx context.Context) (issues []*model.Issue, skipped int, err error) {
	const op = "list issues"
	body, err := c.doJSON(ctx, op, http.MethodGet, c.endpoint("issues"), nil)
	if err != nil {
		return nil, 0, err
	}
	raw, err := unwrapList(body, "issues", "reports")
	if err != nil {
		return nil, 0, malformed(op, err)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, 0, malformed(op, err)
	}

	issues = make([]*model.Issue, 0, len(elems))
	for i, elem := range elems {
		var issue model.Issue
		if err := json.Unmarshal(elem, &issue); err != nil {
			skipped++
			c.log.Warn("skipping undecodable issue", "op", op, "index", i, "error", err)
			continue
		}
		issues = append(issues, &issue)
	}
	return issues, skipped, nil
}

// GetIssue fetches one issue with its comments.
func (c *Client) GetIssue(ctx context.Context, id string) (*IssueDetail, error) {
	const op = "get issue"
	body, err := c.doJSON(ctx, op, http.MethodGet, c.endpoint("issues", id), nil)
	if err != nil {
		return nil, err
	}
	raw := unwrapObject(body, "issue", "report")

	var issue model.Issue
	if err := json.Unmarshal(raw, &issue); err != nil {
		return nil, malformed(op, err)
	}
	var thread struct {
		Comments []model.Comment `json:"comments"`
	}
	if err := json.Unmarshal(raw, &thread); err != nil {
		return nil, malformed(op, err)
	}
	if thread.Comments == nil {
		// The thread may sit beside a wrapped issue rather than inside it.
		if err := json.Unmarshal(body, &thread); err != nil {
			return nil, malformed(op, err)
		}
	}
	for i := range thread.Comments {
		if thread.Comments[i].IssueID == "" {
			thread.Comments[i].IssueID = issue.ID
		}
	}
	return &IssueDetail{Issue: &issue, Comments: thread.Comments}, nil
}

// UpdateStatus asks the server to move an issue to status. The returned issue
// is nil when the server acknowledges without echoing the record.
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.Status) (*model.Issue, error) {
	const op = "update status"
	body, err := c.doJSON(ctx, op, http.MethodPut, c.endpoint("issues", id, "status"),
		map[string]string{"status": string(status)})
	if err != nil {
		return nil, err
	}
	return optionalIssue(body), nil
}

// AddComment appends a comment to an issue.
func (c *Client) AddComment(ctx context.Context, id, text string) (*model.Comment, error) {
	const op = "add comment"
	body, err := c.doJSON(ctx, op, http.MethodPost, c.endpoint("issues", id, "comments"),
		map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	var comment model.Comment
	if err := json.Unmarshal(unwrapObject(body, "comment"), &comment); err != nil {
		return nil, malformed(op, err)
	}
	if comment.IssueID == "" {
		comment.IssueID = id
	}
	return &comment, nil
}

// Leaderboard fetches contributor standings, ranked.
func (c *Client) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	const op = "leaderboard"
	body, err := c.doJSON(ctx, op, http.MethodGet, c.endpoint("leaderboard"), nil)
	if err != nil {
		return nil, err
	}
	raw, err := unwrapList(body, "leaderboard")
	if err != nil {
		return nil, malformed(op, err)
	}
	var entries []model.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, malformed(op, err)
	}
	model.RankLeaderboard(entries)
	return entries, nil
}

// SubmitReport posts a new report as multipart form data. The report's
// ClientID is sent as the Idempotency-Key so a retried submission is never
// created twice. candidates lists the open issue ids the server should
// compare against.
func (c *Client) SubmitReport(ctx context.Context, r *model.Report, candidates []string) (*SubmitResult, error) {
	const op = "submit report"

	payload, contentType, err := encodeReport(r, candidates)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("issues"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", r.ClientID)

	status, body, err := c.do(ctx, op, req)
	if err != nil {
		// Some servers answer a duplicate with 409 and a verdict body.
		var rej *RejectionError
		if status == http.StatusConflict && errors.As(err, &rej) {
			if res, perr := decodeSubmit(body); perr == nil && res.Verdict != nil {
				return res, nil
			}
		}
		return nil, err
	}

	res, err := decodeSubmit(body)
	if err != nil {
		return nil, malformed(op, err)
	}
	return res, nil
}

func encodeReport(r *model.Report, candidates []string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"client_id", r.ClientID},
		{"title", r.Title},
		{"description", r.Description},
		{"category", r.Category},
		{"priority", string(r.Priority)},
		{"lat", strconv.FormatFloat(r.Location.Lat, 'f', -1, 64)},
		{"lng", strconv.FormatFloat(r.Location.Lng, 'f', -1, 64)},
		{"address", r.Address},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	cands, err := json.Marshal(candidates)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("candidates", string(cands)); err != nil {
		return nil, "", err
	}

	for _, path := range r.Media {
		if err := attach(w, path); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func attach(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrLocalMedia, path, err)
	}
	defer f.Close()
	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("%w %s: %v", ErrLocalMedia, path, err)
	}
	return nil
}

type submitJSON struct {
	IsDuplicate *bool           `json:"is_duplicate"`
	Message     string          `json:"message"`
	IssueID     string          `json:"issue_id"`
	Issue       json.RawMessage `json:"issue"`
	Report      json.RawMessage `json:"report"`
}

// decodeSubmit accepts a verdict object, a wrapped issue or a bare issue.
func decodeSubmit(body []byte) (*SubmitResult, error) {
	var j submitJSON
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, err
	}

	if j.IsDuplicate != nil {
		v := &model.Verdict{IsDuplicate: *j.IsDuplicate, Message: j.Message, IssueID: j.IssueID}
		res := &SubmitResult{Verdict: v}
		if !v.IsDuplicate {
			res.Issue = optionalIssue(body)
		}
		return res, nil
	}

	var issue model.Issue
	if err := json.Unmarshal(unwrapObject(body, "issue", "report"), &issue); err != nil {
		return nil, err
	}
	return &SubmitResult{Issue: &issue}, nil
}

// optionalIssue decodes an issue if body carries a valid one.
func optionalIssue(body []byte) *model.Issue {
	var issue model.Issue
	if err := json.Unmarshal(unwrapObject(body, "issue", "report"), &issue); err != nil {
		return nil
	}
	if issue.Validate() != nil {
		return nil
	}
	return &issue
}

// unwrapList returns the array under the first present key, or body itself
// when it is a bare array.
func unwrapList(body []byte, keys ...string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if raw, ok := obj[k]; ok {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("expected an array or one of %v", keys)
}

// unwrapObject returns the object under the first present key, or body
// itself.
func unwrapObject(body []byte, keys ...string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	for _, k := range keys {
		if raw, ok := obj[k]; ok {
			if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '{' {
				return t
			}
		}
	}
	return body
}
