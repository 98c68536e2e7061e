package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

const issueBody = `{"id":"i1","title":"Pothole","status":"submitted","priority":"high",
	"location":{"lat":12.9,"lng":77.6},"createdAt":"2026-01-02T03:04:05Z","updatedAt":"2026-01-02T03:04:05.25Z"}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL: srv.URL + "/api",
		Token:   "tok",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "https://example.com/api/"})
	assert.NoError(t, err)
}

func TestListIssuesShapes(t *testing.T) {
	for name, body := range map[string]string{
		"wrapped": `{"issues":[` + issueBody + `]}`,
		"reports": `{"reports":[` + issueBody + `]}`,
		"bare":    `[` + issueBody + `]`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/issues", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				io.WriteString(w, body)
			}))
			issues, skipped, err := c.ListIssues(context.Background())
			require.NoError(t, err)
			assert.Zero(t, skipped)
			require.Len(t, issues, 1)
			assert.Equal(t, "i1", issues[0].ID)
			assert.Equal(t, model.PriorityHigh, issues[0].Priority)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{401, `{"detail":"expired"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrSessionInvalid)
		}},
		{403, ``, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrSessionInvalid)
		}},
		{404, `{"detail":"no such issue"}`, func(t *testing.T, err error) {
			assert.True(t, IsNotFound(err))
		}},
		{422, `{"detail":"title too short"}`, func(t *testing.T, err error) {
			var rej *RejectionError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, 422, rej.Status)
			assert.Equal(t, "title too short", rej.Detail)
		}},
		{429, ``, func(t *testing.T, err error) {
			assert.True(t, IsTransient(err))
		}},
		{503, `upstream down`, func(t *testing.T, err error) {
			var te *TransientError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, 503, te.Status)
			assert.Contains(t, te.Error(), "upstream down")
		}},
	}

	for _, tt := range tests {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, tt.body)
		}))
		_, err := c.GetIssue(context.Background(), "x")
		require.Error(t, err, "status %d", tt.status)
		tt.check(t, err)
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(fmt.Errorf("subscribing: %w", classifyStatus("stream", 401, ""))))
	assert.True(t, IsPermanent(fmt.Errorf("fetching issues: %w", classifyStatus("list issues", 410, "gone"))))
	assert.False(t, IsPermanent(classifyStatus("list issues", 503, "")))
	assert.False(t, IsPermanent(errors.New("connection reset")))
	assert.False(t, IsPermanent(nil))
}

func TestMalformedPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"issues": "nope"}`)
	}))
	_, _, err := c.ListIssues(context.Background())
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestListIssuesSkipsUndecodableElements(t *testing.T) {
	noLocation := `{"id":"i2","title":"Streetlight","status":"submitted","createdAt":"2026-01-02T03:04:05Z"}`
	unknownStatus := `{"id":"i3","title":"Graffiti","status":"Open","location":{"lat":1,"lng":2},"createdAt":"2026-01-02T03:04:05Z"}`
	second := strings.Replace(issueBody, `"id":"i1"`, `"id":"i4"`, 1)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"issues":[`+issueBody+`,`+noLocation+`,`+unknownStatus+`,`+second+`]}`)
	}))
	issues, skipped, err := c.ListIssues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, issues, 2)
	assert.Equal(t, "i1", issues[0].ID)
	assert.Equal(t, "i4", issues[1].ID)
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	_, _, err = c.ListIssues(context.Background())
	assert.True(t, IsTransient(err), "got %v", err)
}

func TestGetIssueWithComments(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues/i1", r.URL.Path)
		io.WriteString(w, `{"issue":`+issueBody+`,"comments":[{"id":"c1","text":"seen it","author":{"name":"Mei"},"createdAt":"2026-01-03T00:00:00Z"}]}`)
	}))
	d, err := c.GetIssue(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, "Pothole", d.Issue.Title)
	require.Len(t, d.Comments, 1)
	assert.Equal(t, "seen it", d.Comments[0].Body)
	assert.Equal(t, "Mei", d.Comments[0].Author)
	assert.Equal(t, "i1", d.Comments[0].IssueID)
}

func TestUpdateStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/issues/i1/status", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "resolved", body["status"])
		io.WriteString(w, `{"message":"ok"}`)
	}))
	issue, err := c.UpdateStatus(context.Background(), "i1", model.StatusResolved)
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestAddComment(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "on it", body["text"])
		io.WriteString(w, `{"comment":{"id":"c9","text":"on it","author":"staff"}}`)
	}))
	cm, err := c.AddComment(context.Background(), "i1", "on it")
	require.NoError(t, err)
	assert.Equal(t, "c9", cm.ID)
	assert.Equal(t, "i1", cm.IssueID)
}

func TestLeaderboardRanked(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"leaderboard":[{"name":"b","points":5},{"name":"a","points":9}]}`)
	}))
	entries, err := c.Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
}

func TestSubmitReport(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "hole.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0o644))

	r := model.NewReport("Pothole", "Deep", "Roads", model.PriorityHigh, model.Coordinate{Lat: 12.9, Lng: 77.6})
	r.Media = []string{photo}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, r.ClientID, req.Header.Get("Idempotency-Key"))
		require.NoError(t, req.ParseMultipartForm(1<<20))
		assert.Equal(t, "Pothole", req.FormValue("title"))
		assert.Equal(t, "12.9", req.FormValue("lat"))
		assert.Equal(t, `["i7"]`, req.FormValue("candidates"))
		files := req.MultipartForm.File["media"]
		require.Len(t, files, 1)
		assert.Equal(t, "hole.jpg", files[0].Filename)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"issue":`+issueBody+`}`)
	}))

	res, err := c.SubmitReport(context.Background(), r, []string{"i7"})
	require.NoError(t, err)
	require.NotNil(t, res.Issue)
	assert.Nil(t, res.Verdict)
	assert.Equal(t, "i1", res.Issue.ID)
}

func TestSubmitReportVerdicts(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		dup    bool
	}{
		{"200 verdict", 200, `{"is_duplicate":true,"message":"Already reported","issue_id":"i1"}`, true},
		{"409 verdict", 409, `{"is_duplicate":true,"message":"Already reported","issue_id":"i1"}`, true},
		{"not duplicate", 200, `{"is_duplicate":false,"message":"created","issue":` + issueBody + `}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			r := model.NewReport("t", "d", "", "", model.Coordinate{Lat: 1, Lng: 1})
			res, err := c.SubmitReport(context.Background(), r, nil)
			require.NoError(t, err)
			require.NotNil(t, res.Verdict)
			assert.Equal(t, tt.dup, res.Verdict.IsDuplicate)
			if !tt.dup {
				require.NotNil(t, res.Issue)
			}
		})
	}
}

func TestSubmitReportMissingMedia(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	r := model.NewReport("t", "d", "", "", model.Coordinate{Lat: 1, Lng: 1})
	r.Media = []string{filepath.Join(t.TempDir(), "missing.jpg")}
	_, err := c.SubmitReport(context.Background(), r, nil)
	assert.ErrorIs(t, err, ErrLocalMedia)
}

func TestStreamURL(t *testing.T) {
	c, err := New(Options{BaseURL: "https://civic.example/api"})
	require.NoError(t, err)
	assert.Equal(t, "wss://civic.example/api/issues/stream", c.StreamURL())

	c, err = New(Options{BaseURL: "http://localhost:8000", StreamURL: "ws://push.local/feed"})
	require.NoError(t, err)
	assert.Equal(t, "ws://push.local/feed", c.StreamURL())
}

func TestSubscribeStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverDone := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"deleted","issueId":"a"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"deleted","issueId":"b"}`))
		<-serverDone
	}))
	defer close(serverDone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer s.Close()

	for _, id := range []string{"a", "b"} {
		data, err := s.Next(ctx)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), `"`+id+`"`))
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
	assert.NoError(t, s.Close())
}

func TestSubscribeUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := c.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrSessionInvalid)
}
