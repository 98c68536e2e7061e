package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/citywatch/internal/config"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
)

func issueDoc(id, title, status string) string {
	return fmt.Sprintf(`{"id":%q,"title":%q,"status":%q,"priority":"high","category":"Roads",`+
		`"location":{"lat":12.97,"lng":77.59},"createdAt":"2026-05-01T08:00:00Z","updatedAt":"2026-05-01T08:00:00Z"}`,
		id, title, status)
}

// cityServer is an in-memory stand-in for the issue service.
type cityServer struct {
	mu         sync.Mutex
	ids        []string
	titles     map[string]string
	statuses   map[string]string
	extra      []string // raw list elements served after the known issues
	detailDown bool
	submits    int
}

func newCityServer() *cityServer {
	return &cityServer{
		ids:      []string{"i1", "i2"},
		titles:   map[string]string{"i1": "Pothole on MG Road", "i2": "Streetlight out"},
		statuses: map[string]string{"i1": "submitted", "i2": "submitted"},
	}
}

func (s *cityServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/issues", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		docs := make([]string, 0, len(s.ids)+len(s.extra))
		for _, id := range s.ids {
			docs = append(docs, issueDoc(id, s.titles[id], s.statuses[id]))
		}
		docs = append(docs, s.extra...)
		io.WriteString(w, `{"issues":[`+strings.Join(docs, ",")+`]}`)
	})
	mux.HandleFunc("GET /api/issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		id := r.PathValue("id")
		if s.detailDown {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if _, ok := s.titles[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"no such issue"}`)
			return
		}
		io.WriteString(w, `{"issue":`+issueDoc(id, s.titles[id], s.statuses[id])+
			`,"comments":[{"id":"c1","text":"crew on the way","author":"Mei","createdAt":"2026-05-02T09:00:00Z"}]}`)
	})
	mux.HandleFunc("PUT /api/issues/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.statuses[r.PathValue("id")] = body.Status
		s.mu.Unlock()
		io.WriteString(w, `{"message":"Status updated"}`)
	})
	mux.HandleFunc("POST /api/issues", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.submits++
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"is_duplicate":false,"message":"Thanks for reporting","issue":`+
			issueDoc("i9", "Fallen tree", "submitted")+`}`)
	})
	mux.HandleFunc("GET /api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	return mux
}

func (s *cityServer) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

// setupCLI points the command tree at a fresh cache and srv, and runs init.
func setupCLI(t *testing.T, srv *cityServer) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	t.Chdir(t.TempDir())
	t.Setenv(config.EnvPath, t.TempDir())
	t.Setenv(config.EnvURL, ts.URL+"/api")
	t.Setenv(config.EnvStreamURL, "")
	t.Setenv(config.EnvToken, "tok")
	t.Setenv(config.EnvTokenFile, "")

	_, err := runCLI(t, "init")
	require.NoError(t, err)
}

// runCLI executes the root command with args and returns what it wrote to
// stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// resetFlags clears flag values and contexts left over from an earlier run.
func resetFlags(cmd *cobra.Command) {
	cmd.SetContext(context.Background())
	for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// decodeData unwraps a JSON success envelope into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var env struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output: %s", out)
	require.True(t, env.OK)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func errorCode(err error) output.ErrorCode {
	var ce *CmdError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func TestListCommandSkipsMalformedRecords(t *testing.T) {
	srv := newCityServer()
	srv.extra = []string{
		`{"id":"bad1","title":"No location","status":"submitted","createdAt":"2026-05-01T08:00:00Z"}`,
		`{"id":"bad2","title":"Odd status","status":"Open","location":{"lat":1,"lng":2}}`,
	}
	setupCLI(t, srv)

	out, err := runCLI(t, "list", "--json")
	require.NoError(t, err)

	var res struct {
		Issues []*model.Issue `json:"issues"`
		Total  int            `json:"total"`
	}
	decodeData(t, out, &res)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Issues, 2)
	ids := []string{res.Issues[0].ID, res.Issues[1].ID}
	assert.ElementsMatch(t, []string{"i1", "i2"}, ids)

	out, err = runCLI(t, "stats", "--json")
	require.NoError(t, err)
	var stats struct {
		Total int `json:"total"`
		Sync  struct {
			Malformed int `json:"malformed"`
		} `json:"sync"`
	}
	decodeData(t, out, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Sync.Malformed)
}

func TestStatusCommandWithoutEchoedIssue(t *testing.T) {
	srv := newCityServer()
	setupCLI(t, srv)

	_, err := runCLI(t, "list", "--json")
	require.NoError(t, err)

	out, err := runCLI(t, "status", "i1", "in_review", "--json")
	require.NoError(t, err)
	var updated model.Issue
	decodeData(t, out, &updated)
	assert.Equal(t, "i1", updated.ID)
	assert.Equal(t, model.StatusInReview, updated.Status)

	// The read-back record reached the cache.
	out, err = runCLI(t, "show", "i1", "--offline", "--json")
	require.NoError(t, err)
	var shown struct {
		Issue  *model.Issue `json:"issue"`
		Cached bool         `json:"cached"`
	}
	decodeData(t, out, &shown)
	assert.True(t, shown.Cached)
	assert.Equal(t, model.StatusInReview, shown.Issue.Status)

	_, err = runCLI(t, "status", "i1", "submitted", "--json")
	assert.Equal(t, output.ErrConflict, errorCode(err))
}

func TestStatusCommandWhenReadBackFails(t *testing.T) {
	srv := newCityServer()
	srv.detailDown = true
	setupCLI(t, srv)

	out, err := runCLI(t, "status", "i2", "in_progress", "--json")
	require.NoError(t, err)
	var res map[string]string
	decodeData(t, out, &res)
	assert.Equal(t, map[string]string{"id": "i2", "status": "in_progress"}, res)
}

func TestReportCommand(t *testing.T) {
	srv := newCityServer()
	setupCLI(t, srv)

	out, err := runCLI(t, "report", "--json",
		"-t", "Fallen tree", "-d", "Blocking the lane", "-c", "Parks",
		"--lat", "12.98", "--lng", "77.60")
	require.NoError(t, err)

	var res struct {
		Outcome  string `json:"outcome"`
		ClientID string `json:"client_id"`
		IssueID  string `json:"issue_id"`
	}
	decodeData(t, out, &res)
	assert.Equal(t, "created", res.Outcome)
	assert.Equal(t, "i9", res.IssueID)
	assert.NotEmpty(t, res.ClientID)
	assert.Equal(t, 1, srv.submitCount())

	_, err = runCLI(t, "report", "--json", "-t", "No place")
	assert.Equal(t, output.ErrValidation, errorCode(err))
	assert.Equal(t, 1, srv.submitCount())
}

func TestShowCommand(t *testing.T) {
	srv := newCityServer()
	setupCLI(t, srv)

	out, err := runCLI(t, "show", "i1", "--json")
	require.NoError(t, err)
	var res struct {
		Issue    *model.Issue    `json:"issue"`
		Comments []model.Comment `json:"comments"`
		Cached   bool            `json:"cached"`
	}
	decodeData(t, out, &res)
	require.NotNil(t, res.Issue)
	assert.Equal(t, "Pothole on MG Road", res.Issue.Title)
	assert.False(t, res.Cached)
	require.Len(t, res.Comments, 1)
	assert.Equal(t, "crew on the way", res.Comments[0].Body)
	assert.Equal(t, "Mei", res.Comments[0].Author)

	_, err = runCLI(t, "show", "nope", "--json")
	assert.Equal(t, output.ErrNotFound, errorCode(err))
}
