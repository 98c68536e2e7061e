// Package api is the HTTP and WebSocket client for the issue-reporting
// service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

// Options configure a Client.
type Options struct {
	BaseURL           string
	StreamURL         string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to the remote service. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	streamURL string
	token     string
	http      *http.Client
	limiter   *rate.Limiter
	log       *slog.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 4
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:      base,
		streamURL: opts.StreamURL,
		token:     opts.Token,
		http:      hc,
		limiter:   rate.NewLimiter(limit, burst),
		log:       logger,
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

// do sends a request and returns the body of a 2xx response. Non-2xx
// responses are mapped through classifyStatus.
func (c *Client) do(ctx context.Context, op string, req *http.Request) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, &TransientError{Op: op, Err: err}
	}

	c.authorize(req.Header)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransientError{Op: op, Status: resp.StatusCode, Err: err}
	}
	c.log.Debug("api request", "op", op, "method", req.Method, "url", req.URL.Path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, classifyStatus(op, resp.StatusCode, errorDetail(body))
	}
	return resp.StatusCode, body, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	_, out, err := c.do(ctx, op, req)
	return out, err
}

// errorDetail pulls a human-readable message out of an error body.
func errorDetail(body []byte) string {
	var j struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &j); err == nil {
		for _, s := range []string{j.Detail, j.Error, j.Message} {
			if s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "<") {
		return ""
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrMalformedPayload, err)
}
