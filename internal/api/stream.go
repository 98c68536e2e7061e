package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ALT-F4-LLC/citywatch/internal/reconcile"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamURL returns the push-channel endpoint. An explicit stream URL wins;
// otherwise it is derived from the base URL with a ws or wss scheme.
func (c *Client) StreamURL() string {
	if c.streamURL != "" {
		return c.streamURL
	}
	u, _ := url.Parse(c.endpoint("issues", "stream"))
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// Subscribe opens the push channel.
func (c *Client) Subscribe(ctx context.Context) (reconcile.Stream, error) {
	const op = "subscribe"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}

	header := http.Header{}
	c.authorize(header)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.http.Timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.StreamURL(), header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			return nil, classifyStatus(op, resp.StatusCode, "")
		}
		return nil, &TransientError{Op: op, Err: err}
	}
	c.log.Debug("push channel open", "url", strings.SplitN(c.StreamURL(), "?", 2)[0])
	return newWSStream(conn), nil
}

// wsStream reads frames from a WebSocket connection and keeps it alive with
// pings until closed.
type wsStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSStream(conn *websocket.Conn) *wsStream {
	s := &wsStream{conn: conn, done: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.pingLoop()
	return s
}

func (s *wsStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.Close()
				return
			}
		}
	}
}

// Next blocks until a text or binary frame arrives, the connection fails,
// or ctx is done.
func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransientError{Op: "read stream", Err: err}
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close frame and releases the connection. It is idempotent.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	if err != nil {
		return fmt.Errorf("closing stream: %w", err)
	}
	return nil
}
