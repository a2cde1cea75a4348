// Package realtime implements [transport.Dialer] over a WebSocket connection
// to a realtime coaching endpoint. The stream forwards raw JSON frames
// without interpreting them.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transport"
)

// Compile-time assertions that the exported types satisfy the transport
// interfaces.
var _ transport.Dialer = (*Client)(nil)
var _ transport.Stream = (*stream)(nil)

const (
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultModel   = "gpt-4o-realtime-preview"

	// eventBuffer absorbs short consumer stalls without blocking the read
	// loop.
	eventBuffer = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model query parameter of the session endpoint.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHeader adds an extra HTTP header to the dial handshake.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client dials realtime event streams. One Client can dial any number of
// streams; the session layer redials through it after disconnects.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	header  http.Header
}

// New creates a Client with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		header:  http.Header{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial establishes one live stream. The returned stream's read loop runs
// until the connection drops or Close is called.
func (c *Client) Dial(ctx context.Context) (transport.Stream, error) {
	wsURL := fmt.Sprintf("%s?model=%s", c.baseURL, c.model)

	header := http.Header{}
	for k, vs := range c.header {
		header[k] = vs
	}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &stream{
		conn:   conn,
		events: make(chan transport.Event, eventBuffer),
		ctx:    readCtx,
		cancel: cancel,
	}
	go s.receiveLoop()
	return s, nil
}

// ── Stream ─────────────────────────────────────────────────────────────────────

type stream struct {
	conn   *websocket.Conn
	events chan transport.Event

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// receiveLoop reads frames from the WebSocket and forwards them until the
// connection terminates.
func (s *stream) receiveLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}
		select {
		case s.events <- transport.Event{Data: data, ReceivedAt: time.Now()}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *stream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Events implements [transport.Stream].
func (s *stream) Events() <-chan transport.Event { return s.events }

// Send implements [transport.Stream].
func (s *stream) Send(ctx context.Context, data []byte) error {
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("realtime: send: %w", err)
	}
	return nil
}

// Err implements [transport.Stream].
func (s *stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close implements [transport.Stream]. The read loop observes the cancelled
// context and closes the events channel without recording an error. CloseNow
// tears the connection down immediately rather than waiting on the peer's
// close handshake, so Close never blocks on an unresponsive server.
func (s *stream) Close() error {
	s.cancel()
	s.conn.CloseNow()
	return nil
}
