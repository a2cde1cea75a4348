// Package deepgram implements [recognizer.Recognizer] on the Deepgram
// streaming WebSocket API, for deployments that want a cloud fallback
// recognizer instead of local inference.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer"
)

// Compile-time assertions.
var _ recognizer.Recognizer = (*Recognizer)(nil)
var _ recognizer.Session = (*session)(nil)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model, e.g. "nova-3".
func WithModel(model string) Option {
	return func(r *Recognizer) { r.model = model }
}

// WithLanguage sets the default BCP-47 language code.
func WithLanguage(language string) Option {
	return func(r *Recognizer) { r.language = language }
}

// WithEndpoint overrides the streaming endpoint. Primarily used in tests to
// point at a local mock server.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// Recognizer dials Deepgram streaming sessions.
type Recognizer struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	r := &Recognizer{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close implements [recognizer.Recognizer]. The Recognizer holds no shared
// resources; sessions own their connections.
func (r *Recognizer) Close() error { return nil }

// Start implements [recognizer.Recognizer].
func (r *Recognizer) Start(ctx context.Context, cfg recognizer.Config) (recognizer.Session, error) {
	wsURL, err := r.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &session{
		conn:     conn,
		audio:    make(chan []byte, 256),
		interims: make(chan recognizer.Result, 64),
		finals:   make(chan recognizer.Result, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)
	return s, nil
}

func (r *Recognizer) buildURL(cfg recognizer.Config) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = r.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(rate))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resultsMessage is the shape of a Deepgram Results event.
type resultsMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is one live Deepgram stream.
type session struct {
	conn     *websocket.Conn
	audio    chan []byte
	interims chan recognizer.Result
	finals   chan recognizer.Result

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio implements [recognizer.Session].
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Interims implements [recognizer.Session].
func (s *session) Interims() <-chan recognizer.Result { return s.interims }

// Finals implements [recognizer.Session].
func (s *session) Finals() <-chan recognizer.Result { return s.finals }

// Close implements [recognizer.Session]. A CloseStream message asks Deepgram
// to flush pending audio before the connection drops.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop forwards queued audio as binary frames.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain whatever is already queued so CloseStream flushes it.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop parses Results events and routes them to the interim or final
// channel.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.interims)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		res, final, ok := parseResults(msg)
		if !ok {
			continue
		}

		out := s.interims
		if final {
			out = s.finals
		}
		select {
		case out <- res:
		case <-s.done:
		}
	}
}

// parseResults extracts the top alternative of a Results event. Non-Results
// messages and empty transcripts are ignored.
func parseResults(data []byte) (recognizer.Result, bool, bool) {
	var msg resultsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return recognizer.Result{}, false, false
	}
	if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return recognizer.Result{}, false, false
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return recognizer.Result{}, false, false
	}
	return recognizer.Result{Text: alt.Transcript, Confidence: alt.Confidence}, msg.IsFinal, true
}
