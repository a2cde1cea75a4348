// Package whisper implements [recognizer.Recognizer] on the whisper.cpp CGO
// bindings, so the fallback transcription path works fully offline. The
// whisper.cpp static library (libwhisper.a) and headers must be available at
// link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer"
)

// Compile-time assertions.
var _ recognizer.Recognizer = (*Recognizer)(nil)
var _ recognizer.Session = (*session)(nil)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// defaultSilenceMs is the consecutive-silence duration that flushes the
	// buffered speech to inference.
	defaultSilenceMs = 500

	// defaultMaxBufferMs forces a flush when a phrase runs this long.
	defaultMaxBufferMs = 10_000

	// rmsSpeechThreshold is the 16-bit PCM RMS level above which a chunk
	// counts as speech.
	rmsSpeechThreshold = 300.0
)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the default BCP-47 language code.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithSampleRate sets the default PCM sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(r *Recognizer) { r.sampleRate = rate }
}

// WithSilenceThresholdMs sets the silence duration that triggers a flush.
func WithSilenceThresholdMs(ms int) Option {
	return func(r *Recognizer) { r.silenceMs = ms }
}

// WithMaxBufferDurationMs sets the forced-flush phrase length cap.
func WithMaxBufferDurationMs(ms int) Option {
	return func(r *Recognizer) { r.maxBufferMs = ms }
}

// Recognizer loads one whisper.cpp model and shares it across sessions. Each
// session runs inference in its own context, so sessions are independent.
type Recognizer struct {
	model    whisperlib.Model
	language string

	sampleRate  int
	silenceMs   int
	maxBufferMs int
}

// New loads the whisper.cpp model from modelPath. The caller must Close the
// recognizer when done.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:       model,
		language:    defaultLanguage,
		sampleRate:  defaultSampleRate,
		silenceMs:   defaultSilenceMs,
		maxBufferMs: defaultMaxBufferMs,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the shared model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Start implements [recognizer.Recognizer].
func (r *Recognizer) Start(ctx context.Context, cfg recognizer.Config) (recognizer.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = r.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = r.sampleRate
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &session{
		model:       r.model,
		language:    lang,
		sampleRate:  rate,
		channels:    channels,
		silenceMs:   r.silenceMs,
		maxBufferMs: r.maxBufferMs,

		audio:    make(chan []byte, 256),
		interims: make(chan recognizer.Result, 64),
		finals:   make(chan recognizer.Result, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// session is one live transcription stream. All buffering and silence state
// is confined to the processLoop goroutine.
type session struct {
	model       whisperlib.Model
	language    string
	sampleRate  int
	channels    int
	silenceMs   int
	maxBufferMs int

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
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Interims implements [recognizer.Session].
func (s *session) Interims() <-chan recognizer.Result { return s.interims }

// Finals implements [recognizer.Session].
func (s *session) Finals() <-chan recognizer.Result { return s.finals }

// Close implements [recognizer.Session].
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop owns silence detection, buffering and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.interims)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silence   int
	)

	bytesPerMs := s.sampleRate * s.channels * 2 / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferMs * bytesPerMs

	flush := func() {
		pcm := buffer
		spoke := hadSpeech
		buffer = nil
		hadSpeech = false
		silence = 0

		if len(pcm) == 0 || !spoke {
			return
		}

		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whisper inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}

		// Channels are buffered; a stalled consumer drops the result rather
		// than wedging the audio path.
		select {
		case s.interims <- recognizer.Result{Text: text}:
		default:
		}
		select {
		case s.finals <- recognizer.Result{Text: text}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-s.done:
			flush()
			return
		case chunk := <-s.audio:
			if rms(chunk) < rmsSpeechThreshold {
				if !hadSpeech {
					continue
				}
				silence += durationMs(len(chunk), s.sampleRate, s.channels)
				buffer = append(buffer, chunk...)
				if silence >= s.silenceMs {
					flush()
				}
				continue
			}

			hadSpeech = true
			silence = 0
			buffer = append(buffer, chunk...)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
				flush()
			}
		}
	}
}

// infer runs whisper.cpp over one buffered phrase and returns the joined
// segment text. A fresh context per inference keeps sessions independent;
// only the model is shared.
func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToMonoFloat32(pcm, s.channels)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: set language failed, using model default",
			"language", s.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
