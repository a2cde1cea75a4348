package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/engine"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/observe"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/protocol"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transport"
)

// Runner drives one live practice session. It decodes the primary event
// stream into the engine, feeds fallback recognition results into candidate
// arbitration, keeps the checkpoint flush running and survives transport
// drops by redialing. Every acquired resource is released when Run returns,
// on error paths included.
type Runner struct {
	sessionID string
	eng       *engine.Engine
	reconn    *Reconnector
	metrics   *observe.Metrics

	recognizer recognizer.Recognizer
	recogCfg   recognizer.Config

	checkpointInterval time.Duration

	mu        sync.Mutex
	recogSess recognizer.Session
}

// RunnerConfig configures a [Runner].
type RunnerConfig struct {
	// SessionID identifies the practice session.
	SessionID string

	// Engine is the synchronization core. Required.
	Engine *engine.Engine

	// Dialer establishes the primary event stream. Required.
	Dialer transport.Dialer

	// Recognizer provides the local fallback transcription path. Optional;
	// without it the session runs primary-only.
	Recognizer recognizer.Recognizer

	// RecognizerConfig configures the fallback session.
	RecognizerConfig recognizer.Config

	// CheckpointInterval is how often finalized text is re-flushed.
	// Defaults to 30s if zero.
	CheckpointInterval time.Duration

	// Reconnect tunes redial behavior. The Dialer field is filled in from
	// Dialer above.
	Reconnect ReconnectorConfig

	// Metrics overrides the default shared instruments.
	Metrics *observe.Metrics
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, errors.New("session: engine is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}

	reconnCfg := cfg.Reconnect
	reconnCfg.Dialer = cfg.Dialer

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Runner{
		sessionID:          cfg.SessionID,
		eng:                cfg.Engine,
		reconn:             NewReconnector(reconnCfg),
		metrics:            metrics,
		recognizer:         cfg.Recognizer,
		recogCfg:           cfg.RecognizerConfig,
		checkpointInterval: cfg.CheckpointInterval,
	}, nil
}

// SendAudio forwards raw PCM audio to the fallback recognizer. A no-op when
// the session runs primary-only.
func (r *Runner) SendAudio(chunk []byte) error {
	r.mu.Lock()
	sess := r.recogSess
	r.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.SendAudio(chunk)
}

// audioChunkBytes is 100 ms of 16 kHz mono 16-bit PCM.
const audioChunkBytes = 3200

// PumpAudio reads raw PCM from src and forwards it to the fallback
// recognizer in fixed-size chunks until src is drained or ctx is cancelled.
// coachd feeds captured audio from stdin through this; audio arriving before
// the recognizer session is up, or on a primary-only session, is discarded.
func (r *Runner) PumpAudio(ctx context.Context, src io.Reader) error {
	buf := make([]byte, audioChunkBytes)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := r.SendAudio(chunk); sendErr != nil {
				return fmt.Errorf("session: forward audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session: read audio: %w", err)
		}
	}
}

// Run drives the session until ctx is cancelled or the stream is lost for
// good. The engine is finalized and flushed before Run returns, whatever the
// exit path.
func (r *Runner) Run(ctx context.Context) error {
	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	stream, err := r.reconn.Connect(ctx)
	if err != nil {
		return err
	}
	defer r.reconn.Stop()

	// The shutdown flush must run even when ctx is already cancelled.
	defer r.eng.Finish(context.WithoutCancel(ctx))

	if r.recognizer != nil {
		sess, err := r.recognizer.Start(ctx, r.recogCfg)
		if err != nil {
			// Fallback unavailable is not fatal; primary-only operation
			// continues unaffected.
			slog.Warn("fallback recognizer unavailable",
				"session_id", r.sessionID,
				"error", err,
			)
		} else {
			r.mu.Lock()
			r.recogSess = sess
			r.mu.Unlock()
			defer sess.Close()
		}
	}

	checkpointer := NewCheckpointer(r.eng, r.checkpointInterval)
	checkpointer.Start(ctx)
	defer checkpointer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.eventLoop(gctx, stream) })

	r.mu.Lock()
	recogSess := r.recogSess
	r.mu.Unlock()
	if recogSess != nil {
		g.Go(func() error { return r.interimLoop(gctx, recogSess) })
		g.Go(func() error { return r.finalLoop(gctx, recogSess) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// eventLoop decodes every inbound event into the engine. When the stream
// drops it checkpoint-flushes and redials; a locally closed stream ends the
// session normally.
func (r *Runner) eventLoop(ctx context.Context, stream transport.Stream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-stream.Events():
			if !ok {
				err := stream.Err()
				if err == nil {
					return nil
				}

				slog.Warn("event stream dropped",
					"session_id", r.sessionID,
					"error", err,
				)
				r.eng.Checkpoint(ctx)

				next, redialErr := r.reconn.Redial(ctx)
				if redialErr != nil {
					return redialErr
				}
				stream = next
				continue
			}
			r.eng.Apply(ctx, protocol.Decode(evt.Data))
		}
	}
}

// interimLoop feeds fallback interim results into candidate arbitration.
func (r *Runner) interimLoop(ctx context.Context, sess recognizer.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-sess.Interims():
			if !ok {
				return nil
			}
			r.eng.FallbackInterim(res.Text, res.Confidence)
		}
	}
}

// finalLoop feeds fallback final results into candidate arbitration.
func (r *Runner) finalLoop(ctx context.Context, sess recognizer.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-sess.Finals():
			if !ok {
				return nil
			}
			r.eng.FallbackFinal(ctx, res.Text, res.Confidence)
		}
	}
}
