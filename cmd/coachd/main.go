// Command coachd runs the interview practice transcript daemon: it connects
// to the realtime coaching stream, keeps the candidate and coach transcript
// synchronized and persisted, and can render a finished session for export.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/config"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/engine"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/memorize"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/observe"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/reconcile"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/session"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer/deepgram"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer/whisper"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/store/postgres"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transport/realtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sessionID := flag.String("session", "", "session ID to resume; a new one is generated when empty")
	export := flag.Bool("export", false, "render the session transcript to stdout and exit (requires -session)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coachd: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		slog.Error("store init failed", "err", err)
		return 1
	}
	defer st.Close()

	if *export {
		if *sessionID == "" {
			fmt.Fprintln(os.Stderr, "coachd: -export requires -session")
			return 1
		}
		text, err := reconcile.ExportSession(ctx, st, *sessionID)
		if err != nil {
			slog.Error("export failed", "session_id", *sessionID, "err", err)
			return 1
		}
		fmt.Print(text)
		return 0
	}

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "coachd"})
	if err != nil {
		slog.Error("observability init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr)
	}

	resume := *sessionID != ""
	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	engOpts := []engine.Option{}
	if cfg.Engine.FreshnessWindowMs > 0 {
		engOpts = append(engOpts, engine.WithFreshnessWindow(time.Duration(cfg.Engine.FreshnessWindowMs)*time.Millisecond))
	}

	var memorizer *memorize.Client
	if cfg.Memorize.Enabled {
		memorizer, err = memorize.NewClient(memorize.ClientConfig{
			Transport: memorize.Transport(cfg.Memorize.Transport),
			Command:   cfg.Memorize.Command,
			URL:       cfg.Memorize.URL,
		})
		if err != nil {
			slog.Error("memorize client init failed", "err", err)
			return 1
		}
		defer memorizer.Close()
		engOpts = append(engOpts, engine.WithMemorizer(memorizer))
	}

	eng := engine.New(id, st, engOpts...)

	if resume {
		entries, err := reconcile.HydrateSession(ctx, st, id)
		if err != nil {
			slog.Error("session hydration failed", "session_id", id, "err", err)
			return 1
		}
		eng.Hydrate(entries)
		slog.Info("session hydrated", "session_id", id, "entries", len(entries))
	}

	recog, err := buildRecognizer(cfg.Recognizer)
	if err != nil {
		slog.Error("recognizer init failed", "err", err)
		return 1
	}
	if recog != nil {
		defer recog.Close()
	}

	transportOpts := []realtime.Option{}
	if cfg.Transport.BaseURL != "" {
		transportOpts = append(transportOpts, realtime.WithBaseURL(cfg.Transport.BaseURL))
	}
	if cfg.Transport.Model != "" {
		transportOpts = append(transportOpts, realtime.WithModel(cfg.Transport.Model))
	}
	dialer := realtime.New(cfg.Transport.APIKey, transportOpts...)

	runner, err := session.NewRunner(session.RunnerConfig{
		SessionID:  id,
		Engine:     eng,
		Dialer:     dialer,
		Recognizer: recog,
		RecognizerConfig: recognizer.Config{
			Language:   cfg.Recognizer.Language,
			SampleRate: cfg.Recognizer.SampleRate,
			Channels:   cfg.Recognizer.Channels,
		},
		CheckpointInterval: time.Duration(cfg.Engine.CheckpointIntervalS) * time.Second,
		Reconnect: session.ReconnectorConfig{
			MaxRetries: cfg.Reconnect.MaxRetries,
			Backoff:    time.Duration(cfg.Reconnect.BackoffMs) * time.Millisecond,
			MaxBackoff: time.Duration(cfg.Reconnect.MaxBackoffMs) * time.Millisecond,
		},
	})
	if err != nil {
		slog.Error("session init failed", "err", err)
		return 1
	}

	slog.Info("coachd ready",
		"session_id", id,
		"recognizer", cfg.Recognizer.Name,
		"memorize", cfg.Memorize.Enabled,
	)

	if recog != nil {
		// Captured PCM arrives on stdin and feeds the fallback recognizer.
		go func() {
			if err := runner.PumpAudio(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("audio pump stopped", "err", err)
			}
		}()
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session ended with error", "session_id", id, "err", err)
		return 1
	}

	slog.Info("session closed", "session_id", id)
	return 0
}

// buildRecognizer constructs the configured fallback backend, or nil when
// the fallback path is disabled.
func buildRecognizer(cfg config.RecognizerConfig) (recognizer.Recognizer, error) {
	switch cfg.Name {
	case config.RecognizerNone:
		return nil, nil
	case config.RecognizerWhisper:
		opts := []whisper.Option{}
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		if cfg.SampleRate > 0 {
			opts = append(opts, whisper.WithSampleRate(cfg.SampleRate))
		}
		return whisper.New(cfg.ModelPath, opts...)
	case config.RecognizerDeepgram:
		opts := []deepgram.Option{}
		if cfg.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Language))
		}
		if cfg.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.Model))
		}
		return deepgram.New(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("coachd: unknown recognizer %q", cfg.Name)
	}
}

// serveMetrics exposes the Prometheus scrape endpoint.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics endpoint stopped", "err", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
