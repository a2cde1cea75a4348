package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos fail loudly at startup.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Engine.FreshnessWindowMs < 0 {
		errs = append(errs, errors.New("engine.freshness_window_ms must not be negative"))
	}
	if cfg.Engine.CheckpointIntervalS < 0 {
		errs = append(errs, errors.New("engine.checkpoint_interval_s must not be negative"))
	}

	if cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required"))
	}

	if cfg.Transport.APIKey == "" && cfg.Transport.BaseURL == "" {
		errs = append(errs, errors.New("transport.api_key is required for the default endpoint"))
	}

	switch {
	case !cfg.Recognizer.Name.IsValid():
		errs = append(errs, fmt.Errorf("recognizer.name %q is invalid; valid values: whisper, deepgram, or empty to disable", cfg.Recognizer.Name))
	case cfg.Recognizer.Name == RecognizerWhisper && cfg.Recognizer.ModelPath == "":
		errs = append(errs, errors.New("recognizer.model_path is required for the whisper backend"))
	case cfg.Recognizer.Name == RecognizerDeepgram && cfg.Recognizer.APIKey == "":
		errs = append(errs, errors.New("recognizer.api_key is required for the deepgram backend"))
	}
	if cfg.Recognizer.SampleRate < 0 {
		errs = append(errs, errors.New("recognizer.sample_rate must not be negative"))
	}
	if cfg.Recognizer.Channels < 0 {
		errs = append(errs, errors.New("recognizer.channels must not be negative"))
	}

	if cfg.Memorize.Enabled {
		switch cfg.Memorize.Transport {
		case "stdio":
			if cfg.Memorize.Command == "" {
				errs = append(errs, errors.New("memorize.command is required for stdio transport"))
			}
		case "streamable-http":
			if cfg.Memorize.URL == "" {
				errs = append(errs, errors.New("memorize.url is required for streamable-http transport"))
			}
		default:
			errs = append(errs, fmt.Errorf("memorize.transport %q is invalid; valid values: stdio, streamable-http", cfg.Memorize.Transport))
		}
	}

	if cfg.Reconnect.MaxRetries < 0 {
		errs = append(errs, errors.New("reconnect.max_retries must not be negative"))
	}
	if cfg.Reconnect.BackoffMs < 0 || cfg.Reconnect.MaxBackoffMs < 0 {
		errs = append(errs, errors.New("reconnect backoff values must not be negative"))
	}

	return errors.Join(errs...)
}
