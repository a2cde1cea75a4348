// Package config provides the configuration schema and loader for the
// interview coaching daemon.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RecognizerName selects the fallback recognition backend.
type RecognizerName string

const (
	// RecognizerNone disables the fallback path entirely.
	RecognizerNone RecognizerName = ""

	// RecognizerWhisper runs local whisper.cpp inference.
	RecognizerWhisper RecognizerName = "whisper"

	// RecognizerDeepgram streams audio to the Deepgram API.
	RecognizerDeepgram RecognizerName = "deepgram"
)

// IsValid reports whether r is a recognised backend name.
func (r RecognizerName) IsValid() bool {
	switch r {
	case RecognizerNone, RecognizerWhisper, RecognizerDeepgram:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Store      StoreConfig      `yaml:"store"`
	Transport  TransportConfig  `yaml:"transport"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Memorize   MemorizeConfig   `yaml:"memorize"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus scrape endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// EngineConfig tunes the synchronization engine.
type EngineConfig struct {
	// FreshnessWindowMs is how long after the last primary update fallback
	// candidate updates stay rejected. Defaults to 1200 ms if zero.
	FreshnessWindowMs int `yaml:"freshness_window_ms"`

	// CheckpointIntervalS is how often finalized text is re-flushed to the
	// store, in seconds. Defaults to 30 s if zero.
	CheckpointIntervalS int `yaml:"checkpoint_interval_s"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// PostgresDSN is the connection string of the session database.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TransportConfig configures the primary realtime event stream.
type TransportConfig struct {
	// APIKey authenticates the WebSocket handshake.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default realtime endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the realtime model.
	Model string `yaml:"model"`
}

// RecognizerConfig configures the local fallback recognition path.
type RecognizerConfig struct {
	// Name selects the backend; empty disables the fallback path.
	Name RecognizerName `yaml:"name"`

	// ModelPath is the whisper.cpp model file, required for whisper.
	ModelPath string `yaml:"model_path"`

	// APIKey authenticates against Deepgram, required for deepgram.
	APIKey string `yaml:"api_key"`

	// Model selects the Deepgram model.
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language, e.g. "en".
	Language string `yaml:"language"`

	// SampleRate is the PCM sample rate in Hz of the captured audio.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the PCM channel count of the captured audio.
	Channels int `yaml:"channels"`
}

// MemorizeConfig configures the knowledge-capture MCP client.
type MemorizeConfig struct {
	// Enabled turns command-phrase trigger delivery on.
	Enabled bool `yaml:"enabled"`

	// Transport is "stdio" or "streamable-http".
	Transport string `yaml:"transport"`

	// Command is the server command line for stdio transport.
	Command string `yaml:"command"`

	// URL is the endpoint for streamable-http transport.
	URL string `yaml:"url"`
}

// ReconnectConfig tunes transport redial behavior.
type ReconnectConfig struct {
	// MaxRetries caps redial attempts per drop. Defaults to 10 if zero.
	MaxRetries int `yaml:"max_retries"`

	// BackoffMs is the initial redial delay. Defaults to 1000 ms if zero.
	BackoffMs int `yaml:"backoff_ms"`

	// MaxBackoffMs caps the redial delay. Defaults to 30000 ms if zero.
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}
