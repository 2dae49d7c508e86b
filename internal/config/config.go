// Package config provides the configuration schema, loader, and
// engine registry for the voice pipeline.
package config

import (
	"log/slog"
	"time"
)

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

// Slog maps the level to its slog equivalent. Unknown levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address for the Prometheus /metrics endpoint
	// (e.g. ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	Audio    AudioConfig    `yaml:"audio"`
	Window   WindowConfig   `yaml:"window"`
	STT      STTConfig      `yaml:"stt"`
	Keywords KeywordsConfig `yaml:"keywords"`
	Codec    CodecConfig    `yaml:"codec"`
}

// AudioConfig holds capture-device settings.
type AudioConfig struct {
	// Device selects the input device by name. Empty uses the default.
	Device string `yaml:"device"`

	// SampleRate is the capture rate in Hz. Default 16000 (the rate the
	// inference engine expects; anything else gets resampled).
	SampleRate int `yaml:"sample_rate"`

	// FramesPerBuffer is the samples per channel per device read. Default 512.
	FramesPerBuffer int `yaml:"frames_per_buffer"`

	// BufferMs is the ring-buffer depth in milliseconds. Default 10000.
	BufferMs int `yaml:"buffer_ms"`
}

// WindowConfig holds the streaming-inference window geometry.
type WindowConfig struct {
	// WindowMs is the inference window length in milliseconds. Default 3000.
	WindowMs int `yaml:"window_ms"`

	// HopMs is the interval between consecutive windows in milliseconds.
	// Must not exceed WindowMs. Default 500.
	HopMs int `yaml:"hop_ms"`

	// SilenceThreshold is the RMS level below which audio is treated as
	// silence and no inference is scheduled. Default 0.015.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// Window returns the window length as a duration.
func (w WindowConfig) Window() time.Duration { return time.Duration(w.WindowMs) * time.Millisecond }

// Hop returns the hop interval as a duration.
func (w WindowConfig) Hop() time.Duration { return time.Duration(w.HopMs) * time.Millisecond }

// STTConfig selects and configures the speech-inference engine.
type STTConfig struct {
	// Engine selects the registered engine implementation ("whisper", "mock").
	Engine string `yaml:"engine"`

	// ModelPath is the model file path, passed through to the engine as
	// opaque configuration.
	ModelPath string `yaml:"model_path"`

	// Language is the recognition language code (e.g. "en"). Empty lets the
	// engine use its default.
	Language string `yaml:"language"`

	// Threads caps the CPU threads per inference. Zero uses the engine default.
	Threads int `yaml:"threads"`
}

// TriggerConfig is one keyword trigger registered at startup.
type TriggerConfig struct {
	// Phrase is the spoken text to listen for.
	Phrase string `yaml:"phrase"`

	// Alias is the event name emitted when the phrase is heard.
	Alias string `yaml:"alias"`
}

// KeywordsConfig holds trigger registration and matching options.
type KeywordsConfig struct {
	// Phonetic enables the phonetic fallback for near-miss pronunciations.
	Phonetic bool `yaml:"phonetic"`

	// Triggers are registered before the pipeline starts. More can be added
	// at runtime through the pipeline API.
	Triggers []TriggerConfig `yaml:"triggers"`
}

// CodecConfig holds the Opus session profile.
type CodecConfig struct {
	// SampleRate in Hz. Default 48000.
	SampleRate int `yaml:"sample_rate"`

	// Channels: 1 or 2. Default 2.
	Channels int `yaml:"channels"`

	// FrameSize is the native frame size in samples per channel. Default 960.
	FrameSize int `yaml:"frame_size"`

	// Bitrate in bits per second. Default 128000.
	Bitrate int `yaml:"bitrate"`
}
