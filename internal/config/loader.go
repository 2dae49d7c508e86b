package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/pedrosoares/godot-whisper/pkg/codec"
)

// ValidEngineNames lists the engine names known at build time. [Validate]
// warns about anything else but does not fail, since registries may carry
// additional engines.
var ValidEngineNames = []string{"whisper", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		cfg.Audio.FramesPerBuffer = 512
	}
	if cfg.Audio.BufferMs <= 0 {
		cfg.Audio.BufferMs = 10000
	}
	if cfg.Window.WindowMs <= 0 {
		cfg.Window.WindowMs = 3000
	}
	if cfg.Window.HopMs <= 0 {
		cfg.Window.HopMs = 500
	}
	if cfg.Window.SilenceThreshold <= 0 {
		cfg.Window.SilenceThreshold = 0.015
	}
	if cfg.STT.Engine == "" {
		cfg.STT.Engine = "whisper"
	}
	if cfg.Codec.SampleRate <= 0 {
		cfg.Codec.SampleRate = codec.DefaultSampleRate
	}
	if cfg.Codec.Channels <= 0 {
		cfg.Codec.Channels = codec.DefaultChannels
	}
	if cfg.Codec.FrameSize <= 0 {
		cfg.Codec.FrameSize = codec.DefaultFrameSize
	}
	if cfg.Codec.Bitrate <= 0 {
		cfg.Codec.Bitrate = codec.DefaultBitrate
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found. A validation failure is fatal at
// startup: the pipeline never starts on a bad config.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Window.HopMs > cfg.Window.WindowMs {
		errs = append(errs, fmt.Errorf("window.hop_ms (%d) must not exceed window.window_ms (%d)", cfg.Window.HopMs, cfg.Window.WindowMs))
	}
	if cfg.Window.WindowMs > cfg.Audio.BufferMs {
		errs = append(errs, fmt.Errorf("window.window_ms (%d) must not exceed audio.buffer_ms (%d)", cfg.Window.WindowMs, cfg.Audio.BufferMs))
	}

	if cfg.STT.Engine == "whisper" && cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required for the whisper engine"))
	}
	if !knownEngine(cfg.STT.Engine) {
		// Warn only: a registry may know more engines than this package.
		fmt.Fprintf(os.Stderr, "config: unrecognised stt.engine %q (known: %v)\n", cfg.STT.Engine, ValidEngineNames)
	}

	for i, tr := range cfg.Keywords.Triggers {
		if tr.Phrase == "" || tr.Alias == "" {
			errs = append(errs, fmt.Errorf("keywords.triggers[%d]: phrase and alias must both be set", i))
		}
	}

	codecCfg := codec.Config{
		SampleRate: cfg.Codec.SampleRate,
		Channels:   cfg.Codec.Channels,
		FrameSize:  cfg.Codec.FrameSize,
		Bitrate:    cfg.Codec.Bitrate,
	}
	if sizes := codec.ValidFrameSizes(codecCfg.SampleRate); sizes == nil {
		errs = append(errs, fmt.Errorf("codec.sample_rate %d is not an Opus rate", codecCfg.SampleRate))
	} else if !slices.Contains(sizes, codecCfg.FrameSize) {
		errs = append(errs, fmt.Errorf("codec.frame_size %d invalid for %d Hz (valid: %v)", codecCfg.FrameSize, codecCfg.SampleRate, sizes))
	}

	return errors.Join(errs...)
}

func knownEngine(name string) bool {
	return slices.Contains(ValidEngineNames, name)
}
