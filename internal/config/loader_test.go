package config_test

import (
	"strings"
	"testing"

	"github.com/pedrosoares/godot-whisper/internal/config"
)

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: mock
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log level default = %q, want info", cfg.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("audio sample rate default = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Window.WindowMs != 3000 || cfg.Window.HopMs != 500 {
		t.Errorf("window defaults = %d/%d, want 3000/500", cfg.Window.WindowMs, cfg.Window.HopMs)
	}
	if cfg.Codec.SampleRate != 48000 || cfg.Codec.FrameSize != 960 {
		t.Errorf("codec defaults = %d/%d, want 48000/960", cfg.Codec.SampleRate, cfg.Codec.FrameSize)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: mock
  temperture: 0.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_HopExceedsWindow(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: mock
window:
  window_ms: 1000
  hop_ms: 2000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for hop > window, got nil")
	}
	if !strings.Contains(err.Error(), "hop_ms") {
		t.Errorf("error should mention hop_ms, got: %v", err)
	}
}

func TestValidate_WindowExceedsBuffer(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: mock
audio:
  buffer_ms: 2000
window:
  window_ms: 5000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for window > buffer, got nil")
	}
}

func TestValidate_WhisperRequiresModelPath(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: whisper
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for whisper without model_path, got nil")
	}
	if !strings.Contains(err.Error(), "model_path") {
		t.Errorf("error should mention model_path, got: %v", err)
	}
}

func TestValidate_IncompleteTrigger(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: mock
keywords:
  triggers:
    - phrase: fireball
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for trigger without alias, got nil")
	}
}

func TestValidate_BadCodecFrameSize(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: mock
codec:
  sample_rate: 48000
  frame_size: 1000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid codec frame size, got nil")
	}
	if !strings.Contains(err.Error(), "frame_size") {
		t.Errorf("error should mention frame_size, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  engine: whisper
window:
  window_ms: 1000
  hop_ms: 2000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "hop_ms") || !strings.Contains(errStr, "model_path") {
		t.Errorf("error should report both failures, got: %v", err)
	}
}

func TestValidate_FullConfigIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: debug
metrics_addr: ":9090"
audio:
  device: "USB Microphone"
  sample_rate: 16000
window:
  window_ms: 3000
  hop_ms: 500
  silence_threshold: 0.02
stt:
  engine: whisper
  model_path: /models/ggml-base.en.bin
  language: en
  threads: 4
keywords:
  phonetic: true
  triggers:
    - phrase: fireball
      alias: cast_fireball
codec:
  sample_rate: 48000
  channels: 2
  frame_size: 960
  bitrate: 128000
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.STT.ModelPath != "/models/ggml-base.en.bin" {
		t.Errorf("model path = %q", cfg.STT.ModelPath)
	}
	if len(cfg.Keywords.Triggers) != 1 || cfg.Keywords.Triggers[0].Alias != "cast_fireball" {
		t.Errorf("triggers = %+v", cfg.Keywords.Triggers)
	}
}
