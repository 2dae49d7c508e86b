// Package whisper implements stt.Engine on top of the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/pedrosoares/godot-whisper/pkg/stt"
)

// SampleRate is the input rate whisper models are trained on.
const SampleRate = 16000

const defaultLanguage = "en"

// Engine runs whisper.cpp inference over audio windows. The model is loaded
// once in New and is read-only afterwards; each Transcribe call creates a
// fresh whisper context, so the engine itself needs no locking for the
// sequential use the scheduler gives it.
type Engine struct {
	model    whisperlib.Model
	language string
	threads  uint
}

var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the transcription language code (e.g. "en", "pt", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithThreads caps the CPU threads whisper.cpp may use per inference.
// Zero leaves the binding default in place.
func WithThreads(n uint) Option {
	return func(e *Engine) { e.threads = n }
}

// New loads the whisper model at modelPath. Model and backend selection
// happen entirely inside whisper.cpp; the path is treated as opaque
// configuration. The caller must Close the engine when done.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// SampleRate returns the fixed 16 kHz whisper input rate.
func (e *Engine) SampleRate() int { return SampleRate }

// Close releases the model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs one inference pass over the window and returns its
// segments with timings shifted to stream offsets. Segments come back
// non-final; finalization is an utterance-level decision that belongs to the
// scheduler, not to a single window.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, offset time.Duration) ([]stt.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context cancelled: %w", err)
	}

	// Each context is not thread-safe, but the shared model is read-only.
	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", e.language, "error", err)
	}
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process window: %w", err)
	}

	var segments []stt.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, stt.Segment{
			Text:       text,
			Confidence: meanTokenProbability(seg.Tokens),
			Start:      offset + seg.Start,
			End:        offset + seg.End,
		})
	}
	return segments, nil
}

// meanTokenProbability averages per-token probabilities as a rough segment
// confidence. Whisper has no native segment-level score.
func meanTokenProbability(tokens []whisperlib.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += float64(t.P)
	}
	return sum / float64(len(tokens))
}
