// Package stt defines the Engine interface for streaming speech inference.
//
// An Engine wraps a speech model and transcribes one audio window at a time.
// The window scheduler calls Transcribe repeatedly with overlapping windows;
// the engine is free to take tens to hundreds of milliseconds per call, which
// is why the pipeline confines every call to a dedicated goroutine. Engine
// state loaded at construction (model weights, backend context) must be
// read-only for the lifetime of the engine, so a single Engine may serve
// sequential calls without locking.
package stt

import (
	"context"
	"time"
)

// Engine is the abstraction over a speech-inference backend.
type Engine interface {
	// Transcribe runs inference over one window of mono float32 PCM at
	// SampleRate and returns the recognized segments in order. offset is the
	// stream position of the window's first sample; implementations shift
	// segment timings by it so Start/End are stream-relative.
	//
	// A failed window returns an error and no segments; the caller treats it
	// as "no speech" and continues.
	Transcribe(ctx context.Context, samples []float32, offset time.Duration) ([]Segment, error)

	// SampleRate reports the input rate the engine expects, in Hz.
	SampleRate() int

	// Close releases the model and backend resources. The engine must not be
	// used after Close.
	Close() error
}
