// Package mock provides a scripted test double for the stt.Engine interface.
//
// Pre-load Results with the segment batches successive Transcribe calls
// should return, then inspect Calls to verify what the scheduler fed the
// engine.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/pedrosoares/godot-whisper/pkg/stt"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Samples is the window passed to Transcribe (not copied; callers must
	// not mutate windows after the fact, which the pipeline never does).
	Samples []float32
	// Offset is the stream offset passed to Transcribe.
	Offset time.Duration
}

// Engine is a scripted stt.Engine. Each Transcribe call pops the next entry
// from Results; once Results is exhausted, calls return no segments.
type Engine struct {
	mu sync.Mutex

	// Results holds the segment batches to return, one per call, consumed
	// front to back.
	Results [][]stt.Segment

	// Errs holds per-call errors aligned with Results. A nil entry (or a
	// shorter slice) means no error for that call.
	Errs []error

	// Rate is the value returned by SampleRate. Defaults to 16000.
	Rate int

	// Calls records every Transcribe invocation.
	Calls []TranscribeCall

	closed bool
}

var _ stt.Engine = (*Engine)(nil)

// Transcribe records the call and returns the next scripted batch.
func (e *Engine) Transcribe(_ context.Context, samples []float32, offset time.Duration) ([]stt.Segment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	call := len(e.Calls)
	e.Calls = append(e.Calls, TranscribeCall{Samples: samples, Offset: offset})

	var err error
	if call < len(e.Errs) {
		err = e.Errs[call]
	}
	if err != nil {
		return nil, err
	}
	if call < len(e.Results) {
		return e.Results[call], nil
	}
	return nil, nil
}

// SampleRate returns Rate, defaulting to 16000.
func (e *Engine) SampleRate() int {
	if e.Rate > 0 {
		return e.Rate
	}
	return 16000
}

// Close marks the engine closed. Thread-safe.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// CallCount returns the number of Transcribe invocations so far.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
