package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stats collects pipeline latency samples and counter values for host
// display. It maintains a bounded ring buffer of recent inference latency
// observations from which percentiles are computed on demand.
//
// Thread-safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	inference latencyBuffer

	windows  int64
	skipped  int64
	silent   int64
	failures int64
	matches  int64
}

// NewStats creates a Stats with the given window size (maximum number of
// latency samples retained).
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Stats{
		inference: newLatencyBuffer(windowSize),
	}
}

// RecordInference records one speech-inference latency sample.
func (s *Stats) RecordInference(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inference.add(d)
	s.windows++
}

// IncrSkipped counts a scheduler tick skipped for lack of buffered audio.
func (s *Stats) IncrSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// IncrSilent counts a scheduler tick gated out as silence.
func (s *Stats) IncrSilent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent++
}

// IncrFailures counts a window whose inference call failed.
func (s *Stats) IncrFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

// IncrMatches counts an emitted trigger event.
func (s *Stats) IncrMatches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches++
}

// LatencyPercentiles holds p50 and p95 values for a latency series.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// Snapshot captures a point-in-time view of all pipeline statistics.
type Snapshot struct {
	Inference LatencyPercentiles
	Windows   int64
	Skipped   int64
	Silent    int64
	Failures  int64
	Matches   int64
}

// Snapshot returns a point-in-time view of all pipeline statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Inference: s.inference.percentiles(),
		Windows:   s.windows,
		Skipped:   s.skipped,
		Silent:    s.silent,
		Failures:  s.failures,
		Matches:   s.matches,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	// Copy and sort the valid samples.
	sorted := make([]time.Duration, n)
	if lb.full {
		copy(sorted, lb.data)
	} else {
		copy(sorted, lb.data[:n])
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
