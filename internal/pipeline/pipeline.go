// Package pipeline wires microphone capture, the ring buffer, the window
// scheduler, speech inference, and keyword matching into one running unit.
//
// A Pipeline owns two goroutines: the capture loop, which normalizes frames
// from the audio source into the ring buffer, and the scheduler loop, which
// ticks on the hop interval, reads the freshest window, runs inference, and
// feeds the matcher. Hosts interact through non-blocking polls
// ([Pipeline.PollEvents], [Pipeline.PollTranscripts], [Pipeline.PollStatus])
// so the pipeline never blocks on, and is never blocked by, the host frame
// loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pedrosoares/godot-whisper/internal/observe"
	"github.com/pedrosoares/godot-whisper/pkg/audio"
	"github.com/pedrosoares/godot-whisper/pkg/keyword"
	"github.com/pedrosoares/godot-whisper/pkg/stt"
)

// stopTimeout bounds how long Stop waits for the pipeline goroutines before
// giving up and returning.
const stopTimeout = 5 * time.Second

// ErrStopTimeout is returned by Stop when the pipeline goroutines fail to
// exit within the join deadline.
var ErrStopTimeout = errors.New("pipeline: stop timed out waiting for goroutines")

// Status is a lifecycle notification posted to the status queue. A terminal
// status means the pipeline has stopped on its own, typically because the
// capture device failed mid-stream.
type Status struct {
	Terminal bool
	Err      error
	At       time.Time
}

// Config assembles a Pipeline from its collaborators.
type Config struct {
	// Source delivers captured audio frames. Required.
	Source audio.Source

	// Engine runs speech inference over windows. Required.
	Engine stt.Engine

	// Matcher spots trigger phrases in transcripts. Created empty when nil.
	Matcher *keyword.Matcher

	// Window is the inference window length. Default 3s.
	Window time.Duration

	// Hop is the interval between consecutive windows. Must not exceed
	// Window. Default 500ms.
	Hop time.Duration

	// Buffer is the ring-buffer depth. Default 10s.
	Buffer time.Duration

	// SilenceThreshold is the RMS level below which the newest hop of audio
	// counts as silence. Default 0.015.
	SilenceThreshold float64

	// QueueSize bounds the event, transcript, and status queues. Default 256.
	QueueSize int

	// Metrics receives instrumentation. Defaults to the process-wide set.
	Metrics *observe.Metrics

	// Stats receives latency samples and counters. Created when nil.
	Stats *Stats
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = 3 * time.Second
	}
	if c.Hop <= 0 {
		c.Hop = 500 * time.Millisecond
	}
	if c.Buffer <= 0 {
		c.Buffer = 10 * time.Second
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 0.015
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if c.Stats == nil {
		c.Stats = NewStats(100)
	}
	if c.Matcher == nil {
		c.Matcher = keyword.NewMatcher()
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Source == nil {
		errs = append(errs, errors.New("pipeline: source is required"))
	}
	if c.Engine == nil {
		errs = append(errs, errors.New("pipeline: engine is required"))
	}
	if c.Hop > c.Window {
		errs = append(errs, fmt.Errorf("pipeline: hop (%v) must not exceed window (%v)", c.Hop, c.Window))
	}
	if c.Window > c.Buffer {
		errs = append(errs, fmt.Errorf("pipeline: window (%v) must not exceed buffer (%v)", c.Window, c.Buffer))
	}
	return errors.Join(errs...)
}

// Pipeline is the running capture-to-keyword unit. Create with New, drive
// with Start/Stop, and drain results with the Poll methods.
type Pipeline struct {
	cfg     Config
	ring    *audio.Ring
	matcher *keyword.Matcher
	stats   *Stats
	metrics *observe.Metrics

	// Window geometry in engine-rate samples, fixed at construction.
	rate          int
	windowSamples int
	hopSamples    int

	events      *queue[keyword.Event]
	transcripts *queue[stt.Segment]
	statuses    *queue[Status]

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	stopOnce sync.Once
	stopErr  error

	// Scheduler-owned utterance tracking; see tick.
	inUtterance bool
	lastDropped uint64
}

// New assembles a Pipeline. The engine's sample rate fixes the ring and
// window geometry; capture frames at other rates are resampled on the way in.
func New(cfg Config) (*Pipeline, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rate := cfg.Engine.SampleRate()
	p := &Pipeline{
		cfg:           cfg,
		ring:          audio.NewRing(samplesIn(cfg.Buffer, rate)),
		matcher:       cfg.Matcher,
		stats:         cfg.Stats,
		metrics:       cfg.Metrics,
		rate:          rate,
		windowSamples: samplesIn(cfg.Window, rate),
		hopSamples:    samplesIn(cfg.Hop, rate),
		events:        newQueue[keyword.Event](cfg.QueueSize),
		transcripts:   newQueue[stt.Segment](cfg.QueueSize),
		statuses:      newQueue[Status](cfg.QueueSize),
	}
	return p, nil
}

func samplesIn(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}

// Start opens the source and launches the capture and scheduler goroutines.
// A second Start on a running pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	frames, err := p.cfg.Source.Start(ctx)
	if err != nil {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
		return fmt.Errorf("pipeline: start capture: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	p.mu.Lock()
	p.cancel = cancel
	p.group = g
	p.mu.Unlock()

	g.Go(func() error { return p.captureLoop(gctx, frames) })
	g.Go(func() error { return p.schedulerLoop(gctx) })

	p.metrics.PipelinesRunning.Add(ctx, 1)
	slog.Info("pipeline started",
		"rate", p.rate,
		"window", p.cfg.Window,
		"hop", p.cfg.Hop,
		"buffer", p.cfg.Buffer)
	return nil
}

// captureLoop drains the source's frame channel into the ring buffer,
// normalizing each frame to mono at the engine rate. It exits when the
// channel closes; if the close was caused by a device failure, a terminal
// status is posted and the failure propagates through the errgroup so the
// scheduler stops too.
func (p *Pipeline) captureLoop(ctx context.Context, frames <-chan audio.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				if err := p.cfg.Source.Err(); err != nil {
					p.statuses.push(Status{Terminal: true, Err: err, At: time.Now()})
					slog.Error("pipeline: capture source failed", "error", err)
					return fmt.Errorf("pipeline: capture: %w", err)
				}
				return nil
			}
			p.ingest(ctx, frame)
		}
	}
}

// ingest converts one captured frame to the engine's mono format and writes
// it to the ring.
func (p *Pipeline) ingest(ctx context.Context, frame audio.Frame) {
	samples := frame.Samples
	if frame.Format.Channels > 1 {
		samples = audio.DownmixMono(samples, frame.Format.Channels)
	}
	if frame.Format.SampleRate != p.rate {
		samples = audio.ResampleFloat32(samples, frame.Format.SampleRate, p.rate)
	}
	p.ring.Write(samples)

	p.metrics.CapturedFrames.Add(ctx, 1)
	if dropped := p.ring.Dropped(); dropped > p.lastDropped {
		p.metrics.DroppedSamples.Add(ctx, int64(dropped-p.lastDropped))
		p.lastDropped = dropped
	}
}

// schedulerLoop ticks on the hop interval and runs one window evaluation per
// tick. Inference is serialized: a window that takes longer than a hop simply
// delays the next tick's data, it never runs concurrently with itself.
func (p *Pipeline) schedulerLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Hop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Stop shuts the pipeline down: cancels the goroutines, closes the source,
// and waits up to stopTimeout for the join. Safe to call repeatedly; later
// calls return the first result.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel, group, started := p.cancel, p.group, p.started
		p.mu.Unlock()
		if !started {
			return
		}

		if cancel != nil {
			cancel()
		}
		var errs []error
		if err := p.cfg.Source.Close(); err != nil {
			errs = append(errs, err)
		}

		if group != nil {
			done := make(chan error, 1)
			go func() { done <- group.Wait() }()
			select {
			case err := <-done:
				if err != nil {
					errs = append(errs, err)
				}
			case <-time.After(stopTimeout):
				errs = append(errs, ErrStopTimeout)
			}
		}

		p.metrics.PipelinesRunning.Add(context.Background(), -1)
		slog.Info("pipeline stopped")
		p.stopErr = errors.Join(errs...)
	})
	return p.stopErr
}

// RegisterTrigger adds a trigger phrase. Safe at any time, including while
// the pipeline is running; the trigger takes effect from the next window.
func (p *Pipeline) RegisterTrigger(phrase, alias string) error {
	return p.matcher.Register(phrase, alias)
}

// PollEvents drains and returns all queued trigger events. Never blocks.
func (p *Pipeline) PollEvents() []keyword.Event { return p.events.drain() }

// PollTranscripts drains and returns all queued transcript segments. Never
// blocks.
func (p *Pipeline) PollTranscripts() []stt.Segment { return p.transcripts.drain() }

// PollStatus drains and returns all queued status notifications. Never
// blocks.
func (p *Pipeline) PollStatus() []Status { return p.statuses.drain() }

// Stats returns a snapshot of the pipeline's latency and counter statistics.
func (p *Pipeline) Stats() Snapshot { return p.stats.Snapshot() }

// queue is a bounded FIFO that drops its oldest entry on overflow, matching
// the drop-oldest policy of every other stage in the pipeline.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	max   int
}

func newQueue[T any](max int) *queue[T] {
	return &queue[T]{max: max}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.max {
		q.items = q.items[1:]
	}
	q.items = append(q.items, v)
}

func (q *queue[T]) drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}
