package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pedrosoares/godot-whisper/internal/pipeline"
	"github.com/pedrosoares/godot-whisper/pkg/audio"
	"github.com/pedrosoares/godot-whisper/pkg/keyword"
	"github.com/pedrosoares/godot-whisper/pkg/stt"
	"github.com/pedrosoares/godot-whisper/pkg/stt/mock"
)

// fakeSource is a hand-driven audio.Source: tests push frames, simulate
// device failure, or close it cleanly.
type fakeSource struct {
	frames   chan audio.Frame
	format   audio.Format
	startErr error

	mu      sync.Mutex
	err     error
	endOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames: make(chan audio.Frame, 256),
		format: audio.Format{SampleRate: 16000, Channels: 1},
	}
}

func (s *fakeSource) Start(context.Context) (<-chan audio.Frame, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.frames, nil
}

func (s *fakeSource) Format() audio.Format { return s.format }

func (s *fakeSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSource) Close() error {
	s.endOnce.Do(func() { close(s.frames) })
	return nil
}

// fail simulates a mid-stream device failure: the error is recorded and the
// frame channel closes, exactly as PortAudioSource behaves.
func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.endOnce.Do(func() { close(s.frames) })
}

// push delivers one frame of constant-amplitude samples.
func (s *fakeSource) push(n int, amplitude float32) {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	s.frames <- audio.Frame{Samples: samples, Format: s.format}
}

func TestPipeline_EndToEndSilenceThenFire(t *testing.T) {
	src := newFakeSource()

	// One "fire" partial, then the utterance stabilises on "fireball" for as
	// many windows as the scheduler manages to run.
	results := [][]stt.Segment{{{Text: "fire"}}}
	for range 60 {
		results = append(results, []stt.Segment{{Text: "fireball"}})
	}
	eng := &mock.Engine{Results: results}

	m := keyword.NewMatcher()
	if err := m.Register("fire", "cast_fire"); err != nil {
		t.Fatal(err)
	}
	if err := m.Register("fireball", "cast_fireball"); err != nil {
		t.Fatal(err)
	}

	p, err := pipeline.New(pipeline.Config{
		Source:  src,
		Engine:  eng,
		Matcher: m,
		Window:  100 * time.Millisecond,
		Hop:     20 * time.Millisecond,
		Buffer:  time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop() //nolint:errcheck

	// Leading silence: enough for full windows, all gated out.
	src.push(3200, 0)
	time.Sleep(150 * time.Millisecond)
	if got := eng.CallCount(); got != 0 {
		t.Fatalf("engine ran %d times during silence", got)
	}

	// Speech: keep the newest hop loud long enough for several windows.
	for range 10 {
		src.push(640, 0.5)
		time.Sleep(20 * time.Millisecond)
	}

	// Trailing silence closes the utterance.
	src.push(1600, 0)

	var events []keyword.Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(events) == 0 {
		events = append(events, p.PollEvents()...)
		time.Sleep(20 * time.Millisecond)
	}
	// Let any spurious duplicate surface before asserting.
	time.Sleep(200 * time.Millisecond)
	events = append(events, p.PollEvents()...)

	if len(events) != 1 {
		t.Fatalf("events = %+v, want exactly one", events)
	}
	if events[0].Alias != "cast_fireball" {
		t.Errorf("alias = %q, want cast_fireball", events[0].Alias)
	}
	if eng.CallCount() < 3 {
		t.Errorf("engine calls = %d, want at least 3", eng.CallCount())
	}
	if p.Stats().Windows == 0 {
		t.Error("stats recorded no inference windows")
	}
}

func TestPipeline_SourceFailurePostsTerminalStatus(t *testing.T) {
	src := newFakeSource()
	p, err := pipeline.New(pipeline.Config{
		Source: src,
		Engine: &mock.Engine{},
		Window: 100 * time.Millisecond,
		Hop:    20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop() //nolint:errcheck

	deviceErr := errors.New("device unplugged")
	src.fail(deviceErr)

	var statuses []pipeline.Status
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(statuses) == 0 {
		statuses = p.PollStatus()
		time.Sleep(10 * time.Millisecond)
	}

	if len(statuses) != 1 {
		t.Fatalf("statuses = %+v, want one terminal", statuses)
	}
	if !statuses[0].Terminal || !errors.Is(statuses[0].Err, deviceErr) {
		t.Errorf("status = %+v, want terminal wrapping the device error", statuses[0])
	}
}

func TestPipeline_StartIsIdempotent(t *testing.T) {
	src := newFakeSource()
	p, err := pipeline.New(pipeline.Config{Source: src, Engine: &mock.Engine{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop should return the first result, got %v", err)
	}
}

func TestPipeline_StartPropagatesDeviceError(t *testing.T) {
	src := newFakeSource()
	src.startErr = audio.ErrDeviceUnavailable

	p, err := pipeline.New(pipeline.Config{Source: src, Engine: &mock.Engine{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Start error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := pipeline.New(pipeline.Config{Engine: &mock.Engine{}}); err == nil {
		t.Error("missing source should be rejected")
	}
	if _, err := pipeline.New(pipeline.Config{Source: newFakeSource()}); err == nil {
		t.Error("missing engine should be rejected")
	}
	if _, err := pipeline.New(pipeline.Config{
		Source: newFakeSource(),
		Engine: &mock.Engine{},
		Window: 100 * time.Millisecond,
		Hop:    200 * time.Millisecond,
	}); err == nil {
		t.Error("hop exceeding window should be rejected")
	}
}

func TestPipeline_RegisterTriggerWhileRunning(t *testing.T) {
	src := newFakeSource()
	p, err := pipeline.New(pipeline.Config{Source: src, Engine: &mock.Engine{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop() //nolint:errcheck

	if err := p.RegisterTrigger("fireball", "cast_fireball"); err != nil {
		t.Fatalf("RegisterTrigger: %v", err)
	}
	if err := p.RegisterTrigger("", "x"); !errors.Is(err, keyword.ErrEmptyTrigger) {
		t.Fatalf("blank phrase error = %v, want ErrEmptyTrigger", err)
	}
}
