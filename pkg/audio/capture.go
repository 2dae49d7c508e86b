package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceUnavailable is returned when the requested input device cannot be
// opened (missing, busy, or permission denied). Device-open failure is fatal
// for a capture session; reconnection policy belongs to the caller.
var ErrDeviceUnavailable = errors.New("audio: input device unavailable")

// Source abstracts a live audio input. Implementations own the device for
// their entire lifetime and deliver normalized float32 frames on the channel
// returned by Start. The channel is closed when the source stops — either
// because Close was called or because the device failed mid-stream. After an
// unrequested close, Err reports the device failure.
type Source interface {
	// Start begins capture and returns the frame channel. Calling Start more
	// than once is an error.
	Start(ctx context.Context) (<-chan Frame, error)

	// Format reports the sample rate and channel count of delivered frames.
	Format() Format

	// Err returns the mid-stream device error that terminated capture, or nil.
	Err() error

	// Close stops capture and releases the device. Safe to call repeatedly.
	Close() error
}

// SourceConfig configures a PortAudio input stream.
type SourceConfig struct {
	// Device selects the input device by name. Empty means the system default.
	Device string

	// SampleRate is the requested capture rate in Hz. If the device rejects
	// it, the source falls back to the device's default rate; the pipeline
	// resamples downstream. Default 16000.
	SampleRate int

	// Channels is the requested channel count. Default 1.
	Channels int

	// FramesPerBuffer is the number of samples per channel delivered per
	// read. Smaller values lower latency at the cost of CPU. Default 512.
	FramesPerBuffer int
}

func (c *SourceConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = 512
	}
}

// PortAudioSource captures microphone audio through PortAudio using the
// blocking stream API. The blocking API is deliberate: the callback API runs
// on a C thread where touching the Go runtime (allocations, channel sends)
// is unsafe, whereas a reader goroutine blocking on Stream.Read is plain Go.
type PortAudioSource struct {
	stream *portaudio.Stream
	buf    []float32
	format Format

	frames chan Frame
	stop   chan struct{}

	mu        sync.Mutex
	started   bool
	streamErr error

	closeOnce sync.Once
	closeErr  error
}

var _ Source = (*PortAudioSource)(nil)

// ListInputDevices returns the names of all input-capable audio devices.
// It manages its own PortAudio init/terminate cycle, so it can be called
// before any source exists.
func ListInputDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	defer portaudio.Terminate() //nolint:errcheck

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// NewPortAudioSource initializes PortAudio and opens the configured input
// stream. A failure to open the device wraps [ErrDeviceUnavailable].
func NewPortAudioSource(cfg SourceConfig) (*PortAudioSource, error) {
	cfg.applyDefaults()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}

	s := &PortAudioSource{
		buf:    make([]float32, cfg.FramesPerBuffer*cfg.Channels),
		frames: make(chan Frame, 64),
		stop:   make(chan struct{}),
	}

	dev, err := inputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return nil, err
	}

	rate := cfg.SampleRate
	stream, err := openInputStream(dev, rate, cfg.Channels, cfg.FramesPerBuffer, s.buf)
	if err != nil && dev != nil && rate != int(dev.DefaultSampleRate) {
		// Device rejected the requested rate; fall back to its native rate
		// and let the pipeline resample.
		rate = int(dev.DefaultSampleRate)
		slog.Warn("audio: requested sample rate unsupported, using device default",
			"requested", cfg.SampleRate, "using", rate)
		stream, err = openInputStream(dev, rate, cfg.Channels, cfg.FramesPerBuffer, s.buf)
	}
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return nil, fmt.Errorf("audio: open input stream: %w: %w", ErrDeviceUnavailable, err)
	}

	s.stream = stream
	s.format = Format{SampleRate: rate, Channels: cfg.Channels}
	return s, nil
}

// inputDevice resolves the named input device, or the default one when name
// is empty.
func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("audio: default input device: %w: %w", ErrDeviceUnavailable, err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio: input device %q: %w", name, ErrDeviceUnavailable)
}

func openInputStream(dev *portaudio.DeviceInfo, rate, channels, framesPerBuffer int, buf []float32) (*portaudio.Stream, error) {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: framesPerBuffer,
	}
	return portaudio.OpenStream(params, buf)
}

// Format reports the actual capture format after device negotiation.
func (s *PortAudioSource) Format() Format { return s.format }

// Start begins the stream and spawns the reader goroutine. Each filled buffer
// is copied before sending so the shared read buffer can be reused. If the
// frame channel is full the frame is dropped — capture must never block on a
// slow consumer; the ring buffer downstream owns the overflow policy.
func (s *PortAudioSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errors.New("audio: source already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.stream.Start(); err != nil {
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}

	go func() {
		defer close(s.frames)
		var captured uint64 // samples per channel delivered so far
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err := s.stream.Read(); err != nil {
				select {
				case <-s.stop:
					// Stop() aborts the blocking read; not a device failure.
				default:
					s.setErr(fmt.Errorf("audio: stream read: %w", err))
					slog.Error("audio: capture stopped on device error", "error", err)
				}
				return
			}

			samples := make([]float32, len(s.buf))
			copy(samples, s.buf)

			frame := Frame{
				Samples:   samples,
				Format:    s.format,
				Timestamp: time.Duration(captured) * time.Second / time.Duration(s.format.SampleRate),
			}
			captured += uint64(len(samples) / s.format.Channels)

			select {
			case s.frames <- frame:
			case <-s.stop:
				return
			default:
				// Consumer behind; drop rather than stall the device.
			}
		}
	}()

	return s.frames, nil
}

func (s *PortAudioSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamErr == nil {
		s.streamErr = err
	}
}

// Err returns the device error that terminated capture mid-stream, if any.
func (s *PortAudioSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}

// Close stops the stream and releases PortAudio. Safe to call more than once.
func (s *PortAudioSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		var errs []error
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("audio: stop stream: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audio: close stream: %w", err))
		}
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("audio: portaudio terminate: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
