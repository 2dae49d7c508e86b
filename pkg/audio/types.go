package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Frame represents a single chunk of captured audio flowing through the
// pipeline. Samples are normalized float32 PCM in the range [-1.0, 1.0],
// interleaved when Format.Channels > 1. Frames are immutable once produced.
type Frame struct {
	// Samples holds the PCM data. Length is a multiple of Format.Channels.
	Samples []float32

	// Format describes the sample rate and channel layout of Samples.
	Format Format

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// SampleCount returns the number of samples per channel in the frame.
func (f Frame) SampleCount() int {
	if f.Format.Channels <= 0 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Format.Channels
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SampleCount()) * time.Second / time.Duration(f.Format.SampleRate)
}
