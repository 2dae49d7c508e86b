// Package codec implements the Opus transcoding path for voice-chat
// transport. An Encoder and a Decoder form a session pair: each holds
// persistent Opus state so frame-to-frame prediction stays valid across
// calls, which means a decoder must generally receive frames in the order
// the paired encoder produced them. Loss or reordering degrades audio
// quality but never corrupts session state.
//
// Sessions are single-owner: share one across goroutines only with external
// synchronization.
package codec

import (
	"errors"
	"fmt"
)

// Default profile: fullband stereo at 20 ms frames, matching the voice-chat
// transport this module was built for.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultFrameSize  = 960 // samples per channel per 20 ms frame at 48 kHz
	DefaultBitrate    = 128000

	// maxPacketBytes is the recommended Opus output buffer size.
	maxPacketBytes = 4000
)

var (
	// ErrBadFrame is wrapped by Decode errors for corrupt or truncated
	// frames. The decoder remains usable for the next valid frame.
	ErrBadFrame = errors.New("codec: bad frame")

	// ErrFrameSize is returned by Encode when the input is not exactly one
	// native frame. The session never re-frames; buffering or splitting is
	// the caller's job.
	ErrFrameSize = errors.New("codec: input is not one native frame")
)

// Frame is a single compressed Opus payload plus the metadata needed for
// ordering and loss detection on a transport the codec itself does not own.
type Frame struct {
	// Data is the Opus bitstream payload, opaque beyond its boundaries.
	Data []byte

	// Samples is the number of PCM samples per channel this frame encodes.
	Samples int

	// Seq is the encoder-assigned sequence number, starting at 0.
	Seq uint32
}

// Config describes a codec session's audio profile. The zero value is
// replaced by the default 48 kHz stereo 20 ms 128 kbps profile.
type Config struct {
	SampleRate int
	Channels   int
	// FrameSize is the native frame size in samples per channel. Must be one
	// of the sizes Opus permits for SampleRate (see ValidFrameSizes).
	FrameSize int
	// Bitrate in bits per second. Only meaningful for encoders.
	Bitrate int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 && c.Channels == 0 && c.FrameSize == 0 {
		c.SampleRate = DefaultSampleRate
		c.Channels = DefaultChannels
		c.FrameSize = DefaultFrameSize
	}
	if c.Bitrate <= 0 {
		c.Bitrate = DefaultBitrate
	}
}

func (c Config) validate() error {
	sizes := ValidFrameSizes(c.SampleRate)
	if sizes == nil {
		return fmt.Errorf("codec: unsupported sample rate %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("codec: unsupported channel count %d", c.Channels)
	}
	for _, s := range sizes {
		if c.FrameSize == s {
			return nil
		}
	}
	return fmt.Errorf("codec: frame size %d invalid for %d Hz (valid: %v)", c.FrameSize, c.SampleRate, sizes)
}

// ValidFrameSizes returns the Opus-permitted frame sizes (samples per
// channel) for a sample rate, or nil if the rate itself is unsupported.
func ValidFrameSizes(sampleRate int) []int {
	switch sampleRate {
	case 48000:
		return []int{120, 240, 480, 960, 1920, 2880}
	case 24000:
		return []int{60, 120, 240, 480, 960, 1440}
	case 16000:
		return []int{40, 80, 160, 320, 640, 960}
	case 12000:
		return []int{30, 60, 120, 240, 480, 720}
	case 8000:
		return []int{20, 40, 80, 160, 320, 480}
	default:
		return nil
	}
}
