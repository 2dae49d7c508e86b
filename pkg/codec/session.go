package codec

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"layeh.com/gopus"

	"github.com/pedrosoares/godot-whisper/internal/observe"
	"github.com/pedrosoares/godot-whisper/pkg/audio"
)

// countFrame records one codec call on the process-wide metrics. Instruments
// are no-ops until a meter provider is installed, so library use without
// telemetry costs nothing.
func countFrame(dir, status string) {
	observe.DefaultMetrics().CodecFrames.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("dir", dir),
			attribute.String("status", status),
		))
}

// Encoder is a stateful Opus encode session. Create one per stream and feed
// it native-size frames in order; the internal predictor state is never
// reset between calls.
type Encoder struct {
	enc *gopus.Encoder
	cfg Config
	seq uint32
}

// NewEncoder creates an encode session. A zero Config selects the default
// 48 kHz stereo 20 ms 128 kbps profile.
func NewEncoder(cfg Config) (*Encoder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	enc, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("codec: create encoder: %w", err)
	}
	enc.SetBitrate(cfg.Bitrate)
	return &Encoder{enc: enc, cfg: cfg}, nil
}

// Config returns the session's audio profile.
func (e *Encoder) Config() Config { return e.cfg }

// FrameSamples returns the exact input length Encode requires:
// FrameSize samples per channel, interleaved.
func (e *Encoder) FrameSamples() int { return e.cfg.FrameSize * e.cfg.Channels }

// Encode compresses exactly one native frame of normalized float32 PCM.
// Input length must equal FrameSamples; anything else returns ErrFrameSize
// without touching encoder state.
func (e *Encoder) Encode(pcm []float32) (Frame, error) {
	if len(pcm) != e.FrameSamples() {
		return Frame{}, fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, len(pcm), e.FrameSamples())
	}

	data, err := e.enc.Encode(audio.Float32ToInt16(pcm), e.cfg.FrameSize, maxPacketBytes)
	if err != nil {
		countFrame("encode", "error")
		return Frame{}, fmt.Errorf("codec: encode: %w", err)
	}
	countFrame("encode", "ok")

	f := Frame{Data: data, Samples: e.cfg.FrameSize, Seq: e.seq}
	e.seq++
	return f, nil
}

// Decoder is a stateful Opus decode session paired with one encoder stream.
// Frames should arrive in production order; gaps and reordering are detected
// via sequence numbers and logged, and decoding continues.
type Decoder struct {
	dec     *gopus.Decoder
	cfg     Config
	nextSeq uint32
	primed  bool
}

// NewDecoder creates a decode session. A zero Config selects the default
// profile; it must match the paired encoder's profile.
func NewDecoder(cfg Config) (*Decoder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dec, err := gopus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("codec: create decoder: %w", err)
	}
	return &Decoder{dec: dec, cfg: cfg}, nil
}

// Config returns the session's audio profile.
func (d *Decoder) Config() Config { return d.cfg }

// Decode decompresses one frame into normalized float32 PCM. A corrupt or
// truncated frame returns an error wrapping ErrBadFrame for that call alone;
// the decoder stays ready for the next valid frame.
func (d *Decoder) Decode(f Frame) ([]float32, error) {
	if d.primed {
		if f.Seq != d.nextSeq {
			// Lost or reordered frames produce an audible discontinuity but
			// nothing worse; note it and keep going.
			slog.Warn("codec: frame sequence discontinuity", "want", d.nextSeq, "got", f.Seq)
		}
	}
	d.primed = true
	d.nextSeq = f.Seq + 1

	if len(f.Data) == 0 {
		countFrame("decode", "error")
		return nil, fmt.Errorf("%w: empty payload (seq %d)", ErrBadFrame, f.Seq)
	}

	frameSize := f.Samples
	if frameSize <= 0 {
		frameSize = d.cfg.FrameSize
	}
	pcm, err := d.dec.Decode(f.Data, frameSize, false)
	if err != nil {
		countFrame("decode", "error")
		return nil, fmt.Errorf("%w: seq %d: %w", ErrBadFrame, f.Seq, err)
	}
	countFrame("decode", "ok")
	return audio.Int16ToFloat32(pcm), nil
}
