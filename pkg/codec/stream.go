package codec

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// The stream helpers pack multiple Opus packets into a single byte blob with
// a little-endian uint16 length prefix per packet. This is the layout the
// host engine ships over its own transport when it wants one buffer per
// utterance instead of per-frame delivery.

// EncodeStream splits pcm into native-size frames, encodes each on the
// session, and concatenates the packets with length prefixes. A trailing
// remainder shorter than one frame is ignored — the caller owns framing for
// partial data.
func (e *Encoder) EncodeStream(pcm []float32) ([]byte, error) {
	per := e.FrameSamples()
	var out []byte
	for off := 0; off+per <= len(pcm); off += per {
		f, err := e.Encode(pcm[off : off+per])
		if err != nil {
			return nil, fmt.Errorf("codec: encode stream at sample %d: %w", off, err)
		}
		if len(f.Data) > 0xFFFF {
			return nil, fmt.Errorf("codec: packet too large for stream framing: %d bytes", len(f.Data))
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(f.Data)))
		out = append(out, f.Data...)
	}
	return out, nil
}

// DecodeStream unpacks a length-prefixed packet blob and decodes every
// packet on the session. Undecodable packets are replaced with one frame of
// silence so the output stays time-aligned; a truncated trailing packet ends
// the stream early. Only a malformed blob (nothing decodable at all) is an
// error.
func (d *Decoder) DecodeStream(data []byte) ([]float32, error) {
	frameSamples := d.cfg.FrameSize * d.cfg.Channels
	var out []float32
	off := 0
	for off+2 <= len(data) {
		n := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+n > len(data) {
			slog.Warn("codec: truncated packet at end of stream", "have", len(data)-off, "want", n)
			break
		}
		packet := data[off : off+n]
		off += n

		pcm, err := d.dec.Decode(packet, d.cfg.FrameSize, false)
		if err != nil {
			countFrame("decode", "error")
			slog.Warn("codec: undecodable packet in stream, substituting silence", "error", err)
			out = append(out, make([]float32, frameSamples)...)
			continue
		}
		countFrame("decode", "ok")
		for _, s := range pcm {
			out = append(out, float32(s)/32768.0)
		}
	}
	if out == nil && len(data) > 0 {
		return nil, fmt.Errorf("%w: no decodable packets in stream", ErrBadFrame)
	}
	return out, nil
}
