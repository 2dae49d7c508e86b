package audio

import "math"

// This file holds the normalization utilities shared by the capture path and
// the codec sessions: channel downmix, linear resampling, float32⇄int16
// conversion, and the RMS silence gate.

// DownmixMono averages interleaved multi-channel samples into mono.
// With channels <= 1 the input is returned unchanged.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ResampleFloat32 resamples mono float32 PCM from srcRate to dstRate using
// linear interpolation. If the rates match (or are invalid) the input is
// returned unchanged. Linear interpolation is plenty for speech headed into
// a 16 kHz recognizer; it is not a mastering-grade resampler.
func ResampleFloat32(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Float32ToInt16 converts normalized float32 samples to int16 PCM, clamping
// out-of-range values instead of wrapping.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Int16ToFloat32 converts int16 PCM to normalized float32 samples in
// [-1.0, 1.0).
func Int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square amplitude of the samples. An empty input
// yields 0. Used as a cheap silence gate before spending an inference call.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
