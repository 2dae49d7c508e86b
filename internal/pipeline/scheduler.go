package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pedrosoares/godot-whisper/pkg/audio"
	"github.com/pedrosoares/godot-whisper/pkg/stt"
)

// tick runs one window evaluation. The freshest window-length span is read
// from the ring as a snapshot; later capture writes never affect an inference
// already in flight.
//
// Utterance boundaries are inferred from the newest hop of audio: while its
// RMS stays above the silence threshold an utterance is in progress and the
// window is transcribed as a partial. The first silent hop after speech runs
// one last inference over the window and marks its result final, which lets
// the matcher close out the utterance. Silent hops with no utterance in
// progress cost nothing.
func (p *Pipeline) tick(ctx context.Context) {
	samples, end, err := p.ring.ReadLatest(p.windowSamples)
	if err != nil {
		if errors.Is(err, audio.ErrNotEnoughData) {
			p.stats.IncrSkipped()
			p.metrics.Windows.Add(ctx, 1, withOutcome("skipped"))
			return
		}
		slog.Warn("pipeline: window read failed", "error", err)
		return
	}

	tail := samples[len(samples)-min(p.hopSamples, len(samples)):]
	tailSilent := audio.RMS(tail) < p.cfg.SilenceThreshold

	var final bool
	switch {
	case tailSilent && !p.inUtterance:
		p.stats.IncrSilent()
		p.metrics.Windows.Add(ctx, 1, withOutcome("silent"))
		return
	case tailSilent:
		// Speech just ended: one closing inference, marked final.
		final = true
	default:
		p.inUtterance = true
	}

	offset := p.sampleOffset(end - uint64(p.windowSamples))

	started := time.Now()
	segs, err := p.cfg.Engine.Transcribe(ctx, samples, offset)
	elapsed := time.Since(started)
	p.stats.RecordInference(elapsed)
	p.metrics.InferenceDuration.Record(ctx, elapsed.Seconds())
	p.metrics.Windows.Add(ctx, 1, withOutcome("inferred"))
	if err != nil {
		// Skip this window; the utterance stays open so the next tick
		// retries. A failed closing inference is retried on the next
		// silent hop.
		p.stats.IncrFailures()
		p.metrics.InferenceFailures.Add(ctx, 1)
		slog.Warn("pipeline: inference failed, window skipped", "offset", offset, "error", err)
		return
	}

	seg := p.combine(segs, offset, final)
	if seg.Text == "" && !final {
		return
	}
	p.transcripts.push(seg)

	arrived := time.Now()
	for _, ev := range p.matcher.Feed(seg) {
		p.stats.IncrMatches()
		p.metrics.KeywordMatches.Add(ctx, 1,
			metric.WithAttributes(attribute.String("alias", ev.Alias)))
		p.metrics.TriggerLatency.Record(ctx, time.Since(arrived).Seconds())
		p.events.push(ev)
		slog.Info("pipeline: keyword matched",
			"alias", ev.Alias, "phrase", ev.Phrase, "offset", ev.Offset)
	}

	if final {
		p.inUtterance = false
	}
}

// combine flattens the engine's segments for one window into the single
// transcript the matcher consumes. Each partial supersedes the previous one,
// so segment boundaries within a window carry no information the matcher
// needs.
func (p *Pipeline) combine(segs []stt.Segment, offset time.Duration, final bool) stt.Segment {
	if len(segs) == 0 {
		return stt.Segment{
			Start: offset,
			End:   offset + p.cfg.Window,
			Final: final,
		}
	}

	texts := make([]string, 0, len(segs))
	var confidence float64
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
		confidence += s.Confidence
	}
	return stt.Segment{
		Text:       strings.Join(texts, " "),
		Confidence: confidence / float64(len(segs)),
		Start:      segs[0].Start,
		End:        segs[len(segs)-1].End,
		Final:      final,
	}
}

// sampleOffset converts an absolute ring cursor to a stream time offset.
func (p *Pipeline) sampleOffset(samples uint64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(p.rate)
}

func withOutcome(outcome string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
