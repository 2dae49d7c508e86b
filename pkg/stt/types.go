package stt

import "time"

// Segment represents one piece of recognized speech from an inference pass
// over a window. Both partial (interim) and final segments use this type.
type Segment struct {
	// Text is the recognized speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero for
	// engines that do not report confidence.
	Confidence float64

	// Start and End are offsets relative to stream start, not to the window
	// the segment was decoded from.
	Start time.Duration
	End   time.Duration

	// Final marks an authoritative segment. Final segments are never
	// revised; a partial may be superseded by any later segment covering
	// overlapping time.
	Final bool
}
