// Package keyword implements streaming trigger-phrase detection over
// transcript segments.
//
// A Matcher holds a registered set of (phrase, alias) triggers and consumes
// partial and final segments as the recognizer produces them. Matching is
// case-insensitive substring containment; when several triggers match the
// same text, the longest phrase wins and equal lengths resolve to
// registration order. Each alias fires at most once per utterance: after an
// emission the matcher is in cooldown for that alias until a final segment
// ends the utterance.
//
// Register may be called from any goroutine at any time; the trigger set is
// read as an atomic snapshot per evaluation, so a registration never races a
// match mid-evaluation. Feed must be called from a single goroutine (the
// transcript consumer).
package keyword

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pedrosoares/godot-whisper/pkg/stt"
)

// Trigger pairs a spoken phrase with the alias emitted when it is heard.
// Multiple triggers may share an alias.
type Trigger struct {
	Phrase string
	Alias  string
}

// Event is an emitted trigger detection.
type Event struct {
	// Alias is the registered alias that fired.
	Alias string

	// Phrase is the trigger phrase that matched.
	Phrase string

	// Offset is the stream position of the matching segment's end.
	Offset time.Duration

	// At is the wall-clock emission time.
	At time.Time
}

// State identifies the matcher's position in the per-utterance cycle.
type State int

const (
	// Idle: no partial accumulation in progress.
	Idle State = iota
	// Accumulating: holding the latest partial text, no trigger seen.
	Accumulating
	// Matched: a trigger was seen in a partial and is held pending
	// confirmation by a stable repeat or by the final segment.
	Matched
	// Cooldown: an alias fired this utterance; identical re-matches are
	// suppressed until the utterance ends.
	Cooldown
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Matched:
		return "matched"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// ErrEmptyTrigger is returned by Register for a blank phrase or alias.
var ErrEmptyTrigger = errors.New("keyword: phrase and alias must not be empty")

// Option configures a Matcher.
type Option func(*Matcher)

// WithPhonetic enables the phonetic fallback on final segments, so near-miss
// pronunciations of a trigger phrase can still fire.
func WithPhonetic(p *Phonetic) Option {
	return func(m *Matcher) { m.phonetic = p }
}

// Matcher is the keyword-spotting state machine.
type Matcher struct {
	regMu    sync.Mutex
	triggers atomic.Pointer[[]Trigger]

	phonetic *Phonetic
	now      func() time.Time

	// Per-utterance state, owned by the Feed goroutine.
	state        State
	text         string
	pending      *Trigger
	fired        map[string]bool
	firedPhrases []string
}

// NewMatcher creates an empty Matcher.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		now:   time.Now,
		fired: make(map[string]bool),
	}
	empty := []Trigger{}
	m.triggers.Store(&empty)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register adds a trigger. It is safe at any time, including while Feed runs
// concurrently; the new trigger takes effect from the next evaluation.
func (m *Matcher) Register(phrase, alias string) error {
	phrase = strings.TrimSpace(phrase)
	alias = strings.TrimSpace(alias)
	if phrase == "" || alias == "" {
		return ErrEmptyTrigger
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()
	cur := *m.triggers.Load()
	next := make([]Trigger, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, Trigger{Phrase: phrase, Alias: alias})
	m.triggers.Store(&next)
	return nil
}

// Triggers returns a snapshot of the registered triggers in registration
// order.
func (m *Matcher) Triggers() []Trigger {
	cur := *m.triggers.Load()
	out := make([]Trigger, len(cur))
	copy(out, cur)
	return out
}

// State returns the current utterance state. Meaningful only from the Feed
// goroutine.
func (m *Matcher) State() State { return m.state }

// Feed consumes one transcript segment and returns any trigger events it
// resolves.
//
// A partial segment supersedes the held text (a partial updates the same
// in-progress utterance, it does not append). A trigger seen in a partial is
// held rather than emitted immediately: a later segment may extend it to a
// longer, more specific trigger ("fire" growing into "fireball"). The held
// match is emitted once it repeats unchanged across consecutive partials, or
// when the final segment confirms it. A final segment ends the utterance and
// resets accumulation and cooldown.
func (m *Matcher) Feed(seg stt.Segment) []Event {
	m.text = strings.ToLower(strings.TrimSpace(seg.Text))

	best := m.bestMatch(m.text, seg.Final)

	var events []Event
	if seg.Final {
		if best != nil {
			events = append(events, m.emit(*best, seg))
		}
		// The utterance is over; clear accumulation and cooldown.
		m.text = ""
		m.pending = nil
		m.fired = make(map[string]bool)
		m.firedPhrases = nil
		m.state = Idle
		return events
	}

	switch {
	case best == nil:
		m.pending = nil
		if len(m.fired) > 0 {
			m.state = Cooldown
		} else if m.text == "" {
			m.state = Idle
		} else {
			m.state = Accumulating
		}
	case m.pending != nil && m.pending.Phrase == best.Phrase:
		// Stable across two consecutive partials: no longer trigger is
		// forthcoming for this span, emit now.
		events = append(events, m.emit(*best, seg))
		m.pending = nil
		m.fired[best.Alias] = true
		m.firedPhrases = append(m.firedPhrases, strings.ToLower(best.Phrase))
		m.state = Cooldown
	default:
		m.pending = best
		m.state = Matched
	}
	return events
}

func (m *Matcher) emit(t Trigger, seg stt.Segment) Event {
	return Event{
		Alias:  t.Alias,
		Phrase: t.Phrase,
		Offset: seg.End,
		At:     m.now(),
	}
}

// suppressed reports whether a trigger must not fire again this utterance:
// either its alias already fired, or its phrase is contained in a phrase
// that fired (once "fireball" has fired, the "fire" inside it stays quiet).
func (m *Matcher) suppressed(t *Trigger) bool {
	if m.fired[t.Alias] {
		return true
	}
	phrase := strings.ToLower(t.Phrase)
	for _, fp := range m.firedPhrases {
		if strings.Contains(fp, phrase) {
			return true
		}
	}
	return false
}

// bestMatch returns the longest registered trigger contained in text whose
// alias has not already fired this utterance. Equal-length candidates
// resolve to the earliest registration. On final segments with no substring
// hit, the phonetic fallback gets a chance.
func (m *Matcher) bestMatch(text string, final bool) *Trigger {
	if text == "" {
		return nil
	}
	triggers := *m.triggers.Load()

	var best *Trigger
	for i := range triggers {
		t := &triggers[i]
		if m.suppressed(t) {
			continue
		}
		if !strings.Contains(text, strings.ToLower(t.Phrase)) {
			continue
		}
		if best == nil || len(t.Phrase) > len(best.Phrase) {
			best = t
		}
	}
	if best != nil {
		return best
	}

	if final && m.phonetic != nil {
		return m.phoneticMatch(text, triggers)
	}
	return nil
}

// phoneticMatch slides trigger-sized token windows over the text and asks
// the phonetic matcher whether any window sounds like a registered phrase.
// Longer phrases are preferred, mirroring the substring tie-break.
func (m *Matcher) phoneticMatch(text string, triggers []Trigger) *Trigger {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	var best *Trigger
	var bestScore float64
	for i := range triggers {
		t := &triggers[i]
		if m.suppressed(t) {
			continue
		}
		width := len(strings.Fields(t.Phrase))
		if width == 0 || width > len(tokens) {
			continue
		}
		for start := 0; start+width <= len(tokens); start++ {
			gram := strings.Join(tokens[start:start+width], " ")
			_, score, ok := m.phonetic.Match(gram, []string{t.Phrase})
			if !ok {
				continue
			}
			if best == nil ||
				len(t.Phrase) > len(best.Phrase) ||
				(len(t.Phrase) == len(best.Phrase) && score > bestScore) {
				best = t
				bestScore = score
			}
		}
	}
	return best
}
