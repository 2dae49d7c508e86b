package keyword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// PhoneticOption configures a Phonetic matcher.
type PhoneticOption func(*Phonetic)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-overlapping candidate to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) PhoneticOption {
	return func(p *Phonetic) { p.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap exists and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) PhoneticOption {
	return func(p *Phonetic) { p.fuzzyThreshold = threshold }
}

// Phonetic matches near-miss pronunciations against known phrases using
// Double Metaphone codes for candidate filtering and Jaro-Winkler similarity
// for ranking. Recognizers routinely mangle invented words ("fire bolt" for
// "firebolt", "elder nacks" for "eldrinax"); the phonetic pass lets such
// utterances still resolve to their trigger.
//
// All methods are safe for concurrent use — a Phonetic is read-only after
// construction.
type Phonetic struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewPhonetic returns a Phonetic matcher with the supplied options applied.
func NewPhonetic(opts ...PhoneticOption) *Phonetic {
	p := &Phonetic{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Match finds the phrase most phonetically similar to word. word may be a
// single token or a space-separated n-gram. When matched is false, corrected
// equals word unchanged and confidence is 0.
func (p *Phonetic) Match(word string, phrases []string) (corrected string, confidence float64, matched bool) {
	if len(phrases) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		phrase   string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, phrase := range phrases {
		phraseLower := strings.ToLower(strings.TrimSpace(phrase))
		if phraseLower == "" {
			continue
		}
		phraseTokens := strings.Fields(phraseLower)

		phoneticHit := codesOverlap(inputCodes, codesForTokens(phraseTokens))
		score := bestJWScore(wordTokens, phraseTokens, wordLower, phraseLower)

		if phoneticHit {
			if score >= p.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{phrase: phrase, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= p.fuzzyThreshold && score > best.score {
			best = candidate{phrase: phrase, score: score}
		}
	}

	if best.phrase != "" {
		return best.phrase, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of Double Metaphone codes for the tokens,
// excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between input and
// phrase across three views: full strings, space-stripped strings, and the
// best pairwise token score. The multi-view comparison copes with the
// recognizer splitting or joining words arbitrarily.
func bestJWScore(inputTokens, phraseTokens []string, inputFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(inputFull, phraseFull, false)

	if len(inputTokens) > 1 || len(phraseTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(phraseTokens, ""), false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, pt := range phraseTokens {
			if s := matchr.JaroWinkler(it, pt, false); s > score {
				score = s
			}
		}
	}
	return score
}
