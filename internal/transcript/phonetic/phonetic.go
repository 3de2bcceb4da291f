// Package phonetic matches misrecognised words against a known vocabulary
// by sound rather than spelling.
//
// A candidate word first has to sound like a term: Double Metaphone codes
// are computed for every token on both sides, and any shared code makes the
// term a phonetic candidate. Candidates are then ranked by Jaro-Winkler
// similarity over the original strings, and the best one wins if it clears
// the phonetic threshold (default 0.70).
//
// Words that sound like nothing in the vocabulary get one more chance: a
// plain Jaro-Winkler pass with a stricter threshold (default 0.85) catches
// near-spellings the metaphone codes miss.
//
// Multi-word terms like "Google Cloud Storage" go through the same token
// machinery. Single-word input may match an individual word of such a term;
// multi-word input has to resemble the whole phrase, so a window that merely
// contains one of the term's words does not match.
package phonetic

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity score a term that shares
// a metaphone code with the input must reach. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.minPhoneticScore = threshold
	}
}

// WithFuzzyThreshold sets the minimum similarity score for the fallback pass
// over terms with no shared metaphone code. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.minFuzzyScore = threshold
	}
}

// Matcher implements [transcript.Matcher] on Double Metaphone codes with
// Jaro-Winkler ranking. Read-only after construction, so safe for concurrent
// use.
type Matcher struct {
	minPhoneticScore float64
	minFuzzyScore    float64
}

// New returns a [Matcher] with the default thresholds, adjusted by opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		minPhoneticScore: defaultPhoneticThreshold,
		minFuzzyScore:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match looks for the vocabulary term word most plausibly stands for. word
// may be a single word or a space-separated window of several.
//
// Terms that share a metaphone code with the input are preferred outright;
// the fallback similarity pass only decides when no term sounds alike. Per
// the [transcript.Matcher] contract, a miss returns word unchanged with
// confidence 0.
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	if len(terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	input := strings.ToLower(strings.TrimSpace(word))
	inputTokens := strings.Fields(input)
	inputCodes := encode(inputTokens)

	var (
		soundTerm   string
		soundScore  float64
		fuzzyTerm   string
		fuzzyScore  float64
	)

	for _, term := range terms {
		normalized := strings.ToLower(strings.TrimSpace(term))
		if normalized == "" {
			continue
		}
		termTokens := strings.Fields(normalized)
		score := similarity(inputTokens, termTokens, input, normalized)

		if inputCodes.intersects(encode(termTokens)) {
			if score >= m.minPhoneticScore && score > soundScore {
				soundTerm, soundScore = term, score
			}
		} else if score >= m.minFuzzyScore && score > fuzzyScore {
			fuzzyTerm, fuzzyScore = term, score
		}
	}

	switch {
	case soundTerm != "":
		return soundTerm, soundScore, true
	case fuzzyTerm != "":
		return fuzzyTerm, fuzzyScore, true
	}
	return word, 0, false
}

// codeSet holds the distinct Double Metaphone codes of a token sequence.
// The sets stay tiny (two codes per token at most), so a slice beats a map.
type codeSet []string

func encode(tokens []string) codeSet {
	cs := make(codeSet, 0, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		for _, c := range []string{primary, secondary} {
			// Very short or vowel-only words encode to "".
			if c != "" && !slices.Contains(cs, c) {
				cs = append(cs, c)
			}
		}
	}
	return cs
}

func (cs codeSet) intersects(other codeSet) bool {
	for _, c := range cs {
		if slices.Contains(other, c) {
			return true
		}
	}
	return false
}

// similarity scores the input against one vocabulary term. Three angles are
// tried and the best wins: the full strings, the space-stripped strings
// (catches "coober netties" against "kubernetes"), and, for single-token
// input only, each term word on its own. The per-word angle stays off for
// multi-token input because a window like "it to google" contains "google"
// verbatim and would otherwise score 1.0 against "Google Cloud Storage".
func similarity(inputTokens, termTokens []string, input, term string) float64 {
	score := matchr.JaroWinkler(input, term, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}

	if len(inputTokens) == 1 {
		for _, tw := range termTokens {
			score = max(score, matchr.JaroWinkler(inputTokens[0], tw, false))
		}
	}
	return score
}
