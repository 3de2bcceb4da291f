// Package transcript post-processes recognised text between the polling loop
// and the transcription callback.
//
// Raw speech-to-text output is rarely perfect for domain vocabulary: product
// names, project jargon, and proper nouns are frequently misheard. The
// [Refinery] applies a two-stage strategy:
//
//  1. Vocabulary snapping ([Matcher]): fast, in-process phonetic alignment of
//     n-gram windows against the configured vocabulary. Runs on every polled
//     transcript with no network calls.
//
//  2. LLM polish ([llmpolish.Polisher]): a language model reviews a completed
//     utterance against the vocabulary list. Runs only when recording stops,
//     off the polling path, and any rewrite the model does not declare is
//     reverted.
//
// Each [Correction] records which stage produced the substitution and its
// confidence, so callers can audit or log the changes.
//
// The Refinery is safe for concurrent use; the vocabulary can be swapped at
// runtime by a config reload.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript/llmpolish"
)

// Correction methods, recorded on each [Correction].
const (
	MethodVocabulary = "vocabulary"
	MethodLLM        = "llm"
)

// Correction describes a single substitution applied to recognised text.
type Correction struct {
	// Original is the text as recognised.
	Original string
	// Corrected is the replacement drawn from the vocabulary.
	Corrected string
	// Confidence is the stage's score for the substitution, in [0, 1].
	Confidence float64
	// Method is the stage that produced the substitution:
	// [MethodVocabulary] or [MethodLLM].
	Method string
}

// Matcher aligns a word or phrase against the vocabulary.
//
// When matched is true, corrected holds the canonical term and confidence its
// score. When matched is false, corrected equals word unchanged and
// confidence is 0.
type Matcher interface {
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}

// Option is a functional option for configuring a [Refinery].
type Option func(*Refinery)

// WithMatcher sets the vocabulary matcher. Without one, [Refinery.Refine]
// returns its input unchanged.
func WithMatcher(m Matcher) Option {
	return func(r *Refinery) {
		r.matcher = m
	}
}

// WithPolisher sets the LLM polisher. Without one, [Refinery.Polish] stops
// after the vocabulary stage.
func WithPolisher(p *llmpolish.Polisher) Option {
	return func(r *Refinery) {
		r.polisher = p
	}
}

// WithTerms sets the initial vocabulary.
func WithTerms(terms []string) Option {
	return func(r *Refinery) {
		r.terms = copyTerms(terms)
	}
}

// Refinery owns the vocabulary and applies the correction stages to
// recognised text.
type Refinery struct {
	matcher  Matcher
	polisher *llmpolish.Polisher

	mu    sync.RWMutex
	terms []string
}

// NewRefinery returns a [Refinery] configured with the supplied options.
func NewRefinery(opts ...Option) *Refinery {
	r := &Refinery{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetTerms replaces the vocabulary. The slice is copied, so the caller may
// reuse it. In-flight corrections finish against the vocabulary they started
// with.
func (r *Refinery) SetTerms(terms []string) {
	r.mu.Lock()
	r.terms = copyTerms(terms)
	r.mu.Unlock()
}

// Terms returns a copy of the current vocabulary.
func (r *Refinery) Terms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyTerms(r.terms)
}

// Refine applies the vocabulary stage to text and returns the corrected text
// along with the substitutions made. It never blocks on the network and is
// cheap enough to run on every poll cycle.
func (r *Refinery) Refine(text string) (string, []Correction) {
	r.mu.RLock()
	terms := r.terms
	r.mu.RUnlock()

	if r.matcher == nil || len(terms) == 0 || strings.TrimSpace(text) == "" {
		return text, nil
	}
	return r.applyTerms(text, terms)
}

// Polish runs both stages on a completed utterance: the vocabulary stage,
// then the LLM review when a polisher is configured.
//
// On LLM failure the vocabulary-stage text is returned alongside the error,
// so callers can fall back to it.
func (r *Refinery) Polish(ctx context.Context, text string) (string, []Correction, error) {
	refined, corrections := r.Refine(text)
	if r.polisher == nil {
		return refined, corrections, nil
	}

	r.mu.RLock()
	terms := r.terms
	r.mu.RUnlock()

	polished, llmCorrections, err := r.polisher.Polish(ctx, refined, terms)
	if err != nil {
		return refined, corrections, fmt.Errorf("transcript: polish: %w", err)
	}
	for _, c := range llmCorrections {
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
			Method:     MethodLLM,
		})
	}
	return polished, corrections, nil
}

// applyTerms scans text with a sliding n-gram window, longest window first,
// and replaces windows the matcher aligns to a vocabulary term.
//
// Two guards keep running text intact: a window never expands into a longer
// phrase (snapping "storage" alone to "Google Cloud Storage" would garble the
// sentence), and punctuation on the window's edges survives the replacement.
func (r *Refinery) applyTerms(text string, terms []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	maxTermWords := maxWordCount(terms)

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			lead, window, trail := windowText(tokens[i : i+n])
			if window == "" {
				continue
			}

			term, conf, ok := r.matcher.Match(window, terms)
			if !ok {
				continue
			}
			termTokens := strings.Fields(term)
			if len(termTokens) > n {
				continue
			}
			if term == window {
				// Already canonical; keep the original tokens.
				output = append(output, tokens[i:i+n]...)
				i += n
				matched = true
				break
			}

			termTokens[0] = lead + termTokens[0]
			termTokens[len(termTokens)-1] += trail
			output = append(output, termTokens...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
				Method:     MethodVocabulary,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// punctCutset lists the ASCII punctuation stripped from window edges before
// matching and re-attached after a replacement.
const punctCutset = ".,;:!?\"'()[]"

// windowText joins tokens into a match window, splitting off the leading
// punctuation of the first token and the trailing punctuation of the last so
// a replacement can preserve them. Punctuation interior to the window is left
// alone; a window spanning a phrase boundary should score poorly and be
// rejected by the matcher.
func windowText(tokens []string) (lead, window, trail string) {
	parts := make([]string, len(tokens))
	copy(parts, tokens)

	first := parts[0]
	core := strings.TrimLeft(first, punctCutset)
	lead = first[:len(first)-len(core)]
	parts[0] = core

	last := parts[len(parts)-1]
	core = strings.TrimRight(last, punctCutset)
	trail = last[len(core):]
	parts[len(parts)-1] = core

	return lead, strings.Join(parts, " "), trail
}

// maxWordCount returns the word count of the longest term, bounding the
// n-gram window size.
func maxWordCount(terms []string) int {
	max := 1
	for _, term := range terms {
		if n := len(strings.Fields(term)); n > max {
			max = n
		}
	}
	return max
}

func copyTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, len(terms))
	copy(out, terms)
	return out
}
