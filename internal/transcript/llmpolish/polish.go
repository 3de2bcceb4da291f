// Package llmpolish implements a language-model-based polish stage that
// resolves vocabulary misrecognitions the phonetic matcher could not catch.
//
// The [Polisher] sends transcript text to an [llm.Provider] along with the
// list of known vocabulary terms. The model is instructed (via a conservative
// system prompt) to fix only words that look like misrecognised terms and to
// return a structured JSON response containing the polished text and an
// itemised list of substitutions. Every token-level change the model made is
// then cross-checked against its declared substitutions; changes the model
// did not declare are reverted, so a hallucinated rewrite cannot reach the
// caller.
//
// This stage runs exclusively on completed utterances, never inside the
// polling loop, so the network round trip is acceptable. When the LLM
// response cannot be parsed, the polisher returns the original text
// unchanged rather than surfacing an error.
package llmpolish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llm "github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
)

const defaultTemperature = 0.1

// The prompt pins the model to a narrow editing role and a strict JSON reply
// so the response can be machine-checked. The vocabulary section is filled
// in per request.
const (
	promptPreamble = `You clean up live speech-to-text output.

Correct ONLY words that are plainly misheard versions of the vocabulary terms listed below. Everything else stays exactly as transcribed: wording, grammar, punctuation, sentence structure. When unsure whether a word is a misheard term, keep the original word. Corrected terms must use the canonical spelling from the list.

Vocabulary:
`

	promptReplyFormat = `
Reply with nothing but a JSON object of this shape (no markdown, no prose):
{
  "corrected_text": "<the full transcript after corrections>",
  "corrections": [
    {"original": "<word as transcribed>", "corrected": "<replacement>", "confidence": <0.0-1.0>}
  ]
}

With nothing to correct, return the input text and an empty corrections array.`
)

// promptFor assembles the system prompt around the current vocabulary.
func promptFor(terms []string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	for _, term := range terms {
		b.WriteString("- ")
		b.WriteString(term)
		b.WriteByte('\n')
	}
	b.WriteString(promptReplyFormat)
	return b.String()
}

// Correction is one word-level substitution the model declared and the
// verification pass confirmed. The refinery maps these to
// [transcript.Correction] values with Method set to "llm".
type Correction struct {
	// Original is the word as it appeared in the input transcript.
	Original string

	// Corrected is the replacement term.
	Corrected string

	// Confidence is the model's self-reported confidence, 0.0 to 1.0.
	Confidence float64
}

// modelReply mirrors the JSON contract stated in the prompt.
type modelReply struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option configures a [Polisher].
type Option func(*Polisher)

// WithTemperature overrides the sampling temperature. The default of 0.1
// keeps corrections close to deterministic.
func WithTemperature(temp float64) Option {
	return func(p *Polisher) {
		p.temperature = temp
	}
}

// Polisher asks an [llm.Provider] to fix vocabulary misrecognitions in
// transcript text, then vets the answer. Safe for concurrent use.
//
// The model is chosen by constructing the [llm.Provider] with it; there is
// no per-request override.
type Polisher struct {
	llm         llm.Provider
	temperature float64
}

// New returns a [Polisher] backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Polisher {
	p := &Polisher{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Polish sends text to the model with the vocabulary list as context. The
// returned text contains only changes the model declared in its corrections
// list; undeclared rewrites are reverted.
//
// A reply that is not the agreed JSON is treated as "no corrections": the
// original text comes back with nil corrections and a nil error, and the
// pipeline continues with the unpolished transcript. Context cancellation
// and transport failures are returned as errors.
func (p *Polisher) Polish(ctx context.Context, text string, terms []string) (string, []Correction, error) {
	if len(terms) == 0 || strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: promptFor(terms),
		Temperature:  p.temperature,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
	})
	if err != nil {
		return text, nil, fmt.Errorf("llm polish: complete: %w", err)
	}
	if resp == nil {
		return text, nil, nil
	}

	polished, declared, err := decodeReply(resp.Content, text)
	if err != nil {
		return text, nil, nil
	}

	verified, confirmed := verifyPolishedText(text, polished, declared)
	return verified, confirmed, nil
}

// decodeReply parses the model output, tolerating markdown fences. Entries
// without an original and self-substitutions are dropped.
func decodeReply(raw, fallback string) (string, []Correction, error) {
	var reply modelReply
	if err := json.Unmarshal([]byte(unfence(raw)), &reply); err != nil {
		return "", nil, err
	}
	if reply.CorrectedText == "" {
		return fallback, nil, nil
	}

	corrections := make([]Correction, 0, len(reply.Corrections))
	for _, c := range reply.Corrections {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}
		corrections = append(corrections, Correction(c))
	}
	return reply.CorrectedText, corrections, nil
}

// unfence strips the ```json ... ``` wrapper some models insist on adding.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
