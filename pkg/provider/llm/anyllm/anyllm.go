// Package anyllm bridges the polish stage to github.com/mozilla-ai/any-llm-go,
// which speaks to OpenAI, Anthropic, Gemini, Ollama, and several other chat
// backends through one interface. Selecting the backend by name keeps the
// refine.polish config section provider-agnostic:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest",
//		anyllmlib.WithAPIKey("sk-ant-..."))
//
// When no API key option is given, each backend falls back to its usual
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, and so on).
package anyllm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
)

// backends maps each supported provider name to its any-llm-go constructor.
var backends = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"openai":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(opts...) },
	"anthropic": func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(opts...) },
	"gemini":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(opts...) },
	"ollama":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(opts...) },
	"deepseek":  func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(opts...) },
	"mistral":   func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(opts...) },
	"groq":      func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(opts...) },
	"llamacpp":  func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(opts...) },
	"llamafile": func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(opts...) },
}

// Supported returns the recognised provider names in sorted order.
func Supported() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Provider adapts an any-llm-go backend to the llm.Provider interface.
// Safe for concurrent use when the wrapped backend is.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New selects the backend by providerName (case-insensitive, see [Supported])
// and binds it to the given model. opts are passed through to the backend
// constructor; anyllmlib.WithAPIKey and anyllmlib.WithBaseURL cover the
// common cases.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	factory, ok := backends[strings.ToLower(providerName)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q (supported: %s)",
			providerName, strings.Join(Supported(), ", "))
	}
	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, completionParams(p.model, req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	// Not every backend reports usage.
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// completionParams translates the provider-agnostic request into any-llm-go
// params. Roles pass through untouched since both sides use the same names.
func completionParams(model string, req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
