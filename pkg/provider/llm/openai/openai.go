// Package openai implements the llm.Provider interface on the official
// OpenAI SDK. The polish stage uses it when transcripts should be cleaned
// up by an OpenAI-hosted model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
)

// Provider sends chat completions to the OpenAI API. The zero value is not
// usable; construct with [New]. Safe for concurrent use.
type Provider struct {
	client oai.Client
	model  string
}

type settings struct {
	client []option.RequestOption
}

// Option customises the underlying OpenAI client.
type Option func(*settings)

// WithBaseURL points the client at a different API endpoint, typically an
// OpenAI-compatible proxy. An empty URL is ignored.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.client = append(s.client, option.WithBaseURL(url))
		}
	}
}

// WithOrganization attaches an OpenAI organization ID to every request.
func WithOrganization(org string) Option {
	return func(s *settings) {
		if org != "" {
			s.client = append(s.client, option.WithOrganization(org))
		}
	}
}

// WithTimeout bounds each HTTP request. Zero or negative durations are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.client = append(s.client, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New builds a Provider for the given model. Both the API key and the model
// name are required.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}

	s := settings{client: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, opt := range opts {
		opt(&s)
	}

	return &Provider{client: oai.NewClient(s.client...), model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := chatParams(p.model, req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// chatParams translates the provider-agnostic request into SDK params. The
// system prompt, when present, becomes the leading message.
func chatParams(model string, req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, oai.SystemMessage(m.Content))
		case llm.RoleUser:
			msgs = append(msgs, oai.UserMessage(m.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, oai.AssistantMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unknown message role %q", m.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}
