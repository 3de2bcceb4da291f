package openai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
)

// TestChatParams_RoleMapping checks each conversation role lands in the
// matching SDK union member.
func TestChatParams_RoleMapping(t *testing.T) {
	params, err := chatParams("gpt-4o-mini", llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You fix transcripts."},
			{Role: llm.RoleUser, Content: "helo wrld"},
			{Role: llm.RoleAssistant, Content: "Hello, world."},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected message 0 to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected message 1 to be a user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected message 2 to be an assistant message")
	}
}

// TestChatParams_UnknownRole checks that unmapped roles are rejected.
func TestChatParams_UnknownRole(t *testing.T) {
	_, err := chatParams("gpt-4o-mini", llm.CompletionRequest{
		Messages: []llm.Message{{Role: "narrator", Content: "meanwhile"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
	if !strings.Contains(err.Error(), "narrator") {
		t.Errorf("error should name the offending role, got: %v", err)
	}
}

// TestChatParams_SystemPromptLeads ensures the standalone system prompt is
// prepended ahead of the conversation.
func TestChatParams_SystemPromptLeads(t *testing.T) {
	params, err := chatParams("gpt-4o-mini", llm.CompletionRequest{
		SystemPrompt: "Fix transcripts.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "helo wrld"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected the system prompt to lead the message list")
	}
}

// TestChatParams_Tuning checks temperature and token cap wiring.
func TestChatParams_Tuning(t *testing.T) {
	params, err := chatParams("gpt-4o-mini", llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := params.Temperature.Or(-1); got != 0.1 {
		t.Errorf("temperature = %v, want 0.1", got)
	}
	if got := params.MaxCompletionTokens.Or(-1); got != 256 {
		t.Errorf("max completion tokens = %d, want 256", got)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %s, want gpt-4o-mini", params.Model)
	}
}

// TestChatParams_ZeroTuningOmitted checks that zero values stay unset so the
// provider defaults apply.
func TestChatParams_ZeroTuningOmitted(t *testing.T) {
	params, err := chatParams("gpt-4o-mini", llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("expected temperature to be omitted")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("expected max completion tokens to be omitted")
	}
}

// TestNew_Validation covers the constructor's required arguments.
func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name    string
		apiKey  string
		model   string
		wantErr bool
	}{
		{name: "missing api key", apiKey: "", model: "gpt-4o", wantErr: true},
		{name: "missing model", apiKey: "sk-test", model: "", wantErr: true},
		{name: "complete", apiKey: "sk-test", model: "gpt-4o", wantErr: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.apiKey, tc.model,
				WithOrganization("org-123"),
				WithTimeout(30*time.Second),
			)
			if tc.wantErr && err == nil {
				t.Fatal("expected constructor error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected constructor error: %v", err)
			}
		})
	}
}

// TestComplete_RoundTrip drives a completion against a stub API server and
// checks both the outgoing request and the mapped response.
func TestComplete_RoundTrip(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Hello, world."},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 4,
				"total_tokens":      16,
			},
		})
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(t.Context(), llm.CompletionRequest{
		SystemPrompt: "Fix transcripts.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "helo wrld"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/chat/completions") {
		t.Errorf("request path = %q, want a /chat/completions endpoint", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q, want the configured key", gotAuth)
	}
	if !strings.Contains(gotBody, `"gpt-4o-mini"`) {
		t.Errorf("request body should carry the model name, got: %s", gotBody)
	}

	if resp.Content != "Hello, world." {
		t.Errorf("content = %q, want %q", resp.Content, "Hello, world.")
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 4 || resp.Usage.TotalTokens != 16 {
		t.Errorf("usage = %+v, want 12/4/16", resp.Usage)
	}
}

// TestComplete_EmptyChoices checks that a response without choices is an
// error rather than an empty transcript.
func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-test","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Complete(t.Context(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("expected error for a response with no choices")
	}
}
