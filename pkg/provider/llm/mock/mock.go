// Package mock is a scriptable llm.Provider for tests.
//
// Tests assign the canned response or error up front, run the code under
// test, then inspect the recorded calls:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello, world."},
//	}
//	got, err := polisher.Polish(ctx, "helo wrld")
//	req := p.CompleteCalls[0].Req // what the polish stage actually sent
//
// Configure fields before use; the methods themselves are safe to call
// concurrently.
package mock

import (
	"context"
	"sync"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider returns its configured response from every Complete call and
// keeps a record of what it was asked. The zero value answers nil, nil.
type Provider struct {
	// CompleteResponse is handed back from Complete, unmodified.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, when set, makes every Complete call fail with it.
	CompleteErr error

	// CompleteCalls accumulates invocations in order. Read it after the
	// code under test has finished.
	CompleteCalls []CompleteCall

	mu sync.Mutex
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	resp, err := p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()
	return resp, err
}

// CallCountComplete reports how many Complete calls have been recorded.
func (p *Provider) CallCountComplete() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
