package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vidforge/vidforge/pkg/provider/llm"
)

// ErrAllBackendsFailed is returned by [LLMFallback.Complete] when every
// backend fails or has an open circuit breaker.
var ErrAllBackendsFailed = errors.New("resilience: all LLM backends failed")

// llmBackend pairs one enhancer provider with its dedicated circuit breaker.
type llmBackend struct {
	name     string
	provider llm.Provider
	breaker  *CircuitBreaker
}

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends. Each backend sits behind its own circuit breaker named
// "enhancer-<backend>"; a backend whose breaker is open is skipped without a
// round trip, so a rate-limited primary stops delaying enhancement requests.
//
// Register all fallbacks before serving; Complete is then safe for concurrent
// use.
type LLMFallback struct {
	template CircuitBreakerConfig
	backends []llmBackend
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. cfg is the breaker template applied to every backend; its Name is
// overwritten per backend.
func NewLLMFallback(primary llm.Provider, name string, cfg CircuitBreakerConfig) *LLMFallback {
	f := &LLMFallback{template: cfg}
	f.add(name, primary)
	return f
}

// AddFallback registers an additional backend. Backends are tried in
// registration order, after the primary.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.add(name, provider)
}

func (f *LLMFallback) add(name string, provider llm.Provider) {
	cfg := f.template
	cfg.Name = "enhancer-" + name
	f.backends = append(f.backends, llmBackend{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cfg),
	})
}

// Complete sends the request to the first healthy backend and returns its
// response. Failures and open breakers advance to the next backend;
// [ErrAllBackendsFailed] wraps the last error when none remain.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for i := range f.backends {
		b := &f.backends[i]
		var resp *llm.CompletionResponse
		err := b.breaker.Execute(ctx, func(ctx context.Context) error {
			r, err := b.provider.Complete(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping LLM backend, breaker open", "backend", b.name)
		} else {
			slog.Warn("LLM backend failed, trying next", "backend", b.name, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
