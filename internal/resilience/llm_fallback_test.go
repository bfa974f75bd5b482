package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vidforge/vidforge/pkg/provider/llm"
	llmmock "github.com/vidforge/vidforge/pkg/provider/llm/mock"
)

func enhanceReq() llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "a cat on a beach"}},
	}
}

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from primary"},
	}
	fallback := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from fallback"},
	}

	f := NewLLMFallback(primary, "openai", CircuitBreakerConfig{})
	f.AddFallback("ollama", fallback)

	resp, err := f.Complete(context.Background(), enhanceReq())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q, want primary response", resp.Content)
	}
	if len(fallback.Calls()) != 0 {
		t.Error("fallback consulted although primary succeeded")
	}
}

func TestLLMFallback_FailsOverToSecondary(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErr: errors.New("rate limited"),
	}
	fallback := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from fallback"},
	}

	f := NewLLMFallback(primary, "openai", CircuitBreakerConfig{})
	f.AddFallback("ollama", fallback)

	resp, err := f.Complete(context.Background(), enhanceReq())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("Content = %q, want fallback response", resp.Content)
	}
	if len(primary.Calls()) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.Calls()))
	}
}

func TestLLMFallback_AllBackendsFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	fallback := &llmmock.Provider{CompleteErr: errors.New("also down")}

	f := NewLLMFallback(primary, "openai", CircuitBreakerConfig{})
	f.AddFallback("ollama", fallback)

	_, err := f.Complete(context.Background(), enhanceReq())
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Errorf("expected ErrAllBackendsFailed, got %v", err)
	}
}

func TestLLMFallback_SkipsOpenBreaker(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	fallback := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from fallback"},
	}

	f := NewLLMFallback(primary, "openai", CircuitBreakerConfig{MaxFailures: 1})
	f.AddFallback("ollama", fallback)

	// First call trips the primary's breaker.
	if _, err := f.Complete(context.Background(), enhanceReq()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Second call must skip the primary entirely.
	if _, err := f.Complete(context.Background(), enhanceReq()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open on second call)", got)
	}
	if got := len(fallback.Calls()); got != 2 {
		t.Errorf("fallback calls = %d, want 2", got)
	}
}

func TestLLMFallback_PrimaryRecoversAfterResetTimeout(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	fallback := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from fallback"},
	}

	f := NewLLMFallback(primary, "openai", CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})
	f.AddFallback("ollama", fallback)

	// Trip the primary, then let its reset window pass while it heals.
	if _, err := f.Complete(context.Background(), enhanceReq()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	primary.CompleteResponse = &llm.CompletionResponse{Content: "from primary"}
	primary.CompleteErr = nil
	time.Sleep(15 * time.Millisecond)

	resp, err := f.Complete(context.Background(), enhanceReq())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q, want recovered primary response", resp.Content)
	}
}
