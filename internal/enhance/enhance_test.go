package enhance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vidforge/vidforge/pkg/provider/llm"
	llmmock "github.com/vidforge/vidforge/pkg/provider/llm/mock"
)

func TestNew_RequiresProvider(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestEnhance(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "  A lone red fox crossing a frost-covered meadow at dawn, low golden light, slow tracking shot.  ",
		},
	}
	e, err := New(Config{Provider: mockLLM})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := e.Enhance(context.Background(), "a fox")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if strings.HasPrefix(got, " ") || strings.HasSuffix(got, " ") {
		t.Errorf("result not trimmed: %q", got)
	}
	if !strings.Contains(got, "red fox") {
		t.Errorf("unexpected result %q", got)
	}

	calls := mockLLM.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt == "" {
		t.Error("expected a system prompt on the completion request")
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "a fox" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Messages[0].Role != llm.RoleUser {
		t.Errorf("role = %q, want user", req.Messages[0].Role)
	}
	if req.Temperature != defaultTemperature {
		t.Errorf("temperature = %v, want default", req.Temperature)
	}
	if req.MaxTokens != defaultMaxTokens {
		t.Errorf("max tokens = %d, want default", req.MaxTokens)
	}
}

func TestEnhance_EmptyPrompt(t *testing.T) {
	e, err := New(Config{Provider: &llmmock.Provider{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Enhance(context.Background(), "   "); err == nil {
		t.Error("expected error for blank prompt")
	}
}

func TestEnhance_ProviderError(t *testing.T) {
	wantErr := errors.New("rate limited")
	e, err := New(Config{Provider: &llmmock.Provider{CompleteErr: wantErr}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Enhance(context.Background(), "a fox"); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func TestEnhance_EmptyCompletion(t *testing.T) {
	e, err := New(Config{Provider: &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "   "},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Enhance(context.Background(), "a fox"); err == nil {
		t.Error("expected error for empty completion")
	}
}
