// Package enhance rewrites terse user prompts into richer generation prompts
// using an LLM backend. It is a single blocking completion per call; no
// polling is involved.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vidforge/vidforge/internal/observe"
	"github.com/vidforge/vidforge/pkg/provider/llm"
)

// systemPrompt instructs the model to act as a generation prompt writer. The
// model must answer with the rewritten prompt only, since the result is fed
// verbatim into a provider's create-job request.
const systemPrompt = `You are an expert prompt writer for AI video and image generation.
Rewrite the user's prompt into a single vivid, concrete generation prompt.
Describe the subject, setting, lighting, camera movement, and visual style.
Keep it under 120 words. Respond with the rewritten prompt only, no
explanations, no quotation marks.`

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 400
)

// Config configures an [Enhancer].
type Config struct {
	// Provider performs the completion. Required.
	Provider llm.Provider

	// Temperature for the completion. Defaults to 0.7 if zero.
	Temperature float64

	// MaxTokens caps the rewritten prompt length. Defaults to 400 if zero.
	MaxTokens int

	// Metrics, when non-nil, receives latency instrumentation.
	Metrics *observe.Metrics
}

// Enhancer turns short user prompts into detailed generation prompts.
// Safe for concurrent use.
type Enhancer struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

// New creates an [Enhancer].
func New(cfg Config) (*Enhancer, error) {
	if cfg.Provider == nil {
		return nil, errors.New("enhance: Provider must not be nil")
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Enhancer{
		provider:    cfg.Provider,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		metrics:     cfg.Metrics,
	}, nil
}

// Enhance rewrites prompt and returns the improved version.
func (e *Enhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("enhance: prompt must not be empty")
	}

	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if e.metrics != nil {
		e.metrics.EnhanceDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("enhance: completion: %w", err)
	}

	enhanced := strings.TrimSpace(resp.Content)
	if enhanced == "" {
		return "", errors.New("enhance: model returned an empty completion")
	}
	return enhanced, nil
}
