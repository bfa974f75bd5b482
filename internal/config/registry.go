package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/vidforge/vidforge/pkg/provider/llm"
	"github.com/vidforge/vidforge/pkg/provider/llm/anyllm"
	"github.com/vidforge/vidforge/pkg/provider/llm/openai"
)

// ErrProviderNotRegistered is returned by [Registry.CreateEnhancer] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps enhancer provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	enhancer map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		enhancer: make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterEnhancer registers an enhancer LLM factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEnhancer(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enhancer[name] = factory
}

// CreateEnhancer instantiates an enhancer LLM using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateEnhancer(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.enhancer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: enhancer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// DefaultRegistry returns a [Registry] with all built-in enhancer providers
// registered. OpenAI uses the native SDK client; the remaining providers go
// through the any-llm-go backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterEnhancer("openai", func(entry ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		r.RegisterEnhancer(name, func(entry ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, entry.Model, opts...)
		})
	}

	return r
}
