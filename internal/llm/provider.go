// Package llm talks to the language model providers that voice the coach's
// welcome message.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
)

// Provider writes one completion for a single-turn prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (Completion, error)
}

// Prompt is a trainer persona (System) plus the member brief (User).
type Prompt struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

func (p Prompt) model(fallback string) string {
	if p.Model != "" {
		return p.Model
	}
	return fallback
}

func (p Prompt) maxTokens(fallback int) int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return fallback
}

// Completion is the generated text and its token cost.
type Completion struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Registry holds the configured providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	defaultP  string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Registering a name twice replaces the provider
// but keeps its original position.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// SetDefault sets the default provider. "auto" picks the first registered one.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "auto" {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
		}
	}
	r.defaultP = name
	return nil
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Default returns the default provider, falling back to the first
// registered provider when the default is unset or "auto".
func (r *Registry) Default() (Provider, error) {
	ordered := r.Ordered()
	if len(ordered) == 0 {
		return nil, ErrNoDefaultProvider
	}
	return ordered[0], nil
}

// Ordered returns every provider with the default first and the rest in
// registration order.
func (r *Registry) Ordered() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	if p, ok := r.providers[r.defaultP]; ok {
		out = append(out, p)
	}
	for _, name := range r.order {
		if name != r.defaultP {
			out = append(out, r.providers[name])
		}
	}
	return out
}

// List returns all registered provider names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultP
}
