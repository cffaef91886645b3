package llmprovider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderOpenRouter is the OpenAI-compatible OpenRouter API
	ProviderOpenRouter ProviderID = "openrouter"

	// ProviderFireworks is Fireworks AI (image capabilities only)
	ProviderFireworks ProviderID = "fireworks"

	// ProviderLorem is the mock Lorem provider for testing
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderAnthropic, ProviderOpenRouter, ProviderFireworks, ProviderLorem:
		return true
	default:
		return false
	}
}

// Model is a provider bound to one model id.
type Model struct {
	Provider Provider
	ID       string
}

// NoSuchProviderError reports a registry lookup for an unregistered provider.
type NoSuchProviderError struct {
	ProviderID string
	Available  []string
}

func (e *NoSuchProviderError) Error() string {
	return fmt.Sprintf("no such provider: %s (available: %v)", e.ProviderID, e.Available)
}

func (e *NoSuchProviderError) Unwrap() error {
	return ErrNoSuchProvider
}

// NoSuchModelError reports a registry lookup for a model that cannot be resolved.
type NoSuchModelError struct {
	ModelID string
}

func (e *NoSuchModelError) Error() string {
	return "no such model: " + e.ModelID
}

func (e *NoSuchModelError) Unwrap() error {
	return ErrInvalidModel
}

// Registry resolves string model ids to providers. Ids are either aliases
// registered with RegisterModel or "provider:model" pairs.
//
// Registries are plain values owned by the caller; there is no global one.
type Registry struct {
	providers map[ProviderID]Provider
	models    map[string]Model
	mu        sync.RWMutex
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[ProviderID]Provider),
		models:    make(map[string]Model),
	}
	for _, p := range providers {
		r.RegisterProvider(p)
	}
	return r
}

// RegisterProvider adds p under p.Name(), replacing any previous provider with that name.
func (r *Registry) RegisterProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// RegisterModel adds an alias for a provider model ("fast" -> lorem-fast).
func (r *Registry) RegisterModel(alias string, p Provider, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[alias] = Model{Provider: p, ID: model}
}

// Provider returns the provider registered under id.
func (r *Registry) Provider(id ProviderID) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, &NoSuchProviderError{ProviderID: string(id), Available: r.providerNames()}
	}
	return p, nil
}

// LanguageModel resolves id. Registered aliases win over "provider:model"
// pairs. The model part may itself contain colons.
func (r *Registry) LanguageModel(id string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.models[id]; ok {
		return m, nil
	}

	providerID, modelID, ok := strings.Cut(id, ":")
	if !ok {
		return Model{}, &NoSuchModelError{ModelID: id}
	}

	p, ok := r.providers[ProviderID(providerID)]
	if !ok {
		return Model{}, &NoSuchProviderError{ProviderID: providerID, Available: r.providerNames()}
	}

	if modelID == "" || !p.SupportsModel(modelID) {
		return Model{}, &NoSuchModelError{ModelID: id}
	}
	return Model{Provider: p, ID: modelID}, nil
}

func (r *Registry) providerNames() []string {
	names := make([]string, 0, len(r.providers))
	for id := range r.providers {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}
