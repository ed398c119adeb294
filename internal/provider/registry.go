package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the configured providers keyed by ID. Safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its ID.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
}

// Get returns the provider with the given ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}
	return p, nil
}

// List returns provider descriptions in registration order.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, Info(r.providers[id]))
	}
	return infos
}

// GetModel resolves one model's info, or nil when the provider or model
// is unknown.
func (r *Registry) GetModel(providerID, modelID string) *ModelInfo {
	p, err := r.Get(providerID)
	if err != nil {
		return nil
	}
	info, ok := p.Models()[modelID]
	if !ok {
		return nil
	}
	return &info
}

// gatewayPrefixes route models to the multi-backend gateway provider.
var gatewayPrefixes = []string{"gemini/", "groq/", "deepseek/", "openrouter/", "zai/"}

// Infer picks a provider for a bare model ID. Prefixed models route to
// the gateway. Claude and GPT/o1 families use their native adapter when
// one is registered and the gateway otherwise. Unrecognized IDs return
// "" so the caller can apply its configured default.
func (r *Registry) Infer(modelID string) string {
	for _, prefix := range gatewayPrefixes {
		if strings.HasPrefix(modelID, prefix) {
			return "gateway"
		}
	}

	var native string
	switch {
	case strings.HasPrefix(modelID, "claude-"):
		native = "anthropic"
	case strings.HasPrefix(modelID, "gpt-"), modelID == "o1", strings.HasPrefix(modelID, "o1-"):
		native = "openai"
	default:
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.providers[native]; ok {
		return native
	}
	return "gateway"
}
