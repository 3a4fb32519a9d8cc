package provider

import (
	"math/rand/v2"

	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/domain/chat"
)

// Registry is the set of providers holding a configured credential. It is
// built once at startup and read-only afterwards; a non-empty registry is a
// precondition for serving chat requests.
type Registry struct {
	providers []Provider
	byID      map[chat.ProviderID]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	byID := make(map[chat.ProviderID]Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}
	return &Registry{providers: providers, byID: byID}
}

// Pick selects one provider uniformly at random. No load awareness, no sticky
// routing: callers that need deterministic routing pre-filter the registry.
// Returns domain.ErrNoProvider when the registry is empty.
func (r *Registry) Pick() (Provider, error) {
	if len(r.providers) == 0 {
		return nil, domain.ErrNoProvider
	}
	return r.providers[rand.IntN(len(r.providers))], nil
}

// Get returns the provider with the given id, or nil.
func (r *Registry) Get(id chat.ProviderID) Provider {
	return r.byID[id]
}

// IDs lists the configured provider ids in registration order.
func (r *Registry) IDs() []chat.ProviderID {
	ids := make([]chat.ProviderID, 0, len(r.providers))
	for _, p := range r.providers {
		ids = append(ids, p.ID())
	}
	return ids
}

// Empty reports whether no provider is configured.
func (r *Registry) Empty() bool { return len(r.providers) == 0 }
