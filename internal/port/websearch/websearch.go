// Package websearch defines the search engine port and the engine selection
// policy: a ranked (paid) engine is preferred when configured, with a keyless
// engine as fallback.
package websearch

import (
	"context"

	"github.com/flap-ai/flapd/internal/domain/search"
)

// Engine is one external web-search backend.
type Engine interface {
	Name() string
	// Search returns at most max results for the query.
	Search(ctx context.Context, query string, max int) ([]search.Result, error)
}

// Engines holds the configured search backends. Either slot may be nil.
type Engines struct {
	// Ranked is the paid engine with relevance-ranked results.
	Ranked Engine
	// Keyless is the free engine requiring no credential.
	Keyless Engine
}

// Pick returns the preferred engine: ranked when configured, else keyless.
// ok is false when no engine is available at all.
func (e Engines) Pick() (Engine, bool) {
	switch {
	case e.Ranked != nil:
		return e.Ranked, true
	case e.Keyless != nil:
		return e.Keyless, true
	}
	return nil, false
}
