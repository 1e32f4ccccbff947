package query

import (
	"context"

	"github.com/mediavault/mediavault/internal/store"
)

// Catalog is the read side of the media catalog used by the search
// service. *store.Store implements it.
type Catalog interface {
	FindMedia(ctx context.Context, f store.Filter, limit, offset int) ([]store.MediaEntry, error)
	CountMedia(ctx context.Context, f store.Filter) (int, error)
}

// Deleter removes catalog entries by content key.
type Deleter interface {
	DeleteMedia(ctx context.Context, key string) (bool, error)
}

// ScopeResolver looks up per-scope search settings, returning def when the
// scope has none.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, scope string, def store.ScopeSettings) (store.ScopeSettings, error)
}

// Store is everything Service needs from the catalog.
type Store interface {
	Catalog
	Deleter
	ScopeResolver
}

var _ Store = (*store.Store)(nil)
