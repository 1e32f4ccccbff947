package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/ingest"
)

// ChatRouter is a Source that dispatches each chat to the source configured
// for it, falling back to a default.
type ChatRouter struct {
	def ingest.Source

	mu     sync.RWMutex
	routes map[string]ingest.Source
}

// NewChatRouter creates a router. def may be nil, in which case unrouted
// chats fail to fetch.
func NewChatRouter(def ingest.Source) *ChatRouter {
	return &ChatRouter{def: def, routes: make(map[string]ingest.Source)}
}

// Route sends chat to src.
func (r *ChatRouter) Route(chat string, src ingest.Source) *ChatRouter {
	r.mu.Lock()
	r.routes[chatref.Canonical(chat)] = src
	r.mu.Unlock()
	return r
}

// SourceFor returns the source serving chat, or nil.
func (r *ChatRouter) SourceFor(chat string) ingest.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if src, ok := r.routes[chatref.Canonical(chat)]; ok {
		return src
	}
	return r.def
}

// Fetch implements ingest.Source.
func (r *ChatRouter) Fetch(ctx context.Context, chat string, ids []int) ([]ingest.Message, error) {
	src := r.SourceFor(chat)
	if src == nil {
		return nil, fmt.Errorf("no source configured for chat %q", chat)
	}
	return src.Fetch(ctx, chat, ids)
}

var _ ingest.Source = (*ChatRouter)(nil)
