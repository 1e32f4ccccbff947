package testutil

import (
	"database/sql"
	"fmt"

	"github.com/mediavault/mediavault/internal/store"
)

// MediaBuilder provides a fluent API for constructing store.MediaEntry in tests.
type MediaBuilder struct {
	e store.MediaEntry
}

// NewMedia creates a builder for a video entry with the given key.
func NewMedia(key string) *MediaBuilder {
	return &MediaBuilder{
		e: store.MediaEntry{
			ContentKey:  key,
			AccessToken: "tok-" + key,
			DisplayName: fmt.Sprintf("File %s.mkv", key),
			SizeBytes:   1024,
			Kind:        store.KindVideo,
		},
	}
}

func (b *MediaBuilder) WithName(name string) *MediaBuilder {
	b.e.DisplayName = name
	return b
}

func (b *MediaBuilder) WithKind(kind string) *MediaBuilder {
	b.e.Kind = kind
	return b
}

func (b *MediaBuilder) WithCaption(caption string) *MediaBuilder {
	b.e.Caption = sql.NullString{String: caption, Valid: true}
	return b
}

func (b *MediaBuilder) WithMime(mime string) *MediaBuilder {
	b.e.MimeType = sql.NullString{String: mime, Valid: true}
	return b
}

func (b *MediaBuilder) WithSize(n int64) *MediaBuilder {
	b.e.SizeBytes = n
	return b
}

func (b *MediaBuilder) WithSource(chat string, messageID int64) *MediaBuilder {
	b.e.SourceChat = sql.NullString{String: chat, Valid: true}
	b.e.SourceMessageID = sql.NullInt64{Int64: messageID, Valid: true}
	return b
}

// Build returns a pointer to a copy of the built entry.
func (b *MediaBuilder) Build() *store.MediaEntry {
	e := b.e
	return &e
}
