package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mediavault/mediavault/internal/chatref"
)

// ScopeSettings are the search preferences of one scope (a chat).
type ScopeSettings struct {
	PageUnrestricted bool // Use the fixed default page size instead of the configured maximum
	UseCaptionFilter bool // Also match the query against captions
}

// ResolveScope returns the stored settings for scope, or def when the
// scope has none. It never writes.
func (s *Store) ResolveScope(ctx context.Context, scope string, def ScopeSettings) (ScopeSettings, error) {
	var out ScopeSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT page_unrestricted, use_caption_filter
		FROM scope_settings WHERE scope = ?
	`, scope).Scan(&out.PageUnrestricted, &out.UseCaptionFilter)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("resolve scope %q: %w", scope, err)
	}
	return out, nil
}

// EnsureScopeDefault stores def for scope unless the scope already has
// settings. Calling it repeatedly is harmless.
func (s *Store) EnsureScopeDefault(ctx context.Context, scope string, def ScopeSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO scope_settings (scope, page_unrestricted, use_caption_filter)
		VALUES (?, ?, ?)
	`, scope, def.PageUnrestricted, def.UseCaptionFilter)
	if err != nil {
		return fmt.Errorf("ensure scope default %q: %w", scope, err)
	}
	return nil
}

// SetScope stores settings for scope, replacing any existing row.
func (s *Store) SetScope(ctx context.Context, scope string, settings ScopeSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scope_settings (scope, page_unrestricted, use_caption_filter, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope) DO UPDATE SET
			page_unrestricted = excluded.page_unrestricted,
			use_caption_filter = excluded.use_caption_filter,
			updated_at = CURRENT_TIMESTAMP
	`, scope, settings.PageUnrestricted, settings.UseCaptionFilter)
	if err != nil {
		return fmt.Errorf("set scope %q: %w", scope, err)
	}
	return nil
}

// IngestFloor returns the resume floor for chat; 0 when none is set.
// Floors are keyed by chatref.Canonical, so every spelling of a chat
// shares one floor.
func (s *Store) IngestFloor(ctx context.Context, chat string) (int, error) {
	key := chatref.Canonical(chat)
	if key == "" {
		return 0, fmt.Errorf("get ingest floor: invalid chat %q", chat)
	}
	var floor int
	err := s.db.QueryRowContext(ctx, `SELECT floor FROM ingest_floors WHERE chat = ?`, key).Scan(&floor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get ingest floor %q: %w", chat, err)
	}
	return floor, nil
}

// SetIngestFloor records the resume floor for chat.
func (s *Store) SetIngestFloor(ctx context.Context, chat string, floor int) error {
	if floor < 0 {
		return fmt.Errorf("ingest floor must be non-negative, got %d", floor)
	}
	key := chatref.Canonical(chat)
	if key == "" {
		return fmt.Errorf("set ingest floor: invalid chat %q", chat)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_floors (chat, floor, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat) DO UPDATE SET floor = excluded.floor, updated_at = CURRENT_TIMESTAMP
	`, key, floor)
	if err != nil {
		return fmt.Errorf("set ingest floor %q: %w", chat, err)
	}
	return nil
}
