package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mediavault/mediavault/internal/search"
)

// Media kinds accepted by the catalog.
const (
	KindVideo    = "video"
	KindAudio    = "audio"
	KindDocument = "document"
)

var (
	// ErrDuplicateKey is returned by InsertMedia when the content key is
	// already catalogued.
	ErrDuplicateKey = errors.New("store: duplicate content key")
	// ErrNotFound is returned when a content key is not in the catalog.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidKind is returned for entries outside the supported kinds.
	ErrInvalidKind = errors.New("store: unsupported media kind")
)

// StoreError reports a failed catalog write. The whole operation was rolled
// back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidKind reports whether kind may be stored.
func ValidKind(kind string) bool {
	switch kind {
	case KindVideo, KindAudio, KindDocument:
		return true
	}
	return false
}

// MediaEntry is one catalogued media item.
type MediaEntry struct {
	ID              int64
	ContentKey      string
	AccessToken     string
	DisplayName     string
	SearchName      string
	SizeBytes       int64
	Kind            string
	MimeType        sql.NullString
	Caption         sql.NullString
	SourceChat      sql.NullString
	SourceMessageID sql.NullInt64
	IndexedAt       time.Time
}

// Filter selects catalog entries. Every term must appear as a whole word;
// with IncludeCaption the terms may instead all appear in the caption.
type Filter struct {
	Terms          []string
	Kind           string
	IncludeCaption bool
}

func prepareEntry(e *MediaEntry) error {
	if !ValidKind(e.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if e.ContentKey == "" {
		return fmt.Errorf("store: empty content key")
	}
	if e.SizeBytes < 0 {
		e.SizeBytes = 0
	}
	e.SearchName = search.SearchName(e.DisplayName)
	return nil
}

const insertMediaSQL = `
	INSERT %s INTO media (
		content_key, access_token, display_name, search_name, size_bytes,
		media_kind, mime_type, caption, source_chat, source_message_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func mediaArgs(e *MediaEntry) []interface{} {
	return []interface{}{
		e.ContentKey, e.AccessToken, e.DisplayName, e.SearchName, e.SizeBytes,
		e.Kind, e.MimeType, e.Caption, e.SourceChat, e.SourceMessageID,
	}
}

func (s *Store) insertFTS(tx *sql.Tx, id int64, e *MediaEntry) error {
	if !s.fts5Available {
		return nil
	}
	_, err := tx.Exec(`INSERT INTO media_fts(rowid, search_name, caption) VALUES (?, ?, ?)`,
		id, e.SearchName, e.Caption.String)
	return err
}

// InsertMedia adds a single entry. It fails with ErrDuplicateKey if the
// content key already exists; the stored entry is never overwritten.
func (s *Store) InsertMedia(ctx context.Context, entry *MediaEntry) error {
	if err := prepareEntry(entry); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(insertMediaSQL, ""), mediaArgs(entry)...)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateKey, entry.ContentKey)
			}
			return &StoreError{Op: "insert", Err: err}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return &StoreError{Op: "insert", Err: err}
		}
		entry.ID = id
		if err := s.insertFTS(tx, id, entry); err != nil {
			return &StoreError{Op: "insert fts", Err: err}
		}
		return nil
	})
}

// InsertMediaBatch inserts entries in one transaction, skipping those whose
// content key already exists. Any other failure rolls back the whole batch
// and is returned as a *StoreError.
func (s *Store) InsertMediaBatch(ctx context.Context, entries []*MediaEntry) (inserted, skipped int, err error) {
	if len(entries) == 0 {
		return 0, 0, nil
	}
	for _, e := range entries {
		if err := prepareEntry(e); err != nil {
			return 0, 0, &StoreError{Op: "insert batch", Err: err}
		}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(insertMediaSQL, "OR IGNORE"))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			res, err := stmt.ExecContext(ctx, mediaArgs(e)...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				skipped++
				continue
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			e.ID = id
			if err := s.insertFTS(tx, id, e); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, &StoreError{Op: "insert batch", Err: err}
	}
	return inserted, skipped, nil
}

// ExistingKeys returns the subset of keys already in the catalog.
func (s *Store) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(keys) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := queryInChunks(s.db, keys, nil,
		`SELECT content_key FROM media WHERE content_key IN (%s)`,
		func(rows *sql.Rows) error {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			result[key] = true
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("existing keys: %w", err)
	}
	return result, nil
}

// whereClause renders f as a WHERE clause (without the keyword) and args.
func (s *Store) whereClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(f.Terms) > 0 {
		joined := search.Join(f.Terms)
		if f.IncludeCaption {
			conds = append(conds, fmt.Sprintf(
				"(%[1]s(m.search_name, ?) OR %[1]s(COALESCE(m.caption, ''), ?))", hasWordsFunc))
			args = append(args, joined, joined)
		} else {
			conds = append(conds, hasWordsFunc+"(m.search_name, ?)")
			args = append(args, joined)
		}

		if s.fts5Available {
			column := "search_name"
			if f.IncludeCaption {
				column = ""
			}
			if expr := ftsMatchExpr(f.Terms, column); expr != "" {
				conds = append(conds, "m.id IN (SELECT rowid FROM media_fts WHERE media_fts MATCH ?)")
				args = append(args, expr)
			}
		}
	}

	if f.Kind != "" {
		conds = append(conds, "m.media_kind = ?")
		args = append(args, f.Kind)
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

const mediaColumns = `
	m.id, m.content_key, m.access_token, m.display_name, m.search_name,
	m.size_bytes, m.media_kind, m.mime_type, m.caption, m.source_chat,
	m.source_message_id, m.indexed_at`

func scanMedia(sc interface{ Scan(...interface{}) error }) (MediaEntry, error) {
	var e MediaEntry
	err := sc.Scan(&e.ID, &e.ContentKey, &e.AccessToken, &e.DisplayName, &e.SearchName,
		&e.SizeBytes, &e.Kind, &e.MimeType, &e.Caption, &e.SourceChat,
		&e.SourceMessageID, &e.IndexedAt)
	return e, err
}

// FindMedia returns entries matching f, newest first. A limit <= 0 means
// no limit.
func (s *Store) FindMedia(ctx context.Context, f Filter, limit, offset int) ([]MediaEntry, error) {
	where, args := s.whereClause(f)
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + mediaColumns + ` FROM media m WHERE ` + where +
		` ORDER BY m.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find media: %w", err)
	}
	defer rows.Close()

	var entries []MediaEntry
	for rows.Next() {
		e, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountMedia returns how many entries match f.
func (s *Store) CountMedia(ctx context.Context, f Filter) (int, error) {
	where, args := s.whereClause(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media m WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return n, nil
}

// GetMedia returns the entry with the given content key.
func (s *Store) GetMedia(ctx context.Context, key string) (*MediaEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media m WHERE m.content_key = ?`, key)
	e, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return &e, nil
}

// DeleteMedia removes the entry with the given content key. It reports
// whether an entry was removed.
func (s *Store) DeleteMedia(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM media WHERE content_key = ?`, key).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if s.fts5Available {
			if _, err := tx.ExecContext(ctx, `DELETE FROM media_fts WHERE rowid = ?`, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, &StoreError{Op: "delete", Err: err}
	}
	return deleted, nil
}

// RebuildFTS repopulates the full-text prefilter from the media table.
// No-op if FTS5 is not available.
func (s *Store) RebuildFTS(ctx context.Context) (int64, error) {
	if !s.fts5Available {
		return 0, nil
	}
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_fts`); err != nil {
			return fmt.Errorf("clear fts: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_fts(rowid, search_name, caption)
			SELECT id, search_name, COALESCE(caption, '') FROM media`)
		if err != nil {
			return fmt.Errorf("fill fts: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
