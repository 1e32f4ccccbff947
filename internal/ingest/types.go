package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Media is the typed media object carried by a message.
type Media struct {
	FileID   string // Platform reference, decoded by the fileref codec
	FileName string
	FileSize int64
	MimeType string
}

// Message is one position in a source chat.
type Message struct {
	ID    int
	Empty bool // Deleted or inaccessible at the source
	// MediaKind names the media payload ("video", "photo", "sticker", ...);
	// empty when the message has none.
	MediaKind string
	Media     *Media
	Caption   string
}

// Source yields messages of a chat by position. Implementations return the
// messages they could find; requested ids that are absent from the result
// are treated as empty. A transient throttle is reported as
// *RateLimitedError.
type Source interface {
	Fetch(ctx context.Context, chat string, ids []int) ([]Message, error)
}

// ProgressSink receives counter snapshots while a run progresses. Only
// *RateLimitedError is considered ignorable; other errors are logged. No
// error from a sink aborts a run.
type ProgressSink interface {
	Notify(ctx context.Context, snap Snapshot) error
}

// NullSink is a no-op progress sink.
type NullSink struct{}

func (NullSink) Notify(context.Context, Snapshot) error { return nil }

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(ctx context.Context, snap Snapshot) error

func (f SinkFunc) Notify(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// MultiSink fans a snapshot out to several sinks. The first error is
// returned after every sink has been called.
type MultiSink []ProgressSink

func (m MultiSink) Notify(ctx context.Context, snap Snapshot) error {
	var first error
	for _, s := range m {
		if err := s.Notify(ctx, snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogSink writes progress snapshots to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(_ context.Context, snap Snapshot) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := snap.Counters
	logger.Info("index progress",
		"job", snap.JobID,
		"chat", snap.Chat,
		"status", snap.Status,
		"cursor", snap.Cursor,
		"last", snap.Last,
		"processed", snap.Processed,
		"saved", c.Saved,
		"duplicate", c.Duplicate,
		"deleted", c.Deleted,
		"non_media", c.NonMedia,
		"unsupported", c.Unsupported,
		"errors", c.Error,
	)
	return nil
}

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
