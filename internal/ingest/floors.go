package ingest

import (
	"context"
	"fmt"

	"github.com/mediavault/mediavault/internal/chatref"
)

// FloorStore persists the resume floor of each source chat.
type FloorStore interface {
	IngestFloor(ctx context.Context, chat string) (int, error)
	SetIngestFloor(ctx context.Context, chat string, floor int) error
}

// OptionsFor builds run options for chat up to last, starting above the
// chat's stored floor. The returned Chat is in canonical form.
func OptionsFor(ctx context.Context, floors FloorStore, chat string, last int) (Options, error) {
	key := chatref.Canonical(chat)
	if key == "" {
		return Options{}, fmt.Errorf("%w: invalid chat %q", ErrInvalidRange, chat)
	}
	floor, err := floors.IngestFloor(ctx, key)
	if err != nil {
		return Options{}, err
	}
	if floor >= last {
		return Options{}, fmt.Errorf("%w: floor %d is not below last message %d", ErrInvalidRange, floor, last)
	}
	return Options{Chat: key, Last: last, Floor: floor}, nil
}

// AdvanceFloor stores the cursor of a completed run as the chat's floor so
// the next run starts after it. Other outcomes leave the floor unchanged.
func AdvanceFloor(ctx context.Context, floors FloorStore, res *Result) error {
	if res == nil || res.Status != StatusCompleted || res.Cursor <= res.Floor {
		return nil
	}
	return floors.SetIngestFloor(ctx, res.Chat, res.Cursor)
}
