package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/mediavault/mediavault/internal/testutil"
)

func TestOptionsFor(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	opts, err := OptionsFor(ctx, st, "-1001", 500)
	testutil.MustNoErr(t, err, "OptionsFor without floor")
	if opts != (Options{Chat: "-1001", Last: 500}) {
		t.Errorf("opts = %+v", opts)
	}

	testutil.MustNoErr(t, st.SetIngestFloor(ctx, "-1001", 200), "SetIngestFloor")
	opts, err = OptionsFor(ctx, st, "-1001", 500)
	testutil.MustNoErr(t, err, "OptionsFor with floor")
	if opts.Floor != 200 {
		t.Errorf("floor = %d, want 200", opts.Floor)
	}

	if _, err := OptionsFor(ctx, st, "-1001", 200); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("OptionsFor at floor: err = %v, want ErrInvalidRange", err)
	}
}

func TestOptionsFor_CanonicalChat(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.MustNoErr(t, st.SetIngestFloor(ctx, "@films", 500), "SetIngestFloor")
	for _, chat := range []string{"films", "@Films", "FILMS"} {
		opts, err := OptionsFor(ctx, st, chat, 900)
		testutil.MustNoErr(t, err, "OptionsFor "+chat)
		if want := (Options{Chat: "@films", Last: 900, Floor: 500}); opts != want {
			t.Errorf("OptionsFor(%q) = %+v, want %+v", chat, opts, want)
		}
	}

	if _, err := OptionsFor(ctx, st, "  ", 900); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("OptionsFor blank chat: err = %v, want ErrInvalidRange", err)
	}
}

func TestAdvanceFloor(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, res := range []*Result{
		nil,
		{Snapshot: Snapshot{Chat: "c", Status: StatusCancelled, Cursor: 40}},
		{Snapshot: Snapshot{Chat: "c", Status: StatusFailed, Cursor: 40}},
	} {
		testutil.MustNoErr(t, AdvanceFloor(ctx, st, res), "AdvanceFloor")
	}
	floor, err := st.IngestFloor(ctx, "c")
	testutil.MustNoErr(t, err, "IngestFloor")
	if floor != 0 {
		t.Fatalf("floor moved to %d by an unfinished run", floor)
	}

	res := &Result{Snapshot: Snapshot{Chat: "c", Status: StatusCompleted, Floor: 10, Cursor: 90}}
	testutil.MustNoErr(t, AdvanceFloor(ctx, st, res), "AdvanceFloor completed")
	floor, err = st.IngestFloor(ctx, "c")
	testutil.MustNoErr(t, err, "IngestFloor")
	if floor != 90 {
		t.Errorf("floor = %d, want 90", floor)
	}
}
