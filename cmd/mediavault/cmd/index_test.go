package cmd

import (
	"bytes"
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/fileref"
	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/telegram"
	"github.com/mediavault/mediavault/internal/testutil"
)

func videoID(n int64) string {
	return fileref.EncodeKey(fileref.Reference{Type: fileref.TypeVideo, DCID: 2, MediaID: 9000 + n, AccessHash: n})
}

// writeArchive stores a chat export with videos at ids 1 and 3, a text
// post at 2 and a duplicate of the first video at 4.
func writeArchive(t *testing.T, dir, chat string) {
	t.Helper()
	testutil.WriteJSONL(t, dir, chat+".jsonl", []tgbotapi.Message{
		{MessageID: 1, Video: &tgbotapi.Video{FileID: videoID(1), FileName: "Heat.1995.mkv", FileSize: 2048}},
		{MessageID: 2, Text: "weekly update"},
		{MessageID: 3, Video: &tgbotapi.Video{FileID: videoID(3), FileName: "Ronin.1998.mkv", FileSize: 4096}},
		{MessageID: 4, Video: &tgbotapi.Video{FileID: videoID(1), FileName: "Heat (repost).mkv"}},
	})
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name     string
		arg      string
		last     int
		wantChat string
		wantLast int
		wantErr  bool
	}{
		{"username", "films", 0, "@films", 0, false},
		{"numeric id with last", "-1001234", 50, "-1001234", 50, false},
		{"public link", "https://t.me/films/120", 0, "@films", 120, false},
		{"private link", "t.me/c/1234/7", 0, "-1001234", 7, false},
		{"link username folded", "https://t.me/Films/120", 0, "@films", 120, false},
		{"username folded", "@Films", 0, "@films", 0, false},
		{"last overrides link", "https://t.me/films/120", 80, "@films", 80, false},
		{"bad link", "https://example.com/films/1", 0, "", 0, true},
		{"negative last", "@films", -1, "", 0, true},
		{"blank", "  ", 0, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat, last, err := resolveTarget(tt.arg, tt.last)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveTarget(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if chat != tt.wantChat || last != tt.wantLast {
				t.Errorf("resolveTarget(%q) = %q, %d; want %q, %d", tt.arg, chat, last, tt.wantChat, tt.wantLast)
			}
		})
	}
}

func TestRunIndex_ArchiveAdvancesFloor(t *testing.T) {
	s := useTestConfig(t)
	ctx := context.Background()
	writeArchive(t, cfg.ArchiveDir(), "films")

	archive := telegram.NewArchiveSource(cfg.ArchiveDir())
	opts, err := ingest.OptionsFor(ctx, s, "@films", 4)
	testutil.MustNoErr(t, err, "OptionsFor")

	var out bytes.Buffer
	err = runIndex(ctx, &out, s, newPipeline(s, archive), opts, ingest.NullSink{})
	testutil.MustNoErr(t, err, "runIndex")
	testutil.AssertContainsAll(t, out.String(),
		"Indexing @films from message 1 to 4", "Index complete!", "Saved:         2", "Duplicates:    1",
		"Next run starts after message 4")

	stats, err := s.GetStats()
	testutil.MustNoErr(t, err, "GetStats")
	if stats.VideoCount != 2 {
		t.Errorf("VideoCount = %d, want 2", stats.VideoCount)
	}

	floor, err := s.IngestFloor(ctx, "@films")
	testutil.MustNoErr(t, err, "IngestFloor")
	if floor != 4 {
		t.Errorf("floor = %d, want 4", floor)
	}

	e, err := s.GetMedia(ctx, videoID(3))
	testutil.MustNoErr(t, err, "GetMedia")
	if e.SourceChat.String != "@films" || e.SourceMessageID.Int64 != 3 {
		t.Errorf("source = %s/%d, want @films/3", e.SourceChat.String, e.SourceMessageID.Int64)
	}
}

func TestRunIndex_CancelledKeepsFloor(t *testing.T) {
	s := useTestConfig(t)
	writeArchive(t, cfg.ArchiveDir(), "films")
	testutil.MustNoErr(t, s.SetIngestFloor(context.Background(), "@films", 1), "SetIngestFloor")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	archive := telegram.NewArchiveSource(cfg.ArchiveDir())
	err := runIndex(ctx, &out, s, newPipeline(s, archive), ingest.Options{Chat: "@films", Last: 4, Floor: 1}, ingest.NullSink{})
	testutil.MustNoErr(t, err, "runIndex")
	testutil.AssertContainsAll(t, out.String(), "Index interrupted")

	floor, err := s.IngestFloor(context.Background(), "@films")
	testutil.MustNoErr(t, err, "IngestFloor")
	if floor != 1 {
		t.Errorf("floor = %d after a cancelled run, want 1", floor)
	}
}

func TestRunScheduledIndex(t *testing.T) {
	s := useTestConfig(t)
	ctx := context.Background()
	writeArchive(t, cfg.ArchiveDir(), "films")
	cfg.Sources = []config.SourceSchedule{
		{Chat: "@films", Schedule: "0 * * * *", Enabled: true},
		{Chat: "@radio", Source: config.SourceBot, Schedule: "0 * * * *", Enabled: true},
	}

	archive := telegram.NewArchiveSource(cfg.ArchiveDir())
	p := newPipeline(s, archive)

	testutil.MustNoErr(t, runScheduledIndex(ctx, "@films", s, archive, p), "first run")
	floor, err := s.IngestFloor(ctx, "@films")
	testutil.MustNoErr(t, err, "IngestFloor")
	if floor != 4 {
		t.Fatalf("floor = %d, want 4", floor)
	}
	if st := p.Status(); st.Status != ingest.StatusCompleted || st.Counters.Saved != 2 {
		t.Errorf("status = %s saved = %d, want completed/2", st.Status, st.Counters.Saved)
	}

	// Nothing past the floor: no run, no error.
	testutil.MustNoErr(t, runScheduledIndex(ctx, "@films", s, archive, p), "second run")
	if st := p.Status(); st.Counters.Saved != 2 {
		t.Errorf("second run changed status: %+v", st)
	}

	if err := runScheduledIndex(ctx, "@radio", s, archive, p); err == nil {
		t.Error("bot source without last_message_id should fail")
	}
	if err := runScheduledIndex(ctx, "@unknown", s, archive, p); err == nil {
		t.Error("unconfigured source should fail")
	}
}

func TestRunScheduledIndex_HonoursSetskipFloor(t *testing.T) {
	s := useTestConfig(t)
	ctx := context.Background()
	writeArchive(t, cfg.ArchiveDir(), "films")
	cfg.Sources = []config.SourceSchedule{{Chat: "films", Schedule: "0 * * * *", Enabled: true}}

	_, err := execute(t, newSetskipCmd(), "", "setskip", "@Films", "3")
	testutil.MustNoErr(t, err, "setskip")

	archive := telegram.NewArchiveSource(cfg.ArchiveDir())
	p := newPipeline(s, archive)
	testutil.MustNoErr(t, runScheduledIndex(ctx, "FILMS", s, archive, p), "scheduled run")

	st := p.Status()
	if st.Status != ingest.StatusCompleted || st.Floor != 3 || st.Chat != "@films" {
		t.Errorf("status = %s floor = %d chat = %q, want completed from floor 3 of @films", st.Status, st.Floor, st.Chat)
	}
	if st.Counters.Saved != 1 {
		t.Errorf("saved = %d, want only message 4", st.Counters.Saved)
	}
	floor, err := s.IngestFloor(ctx, "films")
	testutil.MustNoErr(t, err, "IngestFloor")
	if floor != 4 {
		t.Errorf("floor = %d, want 4", floor)
	}
}
