package telegram

import (
	"context"
	"net/url"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/store"
	"github.com/mediavault/mediavault/internal/testutil"
)

// fakeIndexer records Start and Cancel calls.
type fakeIndexer struct {
	mu        sync.Mutex
	started   []ingest.Options
	sinks     []ingest.ProgressSink
	startErr  error
	cancelled int
	active    bool
}

func (f *fakeIndexer) Start(_ context.Context, opts ingest.Options, sink ingest.ProgressSink, _ func(*ingest.Result)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, opts)
	f.sinks = append(f.sinks, sink)
	return "job-1", nil
}

func (f *fakeIndexer) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return f.active
}

func newTestListener(t *testing.T, admins []int64) (*Listener, *fakeIndexer, *fakeAPI) {
	t.Helper()
	bot, api := newFakeBot(t, map[string]func(url.Values) string{
		"sendMessage": func(url.Values) string {
			return ok(`{"message_id":300,"date":0,"chat":{"id":10,"type":"private"}}`)
		},
	})
	st := testutil.NewTestStore(t)
	testutil.MustNoErr(t, st.SetIngestFloor(context.Background(), "-1001234", 40), "SetIngestFloor")
	idx := &fakeIndexer{}
	return NewListener(bot, idx, st, admins), idx, api
}

func linkMessage(from int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 5,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: 10, Type: "private"},
		Text:      text,
	}}
}

func TestListener_StartsIndexFromLink(t *testing.T) {
	l, idx, api := newTestListener(t, []int64{1})

	l.HandleUpdate(context.Background(), linkMessage(1, "https://t.me/c/1234/120"))

	if len(idx.started) != 1 {
		t.Fatalf("started %d runs, want 1", len(idx.started))
	}
	want := ingest.Options{Chat: "-1001234", Last: 120, Floor: 40}
	if idx.started[0] != want {
		t.Errorf("options = %+v, want %+v", idx.started[0], want)
	}
	sink, ok := idx.sinks[0].(*EditSink)
	if !ok || sink.chatID != 10 || sink.messageID != 300 {
		t.Errorf("sink = %#v, want EditSink on the status message", idx.sinks[0])
	}

	sent := api.callsTo("sendMessage")
	if len(sent) != 1 {
		t.Fatalf("sendMessage called %d times, want 1", len(sent))
	}
	testutil.AssertContainsAll(t, sent[0].Form.Get("text"), "-1001234", "41", "120")
}

func TestListener_IgnoresStrangersAndChatter(t *testing.T) {
	l, idx, api := newTestListener(t, []int64{1})

	l.HandleUpdate(context.Background(), linkMessage(2, "https://t.me/c/1234/120"))
	l.HandleUpdate(context.Background(), linkMessage(1, "hello"))

	if len(idx.started) != 0 {
		t.Errorf("started %d runs, want 0", len(idx.started))
	}
	if n := len(api.callsTo("sendMessage")); n != 0 {
		t.Errorf("sent %d messages, want 0", n)
	}
}

func TestListener_RejectsLinkBelowFloor(t *testing.T) {
	l, idx, api := newTestListener(t, nil)

	l.HandleUpdate(context.Background(), linkMessage(9, "https://t.me/c/1234/30"))

	if len(idx.started) != 0 {
		t.Errorf("started %d runs, want 0", len(idx.started))
	}
	sent := api.callsTo("sendMessage")
	if len(sent) != 1 {
		t.Fatalf("sendMessage called %d times, want 1", len(sent))
	}
	testutil.AssertContainsAll(t, sent[0].Form.Get("text"), "Cannot index -1001234")
}

func TestListener_CancelCallback(t *testing.T) {
	l, idx, api := newTestListener(t, []int64{1})
	idx.active = true

	cancel := func(from int64) tgbotapi.Update {
		return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: from},
			Data: CancelCallback,
		}}
	}

	l.HandleUpdate(context.Background(), cancel(2))
	if idx.cancelled != 0 {
		t.Error("non-admin should not cancel")
	}
	l.HandleUpdate(context.Background(), cancel(1))
	if idx.cancelled != 1 {
		t.Errorf("cancelled %d times, want 1", idx.cancelled)
	}

	answers := api.callsTo("answerCallbackQuery")
	if len(answers) != 2 {
		t.Fatalf("answered %d callbacks, want 2", len(answers))
	}
	testutil.AssertContainsAll(t, answers[0].Form.Get("text"), "not allowed")
	testutil.AssertContainsAll(t, answers[1].Form.Get("text"), "Cancelling")
}

func TestListener_UsernameLinkUsesStoredFloor(t *testing.T) {
	l, idx, _ := newTestListener(t, nil)
	st := l.floors.(*store.Store)
	testutil.MustNoErr(t, st.SetIngestFloor(context.Background(), "films", 500), "SetIngestFloor")

	l.HandleUpdate(context.Background(), linkMessage(7, "https://t.me/Films/900"))

	if len(idx.started) != 1 {
		t.Fatalf("started %d runs, want 1", len(idx.started))
	}
	if want := (ingest.Options{Chat: "@films", Last: 900, Floor: 500}); idx.started[0] != want {
		t.Errorf("options = %+v, want %+v", idx.started[0], want)
	}
}

func TestListener_StoresScopeDefaultsOnFirstContact(t *testing.T) {
	l, _, _ := newTestListener(t, []int64{1})
	st := l.floors.(*store.Store)
	ctx := context.Background()
	l.WithScopeDefaults(st, store.ScopeSettings{UseCaptionFilter: true})

	// Any message creates the scope, even from a non-admin.
	l.HandleUpdate(ctx, linkMessage(99, "hello"))
	got, err := st.ResolveScope(ctx, "10", store.ScopeSettings{})
	testutil.MustNoErr(t, err, "ResolveScope")
	if !got.UseCaptionFilter {
		t.Errorf("scope 10 = %+v, want stored defaults", got)
	}

	// Settings changed later are not reset by further contact.
	testutil.MustNoErr(t, st.SetScope(ctx, "10", store.ScopeSettings{PageUnrestricted: true}), "SetScope")
	l.HandleUpdate(ctx, linkMessage(99, "hello again"))
	fresh := NewListener(l.bot, &fakeIndexer{}, st, nil).WithScopeDefaults(st, store.ScopeSettings{UseCaptionFilter: true})
	fresh.HandleUpdate(ctx, linkMessage(99, "after restart"))

	got, err = st.ResolveScope(ctx, "10", store.ScopeSettings{})
	testutil.MustNoErr(t, err, "ResolveScope")
	if want := (store.ScopeSettings{PageUnrestricted: true}); got != want {
		t.Errorf("scope 10 = %+v, want %+v", got, want)
	}
}
