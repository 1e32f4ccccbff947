package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// apiCall is one recorded Bot API request.
type apiCall struct {
	Method string
	Form   url.Values
}

// fakeAPI serves the Bot API methods a test registers. getMe is always
// answered.
type fakeAPI struct {
	mu       sync.Mutex
	calls    []apiCall
	handlers map[string]func(form url.Values) string
}

func ok(result string) string {
	return fmt.Sprintf(`{"ok":true,"result":%s}`, result)
}

func apiError(code int, description string, retryAfter int) string {
	if retryAfter > 0 {
		return fmt.Sprintf(`{"ok":false,"error_code":%d,"description":%q,"parameters":{"retry_after":%d}}`,
			code, description, retryAfter)
	}
	return fmt.Sprintf(`{"ok":false,"error_code":%d,"description":%q}`, code, description)
}

func messageJSON(t *testing.T, m tgbotapi.Message) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return string(data)
}

// newFakeBot starts a fake API server and returns a bot connected to it.
func newFakeBot(t *testing.T, handlers map[string]func(form url.Values) string) (*tgbotapi.BotAPI, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handlers: handlers}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)

	bot, err := NewBot("TOKEN", srv.URL+"/bot%s/%s", srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return bot, api
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	if method == "getMe" {
		fmt.Fprint(w, ok(`{"id":42,"is_bot":true,"first_name":"Vault","username":"vault_bot"}`))
		return
	}

	a.mu.Lock()
	a.calls = append(a.calls, apiCall{Method: method, Form: r.PostForm})
	h := a.handlers[method]
	a.mu.Unlock()

	if h == nil {
		fmt.Fprint(w, ok("true"))
		return
	}
	fmt.Fprint(w, h(r.PostForm))
}

// callsTo returns the recorded requests for method.
func (a *fakeAPI) callsTo(method string) []apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []apiCall
	for _, c := range a.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
