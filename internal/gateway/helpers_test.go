package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/internal/reply"
	"github.com/flemzord/tgecho/internal/telegram"
)

const (
	testToken  = "123456:TEST-token"
	testSecret = "s3cret-token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sentMessage is the sendMessage body as seen by the fake Bot API.
type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// fakeBotAPI records sendMessage calls. It answers with status, and waits
// on release before answering when release is non-nil.
type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []sentMessage
	status  int
	release chan struct{}
	server  *httptest.Server
}

func newFakeBotAPI(t *testing.T, status int, release chan struct{}) *fakeBotAPI {
	t.Helper()
	api := &fakeBotAPI{status: status, release: release}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		var msg sentMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode sendMessage body: %v", err)
		}
		api.mu.Lock()
		api.calls = append(api.calls, msg)
		api.mu.Unlock()

		if api.release != nil {
			<-api.release
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(api.status)
		if api.status == http.StatusOK {
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":0},"date":0}}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":false,"error_code":500,"description":"Internal Server Error"}`)
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeBotAPI) Calls() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.calls...)
}

// harness wires a real client, dispatcher, receiver and gateway against a
// fake Bot API.
type harness struct {
	api     *fakeBotAPI
	server  *httptest.Server
	metrics *metrics.Metrics
	results chan reply.Result
}

func newHarness(t *testing.T, apiStatus int, release chan struct{}) *harness {
	t.Helper()

	api := newFakeBotAPI(t, apiStatus, release)
	m := metrics.NewForTest()
	results := make(chan reply.Result, 16)

	d, err := reply.NewDispatcher(reply.Config{
		Sender:      telegram.NewClient(testToken, api.server.URL),
		SendTimeout: 5 * time.Second,
		Logger:      discardLogger(),
		Metrics:     m,
		OnResult:    func(r reply.Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	d.Start(t.Context())
	t.Cleanup(func() {
		if release != nil {
			select {
			case <-release:
			default:
				close(release)
			}
		}
		_ = d.Stop(t.Context())
	})

	g := New(Config{Mode: "webhook"}, Options{
		Receiver: telegram.NewWebhookReceiver(d.Submit, discardLogger(), testSecret),
		Metrics:  m,
		Logger:   discardLogger(),
	})
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	return &harness{api: api, server: srv, metrics: m, results: results}
}

// post sends body to the webhook route. An empty secret omits the header.
func (h *harness) post(t *testing.T, secret, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, h.server.URL+"/webhook", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(telegram.SecretTokenHeader, secret)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp
}

func (h *harness) waitResult(t *testing.T) reply.Result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a delivery result")
		return reply.Result{}
	}
}
