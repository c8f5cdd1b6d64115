package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/internal/reply"
	"github.com/flemzord/tgecho/internal/telegram"
	"github.com/flemzord/tgecho/pkg/message"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const helloUpdate = `{"update_id":1,"message":{"message_id":7,"chat":{"id":42,"type":"private"},"date":1,"text":"hi"}}`

func TestWebhook_RejectsBadSecret(t *testing.T) {
	t.Parallel()

	h := newHarness(t, http.StatusOK, nil)

	for _, secret := range []string{"", "wrong-secret"} {
		resp := h.post(t, secret, helloUpdate)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want %d", secret, resp.StatusCode, http.StatusUnauthorized)
		}
	}

	// A garbage body is never parsed when the secret is wrong.
	resp := h.post(t, "wrong-secret", "{not json")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	if got := h.metrics.UpdateCount(metrics.SourceWebhook, metrics.ResultUnauthorized); got != 3 {
		t.Errorf("unauthorized count = %v, want 3", got)
	}
	if got := h.metrics.UpdateCount(metrics.SourceWebhook, metrics.ResultMalformed); got != 0 {
		t.Errorf("malformed count = %v, want 0", got)
	}

	// Give a stray delivery the chance to show up before asserting.
	time.Sleep(50 * time.Millisecond)
	if calls := h.api.Calls(); len(calls) != 0 {
		t.Errorf("Bot API received %d calls, want 0", len(calls))
	}
}

func TestWebhook_EchoesText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, http.StatusOK, nil)

	resp := h.post(t, testSecret, helloUpdate)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	res := h.waitResult(t)
	if res.Err != nil {
		t.Fatalf("delivery error: %v", res.Err)
	}

	calls := h.api.Calls()
	if len(calls) != 1 {
		t.Fatalf("Bot API received %d calls, want 1", len(calls))
	}
	want := sentMessage{ChatID: 42, Text: "You said: hi"}
	if calls[0] != want {
		t.Errorf("sendMessage = %+v, want %+v", calls[0], want)
	}
	if got := h.metrics.UpdateCount(metrics.SourceWebhook, metrics.ResultAccepted); got != 1 {
		t.Errorf("accepted count = %v, want 1", got)
	}
	if got := h.metrics.ReplyCount(metrics.ReplySent); got != 1 {
		t.Errorf("sent count = %v, want 1", got)
	}
}

func TestWebhook_StartGreeting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, http.StatusOK, nil)

	for _, text := range []string{"/start", "/start@echo_bot", "/START payload"} {
		body := fmt.Sprintf(`{"update_id":2,"message":{"chat":{"id":5},"text":%q}}`, text)
		if resp := h.post(t, testSecret, body); resp.StatusCode != http.StatusOK {
			t.Fatalf("%q: status = %d, want 200", text, resp.StatusCode)
		}
		h.waitResult(t)
	}

	for _, call := range h.api.Calls() {
		if call.Text != reply.Greeting || call.ChatID != 5 {
			t.Errorf("sendMessage = %+v, want greeting to chat 5", call)
		}
	}
}

func TestWebhook_AcknowledgesWithoutReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t, http.StatusOK, nil)

	tests := []struct {
		name   string
		body   string
		result string
	}{
		{"no text", `{"update_id":3,"message":{"chat":{"id":42},"sticker":{}}}`, metrics.ResultEmpty},
		{"empty text", `{"update_id":4,"message":{"chat":{"id":42},"text":""}}`, metrics.ResultEmpty},
		{"no chat", `{"update_id":5,"message":{"text":"hi"}}`, metrics.ResultEmpty},
		{"invalid json", `{"update_id":`, metrics.ResultMalformed},
		{"not an object", `[1,2,3]`, metrics.ResultMalformed},
		{"edited message", `{"update_id":6,"edited_message":{"chat":{"id":42},"text":"hi"}}`, metrics.ResultMalformed},
	}
	for _, tt := range tests {
		resp := h.post(t, testSecret, tt.body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", tt.name, resp.StatusCode)
		}
	}

	if got := h.metrics.UpdateCount(metrics.SourceWebhook, metrics.ResultEmpty); got != 3 {
		t.Errorf("empty count = %v, want 3", got)
	}
	if got := h.metrics.UpdateCount(metrics.SourceWebhook, metrics.ResultMalformed); got != 3 {
		t.Errorf("malformed count = %v, want 3", got)
	}

	// Nothing above was enqueued, so after one real delivery the Bot API
	// has seen exactly that one call.
	h.post(t, testSecret, helloUpdate)
	h.waitResult(t)
	if calls := h.api.Calls(); len(calls) != 1 {
		t.Errorf("Bot API received %d calls, want 1", len(calls))
	}
}

func TestWebhook_OversizedBody(t *testing.T) {
	t.Parallel()

	m := metrics.NewForTest()
	var submitted int
	g := New(Config{MaxBodyBytes: 64}, Options{
		Receiver: telegram.NewWebhookReceiver(func(context.Context, message.Update) error {
			submitted++
			return nil
		}, discardLogger(), testSecret),
		Metrics: m,
		Logger:  discardLogger(),
	})

	body := `{"update_id":7,"message":{"chat":{"id":42},"text":"` + strings.Repeat("a", 128) + `"}}`
	rr := newRecorder()
	g.Handler().ServeHTTP(rr, newWebhookRequest(body))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if submitted != 0 {
		t.Errorf("submitted %d updates, want 0", submitted)
	}
	if got := m.UpdateCount(metrics.SourceWebhook, metrics.ResultMalformed); got != 1 {
		t.Errorf("malformed count = %v, want 1", got)
	}
}

func TestWebhook_SendFailureStillAcknowledged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, http.StatusInternalServerError, nil)

	resp := h.post(t, testSecret, helloUpdate)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	res := h.waitResult(t)
	if res.Err == nil {
		t.Fatal("delivery error = nil, want Bot API failure")
	}
	if got := h.metrics.ReplyCount(metrics.ReplyFailed); got != 1 {
		t.Errorf("failed count = %v, want 1", got)
	}
	if got := len(h.api.Calls()); got != 1 {
		t.Errorf("Bot API received %d calls, want exactly 1 (no retry)", got)
	}
}

func TestWebhook_ReplayDeliversTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, http.StatusOK, nil)

	h.post(t, testSecret, helloUpdate)
	h.post(t, testSecret, helloUpdate)
	h.waitResult(t)
	h.waitResult(t)

	if got := len(h.api.Calls()); got != 2 {
		t.Errorf("Bot API received %d calls, want 2", got)
	}
}

func TestWebhook_RespondsBeforeSendCompletes(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	h := newHarness(t, http.StatusOK, release)

	done := make(chan int, 1)
	go func() {
		done <- h.post(t, testSecret, helloUpdate).StatusCode
	}()

	select {
	case status := <-done:
		if status != http.StatusOK {
			t.Errorf("status = %d, want 200", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook response waited for the outbound send")
	}

	close(release)
	if res := h.waitResult(t); res.Err != nil {
		t.Errorf("delivery error: %v", res.Err)
	}
}

func TestWebhook_DroppedWhenInboxFull(t *testing.T) {
	t.Parallel()

	m := metrics.NewForTest()
	sender := telegram.NewClient(testToken, "http://127.0.0.1:0")
	d, err := reply.NewDispatcher(reply.Config{Sender: sender, InboxSize: 1, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	// Not started: the first update fills the inbox, the second is dropped.

	g := New(Config{}, Options{
		Receiver: telegram.NewWebhookReceiver(d.Submit, discardLogger(), testSecret),
		Metrics:  m,
		Logger:   discardLogger(),
	})

	for range 2 {
		req := newWebhookRequest(helloUpdate)
		rr := newRecorder()
		g.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	}

	if got := m.UpdateCount(metrics.SourceWebhook, metrics.ResultAccepted); got != 1 {
		t.Errorf("accepted count = %v, want 1", got)
	}
	if got := m.UpdateCount(metrics.SourceWebhook, metrics.ResultDropped); got != 1 {
		t.Errorf("dropped count = %v, want 1", got)
	}
}

func TestWebhook_Span(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	var got []message.Update
	g := New(Config{}, Options{
		Receiver: telegram.NewWebhookReceiver(func(_ context.Context, u message.Update) error {
			got = append(got, u)
			return nil
		}, discardLogger(), testSecret),
		Tracer: tp.Tracer("test"),
		Logger: discardLogger(),
	})

	rr := newRecorder()
	g.Handler().ServeHTTP(rr, newWebhookRequest(helloUpdate))

	bad := newWebhookRequest(helloUpdate)
	bad.Header.Del(telegram.SecretTokenHeader)
	g.Handler().ServeHTTP(newRecorder(), bad)

	if len(got) != 1 || got[0].ChatID != 42 {
		t.Errorf("inbox received %+v, want one update for chat 42", got)
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "webhook.receive" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("unauthorized span status = %v, want Error", spans[1].Status().Code)
	}
}
