package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/pkg/message"
)

func TestPollerReceivesUpdates(t *testing.T) {
	var callCount atomic.Int32
	var offsets []int
	var offMu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GetUpdatesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		offMu.Lock()
		offsets = append(offsets, req.Offset)
		offMu.Unlock()

		n := callCount.Add(1)
		if n == 1 {
			writeJSON(t, w, APIResponse[[]Update]{
				OK: true,
				Result: []Update{
					{UpdateID: 1, Message: &Message{MessageID: 10, Chat: Chat{ID: 200}, Text: "hello"}},
					{UpdateID: 2, Message: &Message{MessageID: 11, Chat: Chat{ID: 200}}},
					{UpdateID: 3},
				},
			})
			return
		}
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var received []message.Update
	m := metrics.NewForTest()

	poller := NewPoller(NewClient("TOKEN", srv.URL), func(_ context.Context, u message.Update) error {
		mu.Lock()
		received = append(received, u)
		mu.Unlock()
		return nil
	}, discardLogger(), m, PollerConfig{AllowedUpdates: []string{"message"}})

	poller.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	poller.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d updates, want 1", len(received))
	}
	if received[0].ChatID != 200 || received[0].Text != "hello" {
		t.Errorf("update = %+v", received[0])
	}

	offMu.Lock()
	defer offMu.Unlock()
	if len(offsets) < 2 || offsets[1] != 4 {
		t.Errorf("offsets = %v, want second poll at offset 4", offsets)
	}

	if got := m.UpdateCount(metrics.SourcePolling, metrics.ResultAccepted); got != 1 {
		t.Errorf("accepted = %v, want 1", got)
	}
	if got := m.UpdateCount(metrics.SourcePolling, metrics.ResultEmpty); got != 1 {
		t.Errorf("empty = %v, want 1", got)
	}
	if got := m.UpdateCount(metrics.SourcePolling, metrics.ResultMalformed); got != 1 {
		t.Errorf("malformed = %v, want 1", got)
	}
}

func TestPollerCircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(t, w, APIResponse[json.RawMessage]{
			OK:          false,
			ErrorCode:   500,
			Description: "Internal Server Error",
		})
	}))
	defer srv.Close()

	poller := NewPoller(NewClient("TOKEN", srv.URL), func(context.Context, message.Update) error {
		return nil
	}, discardLogger(), nil, PollerConfig{ErrorPause: time.Hour})

	poller.Start(context.Background())
	time.Sleep(300 * time.Millisecond)
	poller.Stop()

	// The breaker pauses after exactly five failures; the pause outlasts the test.
	if got := calls.Load(); got != maxConsecutivePollingErrors {
		t.Errorf("calls = %d, want %d", got, maxConsecutivePollingErrors)
	}
}

func TestPollerStopBeforeStart(t *testing.T) {
	poller := NewPoller(NewClient("TOKEN", "http://127.0.0.1:0"), nil, discardLogger(), nil, PollerConfig{})
	poller.Stop()
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	poller := NewPoller(NewClient("TOKEN", srv.URL), func(context.Context, message.Update) error { return nil }, discardLogger(), nil, PollerConfig{Timeout: 30})
	poller.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}
