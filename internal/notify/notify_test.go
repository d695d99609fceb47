package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btnalit/routeros-aiops/internal/models"
)

type stubSender struct {
	err  error
	sent []Message
}

func (s *stubSender) Send(ctx context.Context, msg Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestHubRoutesByChannel(t *testing.T) {
	hub := NewHub()
	a := &stubSender{}
	b := &stubSender{}
	hub.Register("a", a)
	hub.Register("b", b)

	if err := hub.Send(context.Background(), []string{"a"}, Message{Type: "alert", Title: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 0 {
		t.Errorf("a=%d b=%d, want 1/0", len(a.sent), len(b.sent))
	}

	// Empty channel list broadcasts.
	if err := hub.Send(context.Background(), nil, Message{Type: "alert"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(a.sent) != 2 || len(b.sent) != 1 {
		t.Errorf("after broadcast a=%d b=%d, want 2/1", len(a.sent), len(b.sent))
	}
}

func TestHubDefaultPriority(t *testing.T) {
	hub := NewHub()
	s := &stubSender{}
	hub.Register("log", s)

	hub.Send(context.Background(), nil, Message{Type: "alert"})
	if s.sent[0].Priority != PriorityNormal {
		t.Errorf("priority = %q, want normal default", s.sent[0].Priority)
	}
}

func TestHubPartialFailure(t *testing.T) {
	hub := NewHub()
	hub.Register("good", &stubSender{})
	hub.Register("bad", &stubSender{err: errors.New("boom")})

	err := hub.Send(context.Background(), nil, Message{Type: "alert"})
	if models.KindOf(err) != models.KindDependency {
		t.Errorf("kind = %v, want dependency", models.KindOf(err))
	}
}

func TestWebhookRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, time.Second)
	wh.backoff = time.Millisecond

	if err := wh.Send(context.Background(), Message{Type: "alert", Title: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestWebhookGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, time.Second)
	wh.backoff = time.Millisecond

	err := wh.Send(context.Background(), Message{Type: "alert"})
	if models.KindOf(err) != models.KindDependency {
		t.Errorf("kind = %v, want dependency", models.KindOf(err))
	}
}

func TestWebhookHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL, time.Second)
	wh.backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- wh.Send(ctx, Message{Type: "alert"}) }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after cancel")
	}
}
