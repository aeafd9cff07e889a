package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-callbridge/internal/log"
	"github.com/teslashibe/go-callbridge/pkg/session"
)

type said struct {
	CallID string
	Text   string
}

type fakeReplier struct {
	mu   sync.Mutex
	err  error
	said []said
}

func (f *fakeReplier) Say(_ context.Context, callID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, said{callID, text})
	return f.err
}

func (f *fakeReplier) all() []said {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]said(nil), f.said...)
}

func TestEcho(t *testing.T) {
	r := &fakeReplier{}
	e := NewEcho(log.Discard())

	e.HandleUtterance(context.Background(), "CA123", "Hi!", r)
	e.HandleUtterance(context.Background(), "CA123", "", r)

	got := r.all()
	if len(got) != 1 || got[0] != (said{"CA123", "Hi!"}) {
		t.Errorf("unexpected replies %+v", got)
	}
}

func TestEchoClosedCall(t *testing.T) {
	r := &fakeReplier{err: session.ErrSessionClosed}
	NewEcho(log.Discard()).HandleUtterance(context.Background(), "CA123", "late", r)
	if len(r.all()) != 1 {
		t.Error("expected one attempt")
	}
}

// chatServer answers every request with "reply N" and records the messages
// it was sent.
func chatServer(t *testing.T) (*httptest.Server, *[][]Message) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen [][]Message
		n    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected Bearer test-key, got %s", auth)
		}

		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		mu.Lock()
		seen = append(seen, req.Messages)
		n++
		reply := fmt.Sprintf("reply %d", n)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"x","model":%q,"choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"total_tokens":7}}`, req.Model, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestChatReply(t *testing.T) {
	srv, seen := chatServer(t)
	c, err := NewChat(
		WithBaseURL(srv.URL+"/"),
		WithAPIKey("test-key"),
		WithSystemPrompt("be brief"),
		WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewChat: %v", err)
	}

	r := &fakeReplier{}
	c.HandleUtterance(context.Background(), "CA123", "hello", r)
	c.HandleUtterance(context.Background(), "CA123", "and again", r)

	got := r.all()
	if len(got) != 2 || got[0].Text != "reply 1" || got[1].Text != "reply 2" {
		t.Fatalf("unexpected replies %+v", got)
	}

	second := (*seen)[1]
	want := []Message{
		{RoleSystem, "be brief"},
		{RoleUser, "hello"},
		{RoleAssistant, "reply 1"},
		{RoleUser, "and again"},
	}
	if len(second) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), second)
	}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], second[i])
		}
	}
}

func TestChatHistory(t *testing.T) {
	srv, _ := chatServer(t)
	c, _ := NewChat(
		WithBaseURL(srv.URL),
		WithAPIKey("test-key"),
		WithMaxHistory(2),
		WithLogger(log.Discard()),
	)
	ctx := context.Background()

	t.Run("bounded", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := c.Reply(ctx, "CA1", fmt.Sprintf("q%d", i)); err != nil {
				t.Fatalf("Reply: %v", err)
			}
		}
		h := c.History("CA1")
		if len(h) != 2 || h[0].Content != "q2" {
			t.Errorf("expected last exchange only, got %+v", h)
		}
	})

	t.Run("per call", func(t *testing.T) {
		if _, err := c.Reply(ctx, "CA2", "other"); err != nil {
			t.Fatalf("Reply: %v", err)
		}
		if h := c.History("CA2"); len(h) != 2 || h[0].Content != "other" {
			t.Errorf("unexpected CA2 history %+v", h)
		}
	})

	t.Run("end call drops", func(t *testing.T) {
		c.EndCall("CA1")
		if h := c.History("CA1"); len(h) != 0 {
			t.Errorf("expected empty history, got %+v", h)
		}
		if c.history.len() != 1 {
			t.Errorf("expected 1 remembered call, got %d", c.history.len())
		}
	})
}

func TestChatErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
		}))
		defer srv.Close()

		c, _ := NewChat(WithBaseURL(srv.URL), WithLogger(log.Discard()))
		_, err := c.Reply(context.Background(), "CA1", "hi")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.StatusCode != 401 || apiErr.Code != "invalid_api_key" || apiErr.IsRetryable() {
			t.Errorf("unexpected error %+v", apiErr)
		}
		if len(c.History("CA1")) != 0 {
			t.Error("failed exchange must not be remembered")
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		}))
		defer srv.Close()

		c, _ := NewChat(WithBaseURL(srv.URL), WithRetry(2, time.Millisecond), WithLogger(log.Discard()))
		reply, err := c.Reply(context.Background(), "CA1", "hi")
		if err != nil || reply != "ok" {
			t.Fatalf("expected ok, got %q, %v", reply, err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		c, _ := NewChat(WithBaseURL(srv.URL), WithLogger(log.Discard()))
		r := &fakeReplier{}
		c.HandleUtterance(context.Background(), "CA1", "hi", r)
		if len(r.all()) != 0 {
			t.Error("expected no reply")
		}
		if _, err := c.Reply(context.Background(), "CA1", "hi"); !errors.Is(err, ErrEmptyReply) {
			t.Errorf("expected ErrEmptyReply, got %v", err)
		}
	})
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), WithLogger(log.Discard()))
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestGeminiReply(t *testing.T) {
	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello there."}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(),
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithModel("gemini-test"),
		WithSystemPrompt("be brief"),
		WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}

	r := &fakeReplier{}
	g.HandleUtterance(context.Background(), "CA123", "hi", r)

	got := r.all()
	if len(got) != 1 || got[0].Text != "Hello there." {
		t.Fatalf("unexpected replies %+v", got)
	}

	mu.Lock()
	_, hasSystem := body["systemInstruction"]
	mu.Unlock()
	if !hasSystem {
		t.Error("expected systemInstruction in request")
	}

	g.EndCall("CA123")
	if g.history.len() != 0 {
		t.Error("expected history dropped")
	}
}
