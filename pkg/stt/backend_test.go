package stt_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-callbridge/pkg/stt"
)

// fakeBackend is a WebSocket transcription server. onAudio is called for
// every binary frame with its 1-based index and a func to answer with JSON.
type fakeBackend struct {
	srv *httptest.Server

	mu     sync.Mutex
	header http.Header
	query  url.Values
	frames int
	texts  []string
	pings  int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeBackend(t *testing.T, onAudio func(n int, send func(v any))) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{closed: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		defer fb.closeOnce.Do(func() { close(fb.closed) })

		fb.mu.Lock()
		fb.header = r.Header.Clone()
		fb.query = r.URL.Query()
		fb.mu.Unlock()

		conn.SetPingHandler(func(data string) error {
			fb.mu.Lock()
			fb.pings++
			fb.mu.Unlock()
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})

		send := func(v any) {
			data, _ := json.Marshal(v)
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				fb.mu.Lock()
				fb.frames++
				n := fb.frames
				fb.mu.Unlock()
				if onAudio != nil {
					onAudio(n, send)
				}
			case websocket.TextMessage:
				fb.mu.Lock()
				fb.texts = append(fb.texts, string(data))
				fb.mu.Unlock()
			}
		}
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(fb.srv.URL, "http")
}

func (fb *fakeBackend) sawText(substr string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, s := range fb.texts {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func (fb *fakeBackend) pingCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.pings
}

func (fb *fakeBackend) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-fb.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("backend connection was not closed")
	}
}

func collect(t *testing.T, ch <-chan stt.Event, n int) []stt.Event {
	t.Helper()

	var out []stt.Event
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("got %d events, want %d: %+v", len(out), n, out)
		}
	}
	return out
}

func expectNoEvent(t *testing.T, ch <-chan stt.Event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frame() []byte {
	return make([]byte, 160)
}
