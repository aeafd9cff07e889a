package stt_test

import (
	"context"
	"testing"
	"time"

	"github.com/teslashibe/go-callbridge/pkg/stt"
)

func assemblyTurn(text string, endOfTurn bool) map[string]any {
	return map[string]any{
		"type":        "Turn",
		"transcript":  text,
		"end_of_turn": endOfTurn,
		"turn_order":  0,
	}
}

func TestAssemblyAITurns(t *testing.T) {
	fb := newFakeBackend(t, func(n int, send func(any)) {
		switch n {
		case 1:
			send(map[string]any{"type": "Begin", "id": "sess-1", "expires_at": 1767225600})
			send(assemblyTurn("hel", false))
		case 2:
			send(assemblyTurn("hello the", false))
		case 3:
			send(assemblyTurn("hello there", true))
		}
	})

	p := stt.NewAssemblyAI(stt.WithBaseURL(fb.url()), stt.WithKeepAlive(10*time.Millisecond))
	if err := p.Connect(context.Background(), "aai-key", "CA9"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 3; i++ {
		p.ProcessAudio(frame())
	}

	events := collect(t, p.Events(), 3)
	want := []stt.Event{
		{Kind: stt.Partial, Text: "hel", SessionID: "CA9"},
		{Kind: stt.Partial, Text: "hello the", SessionID: "CA9"},
		{Kind: stt.FinalUtterance, Text: "hello there", SessionID: "CA9"},
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}

	fb.mu.Lock()
	auth := fb.header.Get("Authorization")
	enc := fb.query.Get("encoding")
	rate := fb.query.Get("sample_rate")
	fb.mu.Unlock()
	if auth != "aai-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if enc != "pcm_mulaw" || rate != "8000" {
		t.Errorf("audio profile = %s/%s", enc, rate)
	}

	waitFor(t, func() bool { return fb.pingCount() > 0 }, "keep-alive ping")

	p.Disconnect()
	fb.waitClosed(t)
	if !fb.sawText(`"Terminate"`) {
		t.Error("Terminate was not sent")
	}
	if got := p.Stats().FramesSent; got != 3 {
		t.Errorf("FramesSent = %d, want 3", got)
	}
}
