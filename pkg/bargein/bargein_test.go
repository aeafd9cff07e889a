package bargein_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/teslashibe/go-callbridge/internal/log"
	"github.com/teslashibe/go-callbridge/pkg/bargein"
	"github.com/teslashibe/go-callbridge/pkg/callstate"
	"github.com/teslashibe/go-callbridge/pkg/protocol"
)

func setup(t *testing.T) (*callstate.Registry, *bargein.Controller, *protocol.Recorder) {
	t.Helper()
	reg := callstate.New(callstate.WithLogger(log.Discard()))
	rec := protocol.NewRecorder()
	reg.Update("CA123", func(s *callstate.Session) {
		s.StreamID = "MZ999"
		s.Link = rec
		s.State = callstate.StateStreaming
	})
	return reg, bargein.New(reg, log.Discard()), rec
}

func TestInterruptSendsClear(t *testing.T) {
	reg, ctrl, rec := setup(t)

	if err := ctrl.Interrupt("CA123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := rec.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Event != protocol.EventClear || msgs[0].StreamSID != "MZ999" {
		t.Errorf("unexpected message %+v", msgs[0])
	}

	s, _ := reg.View("CA123")
	if s.PlaybackEpoch != 1 {
		t.Errorf("expected epoch 1, got %d", s.PlaybackEpoch)
	}
	if st := ctrl.Stats(); st.Sent != 1 || st.Skipped != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestInterruptDropsPendingMarks(t *testing.T) {
	reg, ctrl, _ := setup(t)
	reg.Update("CA123", func(s *callstate.Session) {
		s.PendingMarks = []string{"m1", "m2"}
	})

	if err := ctrl.Interrupt("CA123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := reg.View("CA123")
	if s.Playing() {
		t.Errorf("expected no pending marks, got %v", s.PendingMarks)
	}

	t.Run("kept when the clear fails", func(t *testing.T) {
		reg, ctrl, rec := setup(t)
		reg.Update("CA123", func(s *callstate.Session) { s.PendingMarks = []string{"m1"} })
		rec.Close()
		_ = ctrl.Interrupt("CA123")
		if s, _ := reg.View("CA123"); !s.Playing() {
			t.Error("marks should survive a skipped interrupt")
		}
	})
}

func TestInterruptNoOps(t *testing.T) {
	t.Run("unknown call", func(t *testing.T) {
		reg, ctrl, rec := setup(t)
		if err := ctrl.Interrupt("CA-unknown"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if rec.Count(protocol.EventClear) != 0 {
			t.Error("expected no clear")
		}
		if _, ok := reg.View("CA-unknown"); ok {
			t.Error("interrupt must not create a session")
		}
		if ctrl.Stats().Skipped != 1 {
			t.Errorf("expected 1 skipped, got %d", ctrl.Stats().Skipped)
		}
	})

	t.Run("closed link", func(t *testing.T) {
		reg, ctrl, rec := setup(t)
		rec.Close()
		if err := ctrl.Interrupt("CA123"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		s, _ := reg.View("CA123")
		if s.PlaybackEpoch != 0 {
			t.Errorf("expected epoch unchanged, got %d", s.PlaybackEpoch)
		}
	})

	t.Run("no link", func(t *testing.T) {
		reg, ctrl, _ := setup(t)
		reg.SetLink("CA123", nil)
		if err := ctrl.Interrupt("CA123"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if ctrl.Stats().Skipped != 1 {
			t.Errorf("expected 1 skipped, got %d", ctrl.Stats().Skipped)
		}
	})

	t.Run("write fails", func(t *testing.T) {
		_, ctrl, rec := setup(t)
		rec.SendFunc = func(*protocol.Outbound) error { return protocol.ErrTransportUnavailable }
		if err := ctrl.Interrupt("CA123"); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})
}

func TestInterruptPropagatesOtherErrors(t *testing.T) {
	_, ctrl, rec := setup(t)
	boom := errors.New("boom")
	rec.SendFunc = func(*protocol.Outbound) error { return boom }

	if err := ctrl.Interrupt("CA123"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestConcurrentInterrupts(t *testing.T) {
	reg, ctrl, rec := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.Interrupt("CA123")
		}()
	}
	wg.Wait()

	s, _ := reg.View("CA123")
	if s.PlaybackEpoch != 50 {
		t.Errorf("expected epoch 50, got %d", s.PlaybackEpoch)
	}
	if rec.Count(protocol.EventClear) != 50 {
		t.Errorf("expected 50 clears, got %d", rec.Count(protocol.EventClear))
	}
}
