package protocol

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeWriter struct {
	mu       sync.Mutex
	frames   [][]byte
	err      error
	deadline time.Time
}

func (w *fakeWriter) SetWriteDeadline(t time.Time) error {
	w.mu.Lock()
	w.deadline = t
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) WriteMessage(_ int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, data)
	return nil
}

func TestConnSend(t *testing.T) {
	w := &fakeWriter{}
	c := NewConn("conn-1", w)

	if !c.Open() {
		t.Fatal("new conn should be open")
	}
	if err := c.Send(NewClear("MZ1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.Sent() != 1 || len(w.frames) != 1 {
		t.Errorf("Sent = %d, frames = %d", c.Sent(), len(w.frames))
	}

	c.Shut()
	if c.Open() {
		t.Error("conn should be closed after Shut")
	}
	if err := c.Send(NewClear("MZ1")); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Send after Shut = %v, want ErrTransportUnavailable", err)
	}
}

func TestConnWriteErrorClosesLink(t *testing.T) {
	w := &fakeWriter{err: errors.New("broken pipe")}
	c := NewConn("conn-2", w)

	err := c.Send(NewMedia("MZ1", []byte{1}))
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("Send = %v, want ErrTransportUnavailable", err)
	}
	if c.Open() {
		t.Error("write failure should close the link")
	}
}

// stalledWriter never completes a write on its own; it gives up when the
// write deadline passes, as a socket with a full send buffer does.
type stalledWriter struct {
	deadline time.Time
}

func (w *stalledWriter) SetWriteDeadline(t time.Time) error {
	w.deadline = t
	return nil
}

func (w *stalledWriter) WriteMessage(int, []byte) error {
	if w.deadline.IsZero() {
		select {}
	}
	time.Sleep(time.Until(w.deadline))
	return errors.New("i/o timeout")
}

func TestConnWriteDeadline(t *testing.T) {
	t.Run("set before each write", func(t *testing.T) {
		w := &fakeWriter{}
		c := NewConn("conn-4", w)

		before := time.Now()
		if err := c.Send(NewClear("MZ1")); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if w.deadline.Before(before.Add(writeWait)) {
			t.Errorf("deadline %v is earlier than %v", w.deadline, before.Add(writeWait))
		}
	})

	t.Run("stalled peer closes the link", func(t *testing.T) {
		c := NewConn("conn-5", &stalledWriter{})
		c.writeWait = 20 * time.Millisecond

		done := make(chan error, 1)
		go func() { done <- c.Send(NewMedia("MZ1", []byte{0xFF})) }()

		select {
		case err := <-done:
			if !errors.Is(err, ErrTransportUnavailable) {
				t.Fatalf("Send = %v, want ErrTransportUnavailable", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Send did not return after the write deadline")
		}
		if c.Open() {
			t.Error("timed out write should close the link")
		}
		if err := c.Send(NewClear("MZ1")); !errors.Is(err, ErrTransportUnavailable) {
			t.Errorf("Send after timeout = %v, want ErrTransportUnavailable", err)
		}
	})
}

func TestConnConcurrentSends(t *testing.T) {
	w := &fakeWriter{}
	c := NewConn("conn-3", w)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Send(NewMedia("MZ1", []byte{0xFF}))
		}()
	}
	wg.Wait()

	if c.Sent() != 50 {
		t.Errorf("Sent = %d, want 50", c.Sent())
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Send(NewMedia("MZ1", []byte{1}))
	r.Send(NewClear("MZ1"))

	if got := r.Events(); len(got) != 2 || got[0] != EventMedia || got[1] != EventClear {
		t.Errorf("Events = %v", got)
	}
	if r.Count(EventClear) != 1 {
		t.Errorf("Count(clear) = %d", r.Count(EventClear))
	}

	r.Close()
	if r.Open() {
		t.Error("recorder should be closed")
	}
	if err := r.Send(NewClear("MZ1")); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Send after Close = %v", err)
	}
}
