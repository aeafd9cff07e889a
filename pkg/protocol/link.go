package protocol

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Link is the outbound half of a transport connection: the opaque "send
// frame" capability the call pipeline writes media and control messages to.
// Holders never own the underlying connection.
type Link interface {
	// Send writes one message. It returns ErrTransportUnavailable once the
	// link is closed.
	Send(msg *Outbound) error

	// Open reports whether the link still accepts writes.
	Open() bool
}

// writeWait bounds a single frame write. Send runs under the call lock, so
// a stalled peer must not hold it longer than this.
const writeWait = 10 * time.Second

// MessageWriter is the write side of a WebSocket connection.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Conn is a Link over a WebSocket connection. Writes are serialized so media
// frames and control messages never interleave on the wire.
type Conn struct {
	ID        string
	Connected time.Time

	mu        sync.Mutex
	w         MessageWriter
	writeWait time.Duration
	closed    atomic.Bool
	sent      atomic.Uint64
}

// NewConn wraps a WebSocket writer.
func NewConn(id string, w MessageWriter) *Conn {
	return &Conn{
		ID:        id,
		Connected: time.Now(),
		w:         w,
		writeWait: writeWait,
	}
}

// Send writes msg as a text frame.
func (c *Conn) Send(msg *Outbound) error {
	if c.closed.Load() {
		return ErrTransportUnavailable
	}

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrTransportUnavailable
	}
	if err := c.w.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.closed.Store(true)
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	if err := c.w.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed.Store(true)
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	c.sent.Add(1)
	return nil
}

// Open reports whether the connection accepts writes.
func (c *Conn) Open() bool {
	return !c.closed.Load()
}

// Shut marks the link closed. The socket itself is closed by its owner.
func (c *Conn) Shut() {
	c.closed.Store(true)
}

// Sent returns the number of messages written.
func (c *Conn) Sent() uint64 {
	return c.sent.Load()
}

// Recorder is an in-memory Link for tests. It records every message sent
// while open.
type Recorder struct {
	// SendFunc, if set, is called before recording. A non-nil error is
	// returned to the caller and the message is not recorded.
	SendFunc func(msg *Outbound) error

	mu     sync.Mutex
	msgs   []*Outbound
	closed bool
}

// NewRecorder creates an open recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records msg.
func (r *Recorder) Send(msg *Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrTransportUnavailable
	}
	if r.SendFunc != nil {
		if err := r.SendFunc(msg); err != nil {
			return err
		}
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

// Open reports whether the recorder accepts messages.
func (r *Recorder) Open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// Close makes further sends fail.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []*Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Outbound, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Events returns the recorded event types in order.
func (r *Recorder) Events() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Event
	}
	return out
}

// Count returns how many messages of the given type were recorded.
func (r *Recorder) Count(event EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

var (
	_ Link = (*Conn)(nil)
	_ Link = (*Recorder)(nil)
)
