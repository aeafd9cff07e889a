package stt

import "sync"

// emitter delivers events in emission order. emit blocks while the buffer is
// full rather than dropping; seal unblocks pending emits, discards anything
// undelivered, and turns later emits into no-ops. The channel is never closed
// so a racing reader never sees a spurious zero Event.
type emitter struct {
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	sealed bool
}

func newEmitter(size int) *emitter {
	if size < 1 {
		size = 1
	}
	return &emitter{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

func (e *emitter) emit(ev Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.sealed {
		return false
	}
	select {
	case e.ch <- ev:
		return true
	case <-e.done:
		return false
	}
}

func (e *emitter) seal() {
	e.once.Do(func() { close(e.done) })

	// Waits for in-flight emits, which all return once done is closed.
	e.mu.Lock()
	e.sealed = true
	e.mu.Unlock()

	for {
		select {
		case <-e.ch:
		default:
			return
		}
	}
}

func (e *emitter) isSealed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sealed
}
