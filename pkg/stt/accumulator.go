package stt

import (
	"strings"
	"sync"
)

// Accumulator collects final-flagged fragments of one utterance.
// The zero value is ready to use.
type Accumulator struct {
	mu    sync.Mutex
	parts []string
}

// Add appends text when isFinal is set. Non-final and blank fragments are
// discarded. It reports whether the fragment was kept.
func (a *Accumulator) Add(text string, isFinal bool) bool {
	text = strings.TrimSpace(text)
	if !isFinal || text == "" {
		return false
	}
	a.mu.Lock()
	a.parts = append(a.parts, text)
	a.mu.Unlock()
	return true
}

// Flush returns the space-joined fragments in arrival order and clears the
// buffer. An empty buffer flushes to "".
func (a *Accumulator) Flush() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.parts) == 0 {
		return ""
	}
	out := strings.Join(a.parts, " ")
	a.parts = nil
	return out
}

// Pending returns the number of buffered fragments.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.parts)
}

// Reset drops buffered fragments.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.parts = nil
	a.mu.Unlock()
}
