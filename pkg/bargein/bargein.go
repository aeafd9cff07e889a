// Package bargein cuts off synthesized playback when the caller starts
// talking over it.
//
// An interrupt bumps the call's playback epoch and sends one clear message
// to the transport, both under the call's session lock. Relays hold the same
// lock per chunk and compare epochs, so a clear can never be overtaken by
// audio synthesized before it.
package bargein

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-callbridge/pkg/callstate"
	"github.com/teslashibe/go-callbridge/pkg/protocol"
)

// Controller issues interrupts against the registry.
type Controller struct {
	registry *callstate.Registry
	logger   *slog.Logger

	sent    atomic.Uint64
	skipped atomic.Uint64
}

// Stats reports interrupt counters.
type Stats struct {
	Sent    uint64
	Skipped uint64
}

// New creates a controller over registry.
func New(registry *callstate.Registry, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry: registry,
		logger:   logger.With("component", "bargein"),
	}
}

// Interrupt flushes the transport's playback buffer for callID. An unknown
// call or an unavailable transport makes it a logged no-op; it only fails
// for errors unrelated to the transport.
func (c *Controller) Interrupt(callID string) error {
	var epoch uint64

	err := c.registry.Do(callID, func(s *callstate.Session) error {
		if s.Link == nil || !s.Link.Open() || s.StreamID == "" {
			return protocol.ErrTransportUnavailable
		}

		s.PlaybackEpoch++
		epoch = s.PlaybackEpoch
		if err := s.Link.Send(protocol.NewClear(s.StreamID)); err != nil {
			return err
		}
		// The transport drops its buffer, marks included.
		s.PendingMarks = nil
		return nil
	})

	switch {
	case err == nil:
		c.sent.Add(1)
		c.logger.Debug("interrupt sent", "call_id", callID, "epoch", epoch)
		return nil
	case errors.Is(err, callstate.ErrUnknownCall):
		c.skipped.Add(1)
		c.logger.Debug("interrupt for unknown call", "call_id", callID)
		return nil
	case errors.Is(err, protocol.ErrTransportUnavailable):
		c.skipped.Add(1)
		c.logger.Info("interrupt skipped", "call_id", callID, "reason", "TransportUnavailable")
		return nil
	default:
		c.skipped.Add(1)
		return err
	}
}

// Stats returns the interrupt counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Sent:    c.sent.Load(),
		Skipped: c.skipped.Load(),
	}
}
