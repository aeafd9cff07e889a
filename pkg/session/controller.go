package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
	"github.com/teslashibe/go-callbridge/pkg/callstate"
	"github.com/teslashibe/go-callbridge/pkg/protocol"
	"github.com/teslashibe/go-callbridge/pkg/stt"
)

// Controller handles the events of one transport connection. Its methods
// are called from the connection's read loop, in arrival order.
type Controller struct {
	p      *Pipeline
	link   protocol.Link
	logger *slog.Logger

	mu       sync.Mutex
	state    callstate.State
	callID   string
	provider stt.Provider
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewController creates a controller for a connection whose outbound side
// is link.
func (p *Pipeline) NewController(link protocol.Link) *Controller {
	return &Controller{
		p:      p,
		link:   link,
		logger: p.logger,
		state:  callstate.StateIdle,
	}
}

// CallID returns the call bound by the start event, or "".
func (c *Controller) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// State returns the connection state.
func (c *Controller) State() callstate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleStart binds the connection to a call and starts transcription.
// The call is Streaming on return; the provider handshake finishes in the
// background and audio arriving before it completes is dropped.
func (c *Controller) HandleStart(ctx context.Context, start *protocol.Start) {
	c.mu.Lock()
	if c.state != callstate.StateIdle {
		c.mu.Unlock()
		c.logger.Warn("duplicate start ignored", "call_id", start.CallSID)
		return
	}

	callID := start.CallSID
	logger := c.p.logger.With("call_id", callID, "stream_id", start.StreamSID)
	c.callID = callID
	c.logger = logger
	c.state = callstate.StateAwaitingConnect

	c.p.registry.Update(callID, func(s *callstate.Session) {
		s.StreamID = start.StreamSID
		s.Link = c.link
		s.State = callstate.StateAwaitingConnect
		s.Speaking = false
	})
	c.p.calls.Add(1)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	var provider stt.Provider
	if c.p.newSTT != nil {
		var err error
		provider, err = c.p.newSTT()
		if err != nil {
			logger.Error("transcription unavailable", "error", err)
			c.degrade(callID, "", err)
		}
	}
	c.provider = provider

	if provider != nil {
		c.p.registry.Update(callID, func(s *callstate.Session) {
			s.Provider = callstate.ProviderState{Kind: provider.Name()}
		})
		go c.run(loopCtx, callID, provider.Events())
		go c.connect(loopCtx, callID, provider)
	} else {
		close(c.done)
	}

	c.state = callstate.StateStreaming
	c.mu.Unlock()

	c.p.registry.Update(callID, func(s *callstate.Session) {
		if s.State != callstate.StateClosed {
			s.State = callstate.StateStreaming
		}
	})
	logger.Info("call started", "tracks", start.Tracks, "encoding", start.MediaFormat.Encoding)
}

func (c *Controller) connect(ctx context.Context, callID string, provider stt.Provider) {
	ctx, cancel := context.WithTimeout(ctx, c.p.cfg.ConnectTimeout)
	defer cancel()

	err := provider.Connect(ctx, c.p.cfg.Credentials(provider.Name()), callID)
	if err != nil {
		c.logger.Warn("transcription connect failed, call degraded",
			"provider", provider.Name(),
			"error", err,
		)
		c.degrade(callID, provider.Name(), err)
		return
	}

	c.mu.Lock()
	closed := c.state == callstate.StateClosed
	c.mu.Unlock()
	if closed {
		_ = provider.Disconnect()
		return
	}

	c.p.registry.Update(callID, func(s *callstate.Session) {
		s.Provider.Connected = true
		s.Provider.Degraded = false
	})
	c.logger.Info("transcription connected", "provider", provider.Name())
}

func (c *Controller) degrade(callID, kind string, err error) {
	_ = c.p.registry.Do(callID, func(s *callstate.Session) error {
		if kind != "" {
			s.Provider.Kind = kind
		}
		s.Provider.Connected = false
		s.Provider.Degraded = true
		s.Provider.LastError = err.Error()
		return nil
	})
}

// HandleMedia forwards one inbound audio frame. Frames outside Streaming
// and outbound-track echoes are ignored.
func (c *Controller) HandleMedia(media *protocol.Media) {
	c.mu.Lock()
	state, provider, callID := c.state, c.provider, c.callID
	c.mu.Unlock()

	if state != callstate.StateStreaming || provider == nil {
		return
	}
	if media.Track != "" && media.Track != "inbound" {
		return
	}

	frame, err := audioio.DecodePayload(media.Payload)
	if err != nil {
		c.p.malformedMedia.Add(1)
		c.logger.Warn("MalformedEvent", "event", protocol.EventMedia, "error", err)
		return
	}

	c.p.registry.Touch(callID)
	if err := provider.ProcessAudio(frame); err != nil {
		c.logger.Debug("process audio failed", "error", err)
	}
}

// HandleMark records that playback reached a mark.
func (c *Controller) HandleMark(mark *protocol.Mark) {
	callID := c.CallID()
	if callID == "" {
		return
	}
	_ = c.p.registry.Do(callID, func(s *callstate.Session) error {
		if i := slices.Index(s.PendingMarks, mark.Name); i >= 0 {
			s.PendingMarks = slices.Delete(s.PendingMarks, i, i+1)
		}
		return nil
	})
	c.logger.Debug("playback mark reached", "mark", mark.Name)
}

// HandleDTMF logs a keypad digit.
func (c *Controller) HandleDTMF(dtmf *protocol.DTMF) {
	c.p.registry.Touch(c.CallID())
	c.logger.Info("dtmf", "digit", dtmf.Digit)
}

// HandleStop ends the call.
func (c *Controller) HandleStop(stop *protocol.Stop) {
	c.shutdown("stop")
}

// Close ends the call when the transport drops without a stop event.
// It is safe to call after HandleStop.
func (c *Controller) Close() {
	c.shutdown("transport closed")
}

func (c *Controller) shutdown(reason string) {
	c.mu.Lock()
	if c.state == callstate.StateClosed {
		c.mu.Unlock()
		return
	}
	wasIdle := c.state == callstate.StateIdle
	c.state = callstate.StateClosed
	callID, provider, cancel, done := c.callID, c.provider, c.cancel, c.done
	c.mu.Unlock()

	if wasIdle {
		return
	}

	_ = c.p.registry.Do(callID, func(s *callstate.Session) error {
		s.State = callstate.StateClosed
		s.Speaking = false
		return nil
	})

	if provider != nil {
		if err := provider.Disconnect(); err != nil {
			c.logger.Warn("transcription disconnect failed", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if ender, ok := c.p.handler.(CallEnder); ok {
		ender.EndCall(callID)
	}
	c.p.registry.EvictAfter(callID, c.p.cfg.GracePeriod)

	c.logger.Info("call ended", "reason", reason)
}

// run is the call's single event consumer.
func (c *Controller) run(ctx context.Context, callID string, events <-chan stt.Event) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case stt.Partial:
				c.onPartial(callID, ev.Text)
			case stt.FinalUtterance:
				c.onFinal(ctx, callID, ev.Text)
			}
		}
	}
}

func (c *Controller) onPartial(callID, text string) {
	interrupt := false
	err := c.p.registry.Do(callID, func(s *callstate.Session) error {
		if s.State == callstate.StateClosed {
			return ErrSessionClosed
		}
		// A reply that started after the utterance began is cut as well.
		if !s.Speaking || s.Playing() {
			s.Speaking = true
			interrupt = true
		}
		return nil
	})
	if err != nil || !interrupt {
		return
	}

	c.logger.Debug("caller speaking", "partial", text)
	if err := c.p.bargein.Interrupt(callID); err != nil {
		c.logger.Warn("interrupt failed", "error", err)
	}
}

func (c *Controller) onFinal(ctx context.Context, callID, text string) {
	_ = c.p.registry.Do(callID, func(s *callstate.Session) error {
		s.Speaking = false
		return nil
	})
	c.p.utterances.Add(1)
	c.logger.Info("utterance", "text", text)

	if c.p.handler == nil {
		return
	}
	go c.p.handler.HandleUtterance(ctx, callID, text, c.p)
}
