// Package session drives one phone call from stream start to stop.
//
// A Pipeline is shared by the whole process: it owns the call registry, the
// provider factories and the text-handling collaborator. Each transport
// connection gets its own Controller, which feeds inbound audio to a
// transcription provider and runs a single event loop per call:
//
//	Partial          -> barge-in, once per utterance
//	FinalUtterance   -> TextHandler.HandleUtterance (asynchronously)
//
// Collaborators answer through Pipeline.Say, which synthesizes the reply and
// relays it frame by frame under the call's lock so an interrupt issued in
// the meantime suppresses the rest.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
	"github.com/teslashibe/go-callbridge/pkg/bargein"
	"github.com/teslashibe/go-callbridge/pkg/callstate"
	"github.com/teslashibe/go-callbridge/pkg/protocol"
	"github.com/teslashibe/go-callbridge/pkg/stt"
	"github.com/teslashibe/go-callbridge/pkg/tts"
)

// Sentinel errors.
var (
	// ErrSessionClosed is returned by Say when the call ended or was evicted
	// before the reply could be played. The audio is discarded.
	ErrSessionClosed = errors.New("session: call closed")

	errSuperseded = errors.New("session: playback superseded")
)

// Replier speaks text into a call.
type Replier interface {
	Say(ctx context.Context, callID, text string) error
}

// TextHandler receives completed utterances. It runs on its own goroutine
// and may take as long as it needs.
type TextHandler interface {
	HandleUtterance(ctx context.Context, callID, text string, r Replier)
}

// CallEnder is implemented by handlers that keep per-call state.
type CallEnder interface {
	EndCall(callID string)
}

// TextHandlerFunc adapts a function to TextHandler.
type TextHandlerFunc func(ctx context.Context, callID, text string, r Replier)

// HandleUtterance calls f.
func (f TextHandlerFunc) HandleUtterance(ctx context.Context, callID, text string, r Replier) {
	f(ctx, callID, text, r)
}

// Stats contains pipeline counters.
type Stats struct {
	Calls            uint64 `json:"calls"`
	Utterances       uint64 `json:"utterances"`
	MalformedMedia   uint64 `json:"malformed_media"`
	SynthOK          uint64 `json:"synth_ok"`
	SynthFailed      uint64 `json:"synth_failed"`
	RelaysSuppressed uint64 `json:"relays_suppressed"`
	InterruptsSent   uint64 `json:"interrupts_sent"`
	InterruptsSkip   uint64 `json:"interrupts_skipped"`
}

// Pipeline is the process-wide call pipeline.
type Pipeline struct {
	cfg      *Config
	logger   *slog.Logger
	registry *callstate.Registry
	newSTT   stt.Factory
	newTTS   tts.Factory
	handler  TextHandler
	bargein  *bargein.Controller

	calls            atomic.Uint64
	utterances       atomic.Uint64
	malformedMedia   atomic.Uint64
	synthOK          atomic.Uint64
	synthFailed      atomic.Uint64
	relaysSuppressed atomic.Uint64
}

// NewPipeline creates a pipeline. handler may be nil, in which case
// utterances are only logged.
func NewPipeline(registry *callstate.Registry, newSTT stt.Factory, newTTS tts.Factory, handler TextHandler, opts ...Option) *Pipeline {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.RelayChunk <= 0 {
		cfg.RelayChunk = audioio.FrameBytes
	}

	logger := cfg.Logger.With("component", "session")

	ctrl := cfg.BargeIn
	if ctrl == nil {
		ctrl = bargein.New(registry, cfg.Logger)
	}

	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		newSTT:   newSTT,
		newTTS:   newTTS,
		handler:  handler,
		bargein:  ctrl,
	}
}

// Registry returns the call registry.
func (p *Pipeline) Registry() *callstate.Registry {
	return p.registry
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	b := p.bargein.Stats()
	return Stats{
		Calls:            p.calls.Load(),
		Utterances:       p.utterances.Load(),
		MalformedMedia:   p.malformedMedia.Load(),
		SynthOK:          p.synthOK.Load(),
		SynthFailed:      p.synthFailed.Load(),
		RelaysSuppressed: p.relaysSuppressed.Load(),
		InterruptsSent:   b.Sent,
		InterruptsSkip:   b.Skipped,
	}
}

// Say synthesizes text and plays it into the call.
//
// The playback epoch is captured on entry: a barge-in at any point after
// that suppresses whatever part of the reply has not been sent yet, and Say
// returns nil. Synthesis failures are *tts.SynthesisError and leave the call
// streaming. A call that ended first yields ErrSessionClosed.
func (p *Pipeline) Say(ctx context.Context, callID, text string) error {
	logger := p.logger.With("call_id", callID)

	release, err := p.registry.AcquireSynthesis(ctx, callID)
	if err != nil {
		if errors.Is(err, callstate.ErrUnknownCall) {
			return ErrSessionClosed
		}
		return err
	}
	defer release()

	var epoch uint64
	err = p.registry.Do(callID, func(s *callstate.Session) error {
		if s.State == callstate.StateClosed {
			return ErrSessionClosed
		}
		epoch = s.PlaybackEpoch
		return nil
	})
	if err != nil {
		return closedOr(err)
	}

	result, err := p.synthesize(ctx, callID, text)
	if err != nil {
		p.synthFailed.Add(1)
		logger.Warn("synthesis failed", "error", err)
		return err
	}
	p.synthOK.Add(1)

	err = p.relay(callID, epoch, result.Audio)
	switch {
	case err == nil:
		logger.Debug("reply relayed",
			"chars", result.CharCount,
			"bytes", len(result.Audio),
			"latency_ms", result.LatencyMs,
		)
		return nil
	case errors.Is(err, errSuperseded):
		p.relaysSuppressed.Add(1)
		logger.Info("reply interrupted", "epoch", epoch)
		return nil
	case errors.Is(err, ErrSessionClosed), errors.Is(err, callstate.ErrUnknownCall):
		logger.Info("reply discarded, call closed")
		return ErrSessionClosed
	default:
		logger.Warn("relay failed", "error", err)
		return err
	}
}

func (p *Pipeline) synthesize(ctx context.Context, callID, text string) (*tts.AudioResult, error) {
	if p.newTTS == nil {
		return nil, &tts.SynthesisError{Provider: "none", Err: tts.ErrProviderUnavailable}
	}

	provider, err := p.newTTS()
	if err != nil {
		return nil, &tts.SynthesisError{Provider: "factory", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SynthTimeout)
	defer cancel()

	if err := provider.Connect(ctx, p.cfg.Credentials(provider.Name()), callID); err != nil {
		return nil, tts.WrapError(provider.Name(), err)
	}
	result, err := provider.Convert(ctx, text)
	if err != nil {
		return nil, tts.WrapError(provider.Name(), err)
	}
	return result, nil
}

// relay writes audio then a mark, checking before every frame that the
// call is still open and no interrupt has happened since epoch.
func (p *Pipeline) relay(callID string, epoch uint64, audio []byte) error {
	send := func(build func(streamID string) *protocol.Outbound, after func(*callstate.Session)) error {
		return p.registry.Do(callID, func(s *callstate.Session) error {
			if s.State == callstate.StateClosed {
				return ErrSessionClosed
			}
			if s.PlaybackEpoch != epoch {
				return errSuperseded
			}
			if s.Link == nil || !s.Link.Open() {
				return protocol.ErrTransportUnavailable
			}
			if err := s.Link.Send(build(s.StreamID)); err != nil {
				return err
			}
			if after != nil {
				after(s)
			}
			return nil
		})
	}

	for _, chunk := range audioio.Chunk(audio, p.cfg.RelayChunk) {
		err := send(func(streamID string) *protocol.Outbound {
			return protocol.NewMedia(streamID, chunk)
		}, nil)
		if err != nil {
			return err
		}
	}

	name := uuid.NewString()
	return send(func(streamID string) *protocol.Outbound {
		return protocol.NewMark(streamID, name)
	}, func(s *callstate.Session) {
		s.PendingMarks = append(s.PendingMarks, name)
	})
}

func closedOr(err error) error {
	if errors.Is(err, callstate.ErrUnknownCall) || errors.Is(err, ErrSessionClosed) {
		return ErrSessionClosed
	}
	return fmt.Errorf("session: %w", err)
}
