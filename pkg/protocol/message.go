// Package protocol defines the media stream wire format spoken between the
// telephony transport (Twilio Media Streams) and the bridge.
//
// Inbound events arrive as JSON text frames: connected, start, media, mark,
// dtmf and stop. Outbound messages are media, clear and mark, each addressed
// by the stream identifier received in the start event.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMalformedEvent is returned for transport messages that do not parse
	// or do not match the event schema. The event is discarded.
	ErrMalformedEvent = errors.New("protocol: malformed event")

	// ErrTransportUnavailable is returned when writing to a closed link.
	ErrTransportUnavailable = errors.New("protocol: transport unavailable")
)

// EventType identifies a media stream message.
type EventType string

const (
	// Transport → bridge
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventMedia     EventType = "media"
	EventMark      EventType = "mark"
	EventDTMF      EventType = "dtmf"
	EventStop      EventType = "stop"

	// Bridge → transport
	EventClear EventType = "clear"
)

// Telephony media format announced in the start event.
const (
	EncodingMuLaw = "audio/x-mulaw"
	SampleRate    = 8000
)

// Event is an inbound media stream message. Exactly one of the payload
// pointers is set, matching Event.
type Event struct {
	Event          EventType `json:"event"`
	SequenceNumber string    `json:"sequenceNumber,omitempty"`
	StreamSID      string    `json:"streamSid,omitempty"`

	// connected
	Protocol string `json:"protocol,omitempty"`
	Version  string `json:"version,omitempty"`

	Start *Start `json:"start,omitempty"`
	Media *Media `json:"media,omitempty"`
	Mark  *Mark  `json:"mark,omitempty"`
	DTMF  *DTMF  `json:"dtmf,omitempty"`
	Stop  *Stop  `json:"stop,omitempty"`
}

// =============================================================================
// Transport → Bridge Payloads
// =============================================================================

// Start opens the stream for one call.
type Start struct {
	AccountSID       string            `json:"accountSid,omitempty"`
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

// MediaFormat describes the inbound audio.
type MediaFormat struct {
	Encoding   string `json:"encoding"`   // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate"` // 8000
	Channels   int    `json:"channels"`   // 1
}

// Media carries one base64 encoded audio frame.
type Media struct {
	Track     string `json:"track,omitempty"` // "inbound" or "outbound"
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // ms since stream start
	Payload   string `json:"payload"`
}

// Mark names a point in the outbound audio. The transport echoes it back
// once playback reaches it.
type Mark struct {
	Name string `json:"name"`
}

// DTMF carries one keypad digit.
type DTMF struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// Stop ends the stream.
type Stop struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// CallSID returns the call identifier carried by the event, if any.
func (e *Event) CallSID() string {
	switch {
	case e.Start != nil:
		return e.Start.CallSID
	case e.Stop != nil:
		return e.Stop.CallSID
	}
	return ""
}

// ParseEvent parses and validates an inbound message.
// Any failure wraps ErrMalformedEvent.
func ParseEvent(data []byte) (*Event, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := eventSchema().Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &ev, nil
}

// Bytes returns the JSON-encoded event. Used by tests and replay tools.
func (e *Event) Bytes() ([]byte, error) {
	return json.Marshal(e)
}
