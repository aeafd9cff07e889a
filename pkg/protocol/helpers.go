package protocol

import (
	"encoding/base64"
	"encoding/json"
)

// =============================================================================
// Bridge → Transport Messages
// =============================================================================

// Outbound is a message written to the transport.
type Outbound struct {
	Event     EventType      `json:"event"`
	StreamSID string         `json:"streamSid"`
	Media     *OutboundMedia `json:"media,omitempty"`
	Mark      *Mark          `json:"mark,omitempty"`
}

// OutboundMedia carries base64 mu-law audio for playback.
type OutboundMedia struct {
	Payload string `json:"payload"`
}

// NewMedia creates a playback message for raw mu-law audio.
func NewMedia(streamSID string, audio []byte) *Outbound {
	return &Outbound{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media: &OutboundMedia{
			Payload: base64.StdEncoding.EncodeToString(audio),
		},
	}
}

// NewClear creates a message that flushes the transport's playback buffer.
func NewClear(streamSID string) *Outbound {
	return &Outbound{
		Event:     EventClear,
		StreamSID: streamSID,
	}
}

// NewMark creates a playback marker.
func NewMark(streamSID, name string) *Outbound {
	return &Outbound{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      &Mark{Name: name},
	}
}

// Bytes returns the JSON-encoded message.
func (o *Outbound) Bytes() ([]byte, error) {
	return json.Marshal(o)
}

// Audio decodes the media payload. It returns nil for non-media messages.
func (o *Outbound) Audio() []byte {
	if o.Media == nil {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(o.Media.Payload)
	if err != nil {
		return nil
	}
	return data
}
