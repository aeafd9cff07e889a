package server

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/twiml"
)

// handleVoice answers the incoming-call webhook with TwiML that connects
// the call audio to the media socket.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	host := s.cfg.PublicHost
	if host == "" {
		host = c.Hostname()
	}

	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("failed to parse form")
	}
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if s.validate != nil {
		signed := "https://" + host + string(c.Request().URI().RequestURI())
		if !s.validate(signed, params, c.Get("X-Twilio-Signature")) {
			s.rejectedWebhooks.Add(1)
			s.logger.Warn("webhook signature rejected", "url", signed)
			return c.Status(fiber.StatusUnauthorized).SendString("invalid signature")
		}
	}
	s.webhooks.Add(1)

	body, err := StreamTwiML("wss://"+host+"/media", params["From"])
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("failed to build TwiML")
	}

	s.logger.Info("incoming call", "call_id", params["CallSid"], "from", params["From"])
	c.Set(fiber.HeaderContentType, "application/xml")
	return c.SendString(body)
}

// StreamTwiML renders <Response><Connect><Stream url=.../></Connect></Response>.
// A non-empty caller is passed to the stream as the "from" custom parameter.
func StreamTwiML(streamURL, caller string) (string, error) {
	stream := &twiml.VoiceStream{Url: streamURL}
	if caller != "" {
		stream.InnerElements = []twiml.Element{
			&twiml.VoiceParameter{Name: "from", Value: caller},
		}
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}
	return twiml.Voice([]twiml.Element{connect})
}
