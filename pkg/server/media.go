package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-callbridge/pkg/protocol"
	"github.com/teslashibe/go-callbridge/pkg/session"
)

// connection is one media stream socket.
type connection struct {
	id   string
	link *protocol.Conn
	ctrl *session.Controller
}

func (s *Server) requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) mediaHandler() fiber.Handler {
	return websocket.New(s.handleMedia)
}

// handleMedia runs the read loop of one media stream connection. Events are
// handed to the connection's controller in arrival order.
func (s *Server) handleMedia(c *websocket.Conn) {
	id := uuid.NewString()
	conn := &connection{
		id:   id,
		link: protocol.NewConn(id, c),
	}
	conn.ctrl = s.pipeline.NewController(conn.link)
	logger := s.logger.With("conn_id", id)

	s.mu.Lock()
	s.conns[id] = conn
	total := len(s.conns)
	s.mu.Unlock()
	s.connectionsTotal.Add(1)

	logger.Info("media stream connected", "remote", c.IP(), "connections", total)

	defer func() {
		conn.link.Shut()
		conn.ctrl.Close()

		s.mu.Lock()
		delete(s.conns, id)
		total := len(s.conns)
		s.mu.Unlock()
		s.closedSent.Add(conn.link.Sent())

		logger.Info("media stream disconnected",
			"call_id", conn.ctrl.CallID(),
			"sent", conn.link.Sent(),
			"duration", time.Since(conn.link.Connected).Round(time.Millisecond),
			"connections", total,
		)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read error", "error", err)
			}
			return
		}
		s.messagesReceived.Add(1)

		ev, err := protocol.ParseEvent(data)
		if err != nil {
			s.malformedEvents.Add(1)
			logger.Warn("MalformedEvent", "error", err, "bytes", len(data))
			continue
		}
		s.dispatch(conn, ev, logger)
	}
}

func (s *Server) dispatch(conn *connection, ev *protocol.Event, logger *slog.Logger) {
	switch ev.Event {
	case protocol.EventConnected:
		logger.Debug("stream connected", "protocol", ev.Protocol, "version", ev.Version)
	case protocol.EventStart:
		conn.ctrl.HandleStart(s.ctx, ev.Start)
	case protocol.EventMedia:
		conn.ctrl.HandleMedia(ev.Media)
	case protocol.EventMark:
		conn.ctrl.HandleMark(ev.Mark)
	case protocol.EventDTMF:
		if ev.DTMF != nil {
			conn.ctrl.HandleDTMF(ev.DTMF)
		}
	case protocol.EventStop:
		conn.ctrl.HandleStop(ev.Stop)
	default:
		logger.Debug("event ignored", "event", ev.Event)
	}
}

// ConnectionCount returns the number of open media sockets.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
