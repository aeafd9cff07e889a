package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsStream is the Connect/ProcessAudio/Disconnect lifecycle for backends
// that take raw audio over a WebSocket and answer with JSON messages.
// Variants fill in the hooks.
type wsStream struct {
	*base
	ws wsConn

	// request returns the dial URL and headers for a credential.
	request func(credential string) (string, http.Header)

	// handle processes one text message from the backend.
	handle func(data []byte)

	// keepAlive sends the backend's liveness signal.
	keepAlive func() error

	// closing is sent before the close frame on Disconnect, if non-nil.
	closing any
}

// Connect dials the backend and starts the read loop and keep-alive.
func (s *wsStream) Connect(ctx context.Context, credential, sessionID string) error {
	if credential == "" {
		return NewConnectionError(s.name, "missing API key", ErrNoCredential, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		if s.connected.Load() {
			return ErrAlreadyConnected
		}
		// The previous stream died on its own; clean it up first.
		s.ws.close(nil)
		s.end()
	}

	rawURL, header := s.request(credential)
	conn, err := dialWS(ctx, s.name, rawURL, header, s.cfg.DialTimeout)
	if err != nil {
		s.logger.Warn("connect failed", "session_id", sessionID, "error", err)
		return err
	}

	runCtx := s.begin(sessionID)
	s.ws.set(conn)
	s.connected.Store(true)

	s.wg.Add(2)
	go s.readLoop(conn)
	go func() {
		defer s.wg.Done()
		keepAlive(runCtx, s.cfg.KeepAlive, s.logger, s.keepAlive)
	}()

	s.logger.Info("connected", "session_id", sessionID)
	return nil
}

// ProcessAudio forwards one frame. Frames are dropped while disconnected.
func (s *wsStream) ProcessAudio(frame []byte) error {
	if len(frame) == 0 || !s.connected.Load() {
		s.drop()
		return nil
	}

	if err := s.ws.writeBinary(frame); err != nil {
		s.drop()
		if errors.Is(err, ErrNotConnected) {
			return nil
		}
		if s.connected.Swap(false) {
			s.logger.Warn("audio write failed", "session_id", s.sessionID, "error", err)
		}
		return fmt.Errorf("stt [%s]: send audio: %w", s.name, err)
	}
	s.framesSent.Add(1)
	return nil
}

// Disconnect closes the stream. It is idempotent.
func (s *wsStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	s.connected.Store(false)
	s.ws.close(s.closing)
	s.end()

	s.logger.Info("disconnected", "session_id", s.sessionID, "frames", s.framesSent.Load())
	return nil
}

func (s *wsStream) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if s.connected.Swap(false) {
				s.logger.Warn("stream closed by backend", "session_id", s.sessionID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handle(data)
	}
}
