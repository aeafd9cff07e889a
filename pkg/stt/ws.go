package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// wsConn serializes writes to a backend WebSocket. Audio frames, keep-alives
// and control messages come from different goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func dialWS(ctx context.Context, provider, rawURL string, header http.Header, timeout time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
				Provider:   provider,
			}
			return nil, NewConnectionError(provider, "handshake rejected", apiErr, apiErr.IsRetryable())
		}
		return nil, NewConnectionError(provider, "dial", err, true)
	}
	return conn, nil
}

func (w *wsConn) set(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

func (w *wsConn) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return ErrNotConnected
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(messageType, data)
}

func (w *wsConn) writeBinary(data []byte) error {
	return w.write(websocket.BinaryMessage, data)
}

func (w *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.write(websocket.TextMessage, data)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return ErrNotConnected
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// close sends the optional final message and a close frame, then closes the
// socket. Safe to call on a closed wsConn.
func (w *wsConn) close(final any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return
	}
	deadline := time.Now().Add(writeTimeout)
	if final != nil {
		if data, err := json.Marshal(final); err == nil {
			w.conn.SetWriteDeadline(deadline)
			_ = w.conn.WriteMessage(websocket.TextMessage, data)
		}
	}
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = w.conn.Close()
	w.conn = nil
}
