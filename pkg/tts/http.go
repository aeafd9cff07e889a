package tts

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teslashibe/go-callbridge/internal/httpc"
)

// httpSession holds the connect state and retrying client shared by the
// HTTP request/response variants.
type httpSession struct {
	name   string
	config *Config
	client *http.Client
	logger *slog.Logger

	mu        sync.RWMutex
	apiKey    string
	sessionID string
	connected bool
}

func newHTTPSession(name string, cfg *Config) httpSession {
	return httpSession{
		name:   name,
		config: cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "tts."+name),
	}
}

// Name returns the provider kind.
func (h *httpSession) Name() string {
	return h.name
}

// connect records the API key. No request is made: the first Convert
// surfaces a rejected key as an APIError.
func (h *httpSession) connect(apiKey, sessionID string) error {
	if apiKey == "" {
		return &ConnectionError{Provider: h.name, Reason: "missing API key", Err: ErrNoAPIKey}
	}
	h.mu.Lock()
	h.apiKey = apiKey
	h.sessionID = sessionID
	h.connected = true
	h.mu.Unlock()
	return nil
}

// key returns the API key, or ErrNotConnected.
func (h *httpSession) key() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connected {
		return "", ErrNotConnected
	}
	return h.apiKey, nil
}

// doWithRetry performs the request with retry logic. build is called for
// every attempt so the body is fresh; parse turns a non-2xx response into
// an error and closes nothing.
func (h *httpSession) doWithRetry(ctx context.Context, build func() (*http.Request, error), parse func(*http.Response) error) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = parse(resp)
			resp.Body.Close()
			h.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}
