package stt

import (
	"context"
	"log/slog"
	"time"
)

// keepAlive calls fn every interval until ctx is done. Failures are logged
// and the loop keeps going; the read side notices a dead stream on its own.
func keepAlive(ctx context.Context, interval time.Duration, logger *slog.Logger, fn func() error) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(); err != nil {
				logger.Debug("keep-alive failed", "error", err)
			}
		}
	}
}
