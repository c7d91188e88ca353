package engine

import (
	"context"
	"time"

	"github.com/siridb/go-siridb-connector/internal/protocol"
)

// KeepAlive runs the idle-probe loop for an engine: every interval it
// checks how long it has been since the last response; if the
// connection has been idle for a full interval it sends a PING with
// pingTimeout and closes the engine on failure. It returns when ctx is
// cancelled or the engine's Done channel closes, whichever comes
// first.
func (e *Engine) KeepAlive(ctx context.Context, interval, pingTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.Done():
			return
		case <-ticker.C:
			idleFor := time.Since(e.LastResponseTime())
			if idleFor < interval {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			_, err := e.Send(pingCtx, protocol.ReqPing, nil, pingTimeout)
			cancel()
			if err != nil {
				e.Close()
				return
			}
		}
	}
}
