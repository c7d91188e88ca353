package siridb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/siridb/go-siridb-connector/internal/engine"
	"github.com/siridb/go-siridb-connector/internal/protocol"
)

const (
	maxReconnectWaitTime = 60 * time.Second
	maxReconnectTimeout  = 10 * time.Second
	maxWriteRetry        = 120
	reconnectAttempt     = 3
)

// ReconnectingConn is the single-server client: one connection,
// reconnected with exponential backoff on loss, with writes retried
// across reconnects up to maxWriteRetry attempts. Use Cluster instead
// when more than one server is available; this type exists for
// single-server deployments and administrative scripts.
type ReconnectingConn struct {
	host, port          string
	username, password, dbname string

	mu          sync.Mutex
	eng         *engine.Engine
	connected   bool
	closed      bool
	reconnectOn bool
}

// NewReconnectingConn builds a single-server client for host:port.
func NewReconnectingConn(host string, port int, username, password, dbname string) *ReconnectingConn {
	return &ReconnectingConn{
		host: host, port: fmt.Sprintf("%d", port),
		username: username, password: password, dbname: dbname,
	}
}

func (rc *ReconnectingConn) addr() string { return rc.host + ":" + rc.port }

// Connect performs the initial dial and auth handshake and arms the
// reconnect loop for future losses. If the initial dial itself fails,
// the reconnect loop is still started so a later retry isn't required
// to make the connection recoverable.
func (rc *ReconnectingConn) Connect(ctx context.Context) error {
	rc.mu.Lock()
	rc.reconnectOn = true
	rc.mu.Unlock()

	err := rc.dial(ctx, maxReconnectTimeout)
	if err != nil {
		go rc.reconnectLoop()
	}
	return err
}

func (rc *ReconnectingConn) dial(ctx context.Context, timeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eng, err := engine.Dial(dialCtx, rc.addr(), rc.onLost)
	if err != nil {
		return &ConnectError{Msg: err.Error(), Err: err}
	}
	resp, err := eng.Send(dialCtx, protocol.ReqAuth, []any{rc.username, rc.password, rc.dbname}, timeout)
	if _, aerr := translate(resp, err); aerr != nil {
		eng.Close()
		return aerr
	}

	rc.mu.Lock()
	rc.eng = eng
	rc.connected = true
	rc.mu.Unlock()
	return nil
}

func (rc *ReconnectingConn) onLost(exc error) {
	rc.mu.Lock()
	rc.connected = false
	shouldLoop := rc.reconnectOn && !rc.closed
	rc.mu.Unlock()
	if shouldLoop {
		go rc.reconnectLoop()
	}
}

// reconnectLoop retries the dial with exponential backoff (wait
// doubling, capped at maxReconnectWaitTime; per-attempt timeout
// growing by 1s, capped at maxReconnectTimeout) until it succeeds or
// the connection is closed.
func (rc *ReconnectingConn) reconnectLoop() {
	wait := time.Second
	timeout := time.Second
	for {
		rc.mu.Lock()
		closed := rc.closed
		rc.mu.Unlock()
		if closed {
			return
		}

		if err := rc.dial(context.Background(), timeout); err == nil {
			return
		}

		time.Sleep(wait)
		wait *= 2
		if wait > maxReconnectWaitTime {
			wait = maxReconnectWaitTime
		}
		timeout += time.Second
		if timeout > maxReconnectTimeout {
			timeout = maxReconnectTimeout
		}
	}
}

func (rc *ReconnectingConn) engineRef() (*engine.Engine, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.eng, rc.connected
}

// ensureWrite retries a request across reconnects: if disconnected it
// dials directly rather than waiting on the background reconnect loop;
// on ServerError/PoolError/ConnectionError/TimeoutError it retries, forcing a fresh
// dial every reconnectAttempt-th try and otherwise sleeping 1s, giving
// up after maxWriteRetry attempts.
func (rc *ReconnectingConn) ensureWrite(ctx context.Context, tipe protocol.Type, value any, timeout time.Duration) (any, error) {
	for attempt := 1; attempt <= maxWriteRetry; attempt++ {
		eng, connected := rc.engineRef()
		if !connected {
			if err := rc.dial(ctx, maxReconnectTimeout); err != nil {
				select {
				case <-ctx.Done():
					return nil, &ConnectionError{Msg: "not connected"}
				case <-time.After(time.Second):
				}
			}
			continue
		}

		resp, err := eng.Send(ctx, tipe, value, timeout)
		result, terr := translate(resp, err)
		if terr == nil {
			return result, nil
		}

		switch terr.(type) {
		case *ServerError, *PoolError, *ConnectionError, *TimeoutError:
			if attempt%reconnectAttempt == 0 {
				rc.dial(ctx, maxReconnectTimeout)
			} else {
				select {
				case <-ctx.Done():
					return nil, terr
				case <-time.After(time.Second):
				}
			}
			continue
		default:
			return nil, terr
		}
	}
	return nil, &ConnectionError{Msg: fmt.Sprintf("gave up after %d write attempts", maxWriteRetry)}
}

// Query issues a query, retrying across reconnects.
func (rc *ReconnectingConn) Query(ctx context.Context, query string, precision TimePrecision, timeout time.Duration) (any, error) {
	return rc.ensureWrite(ctx, protocol.ReqQuery, []any{query, precision.tag()}, timeout)
}

// Insert issues an insert, retrying across reconnects.
func (rc *ReconnectingConn) Insert(ctx context.Context, series map[string]any, timeout time.Duration) (any, error) {
	return rc.ensureWrite(ctx, protocol.ReqInsert, series, timeout)
}

// Connected reports whether the connection is currently up.
func (rc *ReconnectingConn) Connected() bool {
	_, connected := rc.engineRef()
	return connected
}

// Close stops the reconnect loop and closes the connection.
func (rc *ReconnectingConn) Close() error {
	rc.mu.Lock()
	rc.closed = true
	rc.reconnectOn = false
	eng := rc.eng
	rc.mu.Unlock()
	if eng != nil {
		return eng.Close()
	}
	return nil
}
