package siridb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/siridb/go-siridb-connector/internal/engine"
	"github.com/siridb/go-siridb-connector/internal/protocol"
)

// Endpoint describes one SiriDB server in a cluster's host list: its
// address, its weight in the random-selection pool (1-9, replicated
// weight times), and whether it is a backup server only tried when no
// primary endpoint is available.
type Endpoint struct {
	Host     string
	Port     int
	Weight   int // 1-9
	IsBackup bool

	mu        sync.Mutex
	eng       *engine.Engine
	available bool
	connected bool
}

func (ep *Endpoint) addr() string { return fmt.Sprintf("%s:%d", ep.Host, ep.Port) }

// Addr returns the endpoint's "host:port" address, used as a metrics
// label and in status reporting.
func (ep *Endpoint) Addr() string { return ep.addr() }

// connect dials the endpoint and runs the auth handshake. On success
// the endpoint is marked connected and available and a keep-alive
// loop (if interval > 0) and a connection-lost callback are armed.
func (ep *Endpoint) connect(ctx context.Context, username, password, dbname string, connectTimeout time.Duration, keepAliveInterval, pingTimeout time.Duration, onLost func(*Endpoint, error)) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	eng, err := engine.Dial(dialCtx, ep.addr(), func(exc error) {
		ep.mu.Lock()
		ep.connected = false
		ep.available = false
		ep.mu.Unlock()
		if onLost != nil {
			onLost(ep, exc)
		}
	})
	if err != nil {
		return &ConnectError{Msg: fmt.Sprintf("dial %s: %v", ep.addr(), err), Err: err}
	}

	resp, err := eng.Send(dialCtx, protocol.ReqAuth, []any{username, password, dbname}, connectTimeout)
	if _, aerr := translate(resp, err); aerr != nil {
		eng.Close()
		return aerr
	}

	ep.mu.Lock()
	ep.eng = eng
	ep.connected = true
	ep.available = true
	ep.mu.Unlock()

	if keepAliveInterval > 0 {
		go eng.KeepAlive(context.Background(), keepAliveInterval, pingTimeout)
	}
	return nil
}

// Connected reports whether the endpoint currently has a live,
// authenticated engine.
func (ep *Endpoint) Connected() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.connected
}

// Available reports whether the endpoint should be preferred by
// selection: connected and not serving a transient ERR_SERVER penalty.
func (ep *Endpoint) Available() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.connected && ep.available
}

// setAvailable flips the availability flag without touching the
// connected flag, used both by the ERR_SERVER penalty timer and by its
// expiry.
func (ep *Endpoint) setAvailable(v bool) {
	ep.mu.Lock()
	ep.available = v
	ep.mu.Unlock()
}

// markUnavailable marks the endpoint unavailable for inactiveTime and
// schedules it to become available again.
func (ep *Endpoint) markUnavailable(inactiveTime time.Duration) {
	ep.setAvailable(false)
	time.AfterFunc(inactiveTime, func() { ep.setAvailable(true) })
}

func (ep *Endpoint) engineRef() *engine.Engine {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.eng
}

// send issues one request and translates the result, used by both
// Query and Insert.
func (ep *Endpoint) send(ctx context.Context, tipe protocol.Type, value any, timeout time.Duration) (any, error) {
	eng := ep.engineRef()
	if eng == nil {
		return nil, &ConnectionError{Msg: fmt.Sprintf("endpoint %s is not connected", ep.addr())}
	}
	resp, err := eng.Send(ctx, tipe, value, timeout)
	return translate(resp, err)
}

// close tears down the endpoint's engine, if any.
func (ep *Endpoint) close() {
	ep.mu.Lock()
	eng := ep.eng
	ep.eng = nil
	ep.connected = false
	ep.available = false
	ep.mu.Unlock()
	if eng != nil {
		eng.Close()
	}
}
