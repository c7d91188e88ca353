// Package engine drives a single SiriDB TCP connection: PID allocation,
// the pending-request table, per-request timeouts, and the receive-side
// framing pipeline. It has no notion of clusters or retries — those live
// in the root siridb package, which pairs an Engine with a protocol.Type
// -> error-kind translation the engine itself does not need to know.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/siridb/go-siridb-connector/internal/protocol"
)

// Response is the decoded result of a request: the response type code
// (so the caller can tell success from the various ERR_* kinds) and its
// decoded value (nil for NONE-kind payloads).
type Response struct {
	Type  protocol.Type
	Value any
}

// LostHandler is invoked once when the connection is closed or the
// peer resets it: from the receive goroutine, or from the caller of
// Close if Close gets there first. exc is nil for a clean EOF or Close.
type LostHandler func(exc error)

// Engine owns one net.Conn and the request/response bookkeeping for it.
// It is safe for concurrent use by multiple goroutines issuing Send.
type Engine struct {
	conn net.Conn

	writeMu sync.Mutex // serializes frame writes and pid allocation
	pid     uint16

	mu      sync.Mutex
	pending map[uint16]*pendingRequest
	closed  bool

	lastRespMu sync.Mutex
	lastResp   time.Time

	onLost LostHandler
	done   chan struct{}
}

type pendingRequest struct {
	ch    chan result
	timer *time.Timer
	tipe  protocol.Type
}

type result struct {
	resp Response
	err  error
}

// Dial opens a TCP connection and starts its receive loop. onLost, if
// non-nil, fires exactly once when the connection ends for any reason.
func Dial(ctx context.Context, addr string, onLost LostHandler) (*Engine, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", addr, err)
	}
	return New(conn, onLost), nil
}

// New wraps an already-connected net.Conn in an Engine and starts its
// receive loop. Exposed so tests can drive an Engine over a net.Pipe
// instead of a real socket.
func New(conn net.Conn, onLost LostHandler) *Engine {
	e := &Engine{
		conn:     conn,
		pending:  make(map[uint16]*pendingRequest),
		lastResp: time.Now(),
		onLost:   onLost,
		done:     make(chan struct{}),
	}
	go e.recvLoop()
	return e
}

// Addr returns the remote address this engine is connected to.
func (e *Engine) Addr() string {
	return e.conn.RemoteAddr().String()
}

// LastResponseTime reports when a response (of any kind) was last
// received on this connection, used by the keep-alive idle check.
func (e *Engine) LastResponseTime() time.Time {
	e.lastRespMu.Lock()
	defer e.lastRespMu.Unlock()
	return e.lastResp
}

func (e *Engine) touchLastResp() {
	e.lastRespMu.Lock()
	e.lastResp = time.Now()
	e.lastRespMu.Unlock()
}

// Send packs value per the request type's payload kind, writes a
// framed package, and blocks until a response with a matching PID
// arrives, ctx is cancelled, or timeout elapses — whichever first.
// The returned error is encoding-, transport- or timeout-level only; it is the
// caller's job to inspect Response.Type against the error-type set and
// translate it into a domain error kind.
func (e *Engine) Send(ctx context.Context, tipe protocol.Type, value any, timeout time.Duration) (Response, error) {
	payload, err := protocol.PackRequest(tipe, value)
	if err != nil {
		return Response{}, fmt.Errorf("engine: %w", err)
	}

	e.writeMu.Lock()
	e.pid++
	pid := e.pid
	frame, err := protocol.EncodeFrame(pid, tipe, payload)
	if err != nil {
		e.writeMu.Unlock()
		return Response{}, fmt.Errorf("engine: %w", err)
	}

	pr := &pendingRequest{ch: make(chan result, 1), tipe: tipe}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.writeMu.Unlock()
		return Response{}, fmt.Errorf("engine: send on closed connection")
	}
	if _, live := e.pending[pid]; live {
		// The PID space (uint16) wrapped around onto a slot whose
		// request is still awaiting a response. Refuse rather than
		// overwrite it and orphan the earlier awaiter's channel.
		e.mu.Unlock()
		e.writeMu.Unlock()
		return Response{}, fmt.Errorf("engine: pid %d still awaiting a response, refusing to send", pid)
	}
	e.pending[pid] = pr
	e.mu.Unlock()

	pr.timer = time.AfterFunc(timeout, func() { e.timeoutRequest(pid, tipe) })

	if _, err := e.conn.Write(frame); err != nil {
		e.writeMu.Unlock()
		e.removePending(pid)
		return Response{}, fmt.Errorf("engine: write: %w", err)
	}
	e.writeMu.Unlock()

	select {
	case r := <-pr.ch:
		return r.resp, r.err
	case <-ctx.Done():
		e.removePending(pid)
		return Response{}, ctx.Err()
	}
}

func (e *Engine) removePending(pid uint16) *pendingRequest {
	e.mu.Lock()
	pr, ok := e.pending[pid]
	if ok {
		delete(e.pending, pid)
	}
	e.mu.Unlock()
	if ok && pr.timer != nil {
		pr.timer.Stop()
	}
	return pr
}

// TimeoutError indicates a request's per-call timeout elapsed before a
// response with its PID arrived. A distinct type so callers can detect
// it with errors.As rather than string-matching fmt.Errorf output.
type TimeoutError struct {
	PID  uint16
	Type protocol.Type
}

func (te *TimeoutError) Error() string {
	return fmt.Sprintf("engine: request timed out on pid %d (%s)", te.PID, te.Type)
}

func (e *Engine) timeoutRequest(pid uint16, tipe protocol.Type) {
	pr := e.removePending(pid)
	if pr == nil {
		return
	}
	pr.ch <- result{err: &TimeoutError{PID: pid, Type: tipe}}
}

// recvLoop is the sole reader of the connection. It feeds bytes to the
// frame parser and dispatches completed frames to their pending
// requests by PID, exactly as _on_package_received does.
func (e *Engine) recvLoop() {
	var parser protocol.Parser
	buf := make([]byte, 64*1024)

	var lostErr error
	for {
		n, err := e.conn.Read(buf)
		if n > 0 {
			frames, perr := parser.Feed(buf[:n])
			for _, f := range frames {
				e.dispatch(f)
			}
			if perr != nil {
				lostErr = perr
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				lostErr = err
			}
			break
		}
	}
	e.shutdown(lostErr)
}

func (e *Engine) dispatch(f protocol.Frame) {
	e.touchLastResp()
	pr := e.removePending(f.PID)
	if pr == nil {
		return // unknown/expired pid: drop
	}
	value, err := protocol.UnpackResponse(f.Type, f.Payload)
	if err != nil {
		pr.ch <- result{err: fmt.Errorf("engine: %w", err)}
		return
	}
	pr.ch <- result{resp: Response{Type: f.Type, Value: value}}
}

// shutdown fails every still-pending request with a connection-lost
// error, marks the engine closed, and fires the lost handler once.
func (e *Engine) shutdown(exc error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending := e.pending
	e.pending = make(map[uint16]*pendingRequest)
	e.mu.Unlock()

	for pid, pr := range pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.ch <- result{err: fmt.Errorf("engine: connection lost before response on pid %d", pid)}
	}

	close(e.done)
	if e.onLost != nil {
		e.onLost(exc)
	}
}

// Close tears down the connection and fails any still-pending request.
// Idempotent: calling it more than once, or racing it with a peer
// reset, is safe.
func (e *Engine) Close() error {
	err := e.conn.Close()
	e.shutdown(nil)
	return err
}

// Done is closed once the engine has shut down (the receive loop ended
// or Close was called) and every pending request has been resolved.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}
