// Package siridb is a client for SiriDB, a clustered time-series
// database. It speaks SiriDB's framed binary wire protocol directly:
// connect, authenticate, issue queries and inserts, and fail over
// across a weighted pool of servers.
//
// Connect builds and connects a Cluster in one call. For a single,
// non-pooled server use NewReconnectingConn instead. Both block the
// calling goroutine; there is no separate asynchronous variant, since
// Go's goroutines make one blocking API sufficient.
package siridb

import (
	"context"
	"fmt"
	"time"

	"github.com/siridb/go-siridb-connector/internal/engine"
	"github.com/siridb/go-siridb-connector/internal/protocol"
)

// Connect builds a Cluster from cfg, dials every endpoint, and arms
// the background reconnect loop. It returns once the initial connect
// attempt has settled, successfully or not; a Cluster with at least
// one reachable endpoint is usable even if others are still retrying.
func Connect(ctx context.Context, cfg ClusterConfig) (*Cluster, error) {
	c, err := NewCluster(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ServerInfo opens a one-shot, unauthenticated connection to host:port,
// requests server info, and closes: no PID table entry survives past
// the single request, and nothing is retried.
func ServerInfo(ctx context.Context, host string, port int, timeout time.Duration) (any, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eng, err := engine.Dial(dialCtx, addr, nil)
	if err != nil {
		return nil, &ConnectError{Msg: err.Error(), Err: err}
	}
	defer eng.Close()

	resp, err := eng.Send(dialCtx, protocol.ReqInfo, nil, timeout)
	return translate(resp, err)
}
