package siridb

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/siridb/go-siridb-connector/internal/protocol"
)

// startFakeServer listens on localhost and runs handler for every
// accepted connection in its own goroutine, the same shape as the
// fake listeners proxy/integration_test.go spins up for PG/MySQL.
func startFakeServer(t *testing.T, handler func(conn net.Conn)) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handler(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func readFrame(conn net.Conn, p *protocol.Parser) (protocol.Frame, error) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return protocol.Frame{}, err
		}
		frames, err := p.Feed(buf[:n])
		if err != nil {
			return protocol.Frame{}, err
		}
		if len(frames) > 0 {
			return frames[0], nil
		}
	}
}

// authSuccessHandler accepts a connection, replies RES_AUTH_SUCCESS to
// the first frame, then hands every subsequent frame to onFrame until
// the peer disconnects.
func authSuccessHandler(onFrame func(conn net.Conn, f protocol.Frame)) func(net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		var p protocol.Parser
		f, err := readFrame(conn, &p)
		if err != nil {
			return
		}
		resp, _ := protocol.EncodeFrame(f.PID, protocol.ResAuthSuccess, nil)
		conn.Write(resp)
		if onFrame == nil {
			return
		}
		for {
			fr, err := readFrame(conn, &p)
			if err != nil {
				return
			}
			onFrame(conn, fr)
		}
	}
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi(%q): %v", portStr, err)
	}
	return host, port
}

func TestConnectAndQuery(t *testing.T) {
	addr, stop := startFakeServer(t, authSuccessHandler(func(conn net.Conn, f protocol.Frame) {
		if f.Type != protocol.ReqQuery {
			return
		}
		payload, _ := protocol.Encode(map[string]any{"series-1": []any{}})
		resp, _ := protocol.EncodeFrame(f.PID, protocol.ResQuery, payload)
		conn.Write(resp)
	}))
	defer stop()

	host, port := hostPort(t, addr)
	cluster, err := Connect(context.Background(), ClusterConfig{
		Username: "u", Password: "p", DBName: "db",
		Hostlist: []EndpointSpec{{Host: host, Port: port, Weight: 1}},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cluster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := cluster.Query(ctx, "select * from series-1", Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if _, ok := v.(map[string]any); !ok {
		t.Errorf("expected map result, got %#v", v)
	}
}

func TestConnectAuthFailure(t *testing.T) {
	addr, stop := startFakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		var p protocol.Parser
		f, err := readFrame(conn, &p)
		if err != nil {
			return
		}
		payload, _ := protocol.Encode(map[string]any{"error_msg": "invalid credentials"})
		resp, _ := protocol.EncodeFrame(f.PID, protocol.ErrAuthCredentials, payload)
		conn.Write(resp)
	})
	defer stop()

	host, port := hostPort(t, addr)
	_, err := Connect(context.Background(), ClusterConfig{
		Username: "u", Password: "bad", DBName: "db",
		Hostlist: []EndpointSpec{{Host: host, Port: port, Weight: 1}},
	})
	if err == nil {
		t.Fatal("expected connect to fail")
	}
	var poolErr *PoolError
	if !errors.As(err, &poolErr) {
		t.Errorf("expected *PoolError (no endpoint reachable), got %#v", err)
	}
}

func TestQueryErrorNoRetry(t *testing.T) {
	addr, stop := startFakeServer(t, authSuccessHandler(func(conn net.Conn, f protocol.Frame) {
		if f.Type != protocol.ReqQuery {
			return
		}
		payload, _ := protocol.Encode(map[string]any{"error_msg": "syntax error"})
		resp, _ := protocol.EncodeFrame(f.PID, protocol.ErrQuery, payload)
		conn.Write(resp)
	}))
	defer stop()

	host, port := hostPort(t, addr)
	cluster, err := Connect(context.Background(), ClusterConfig{
		Username: "u", Password: "p", DBName: "db",
		Hostlist: []EndpointSpec{{Host: host, Port: port, Weight: 1}},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cluster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = cluster.Query(ctx, "not valid siridb", None, time.Second)
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *QueryError, got %#v", err)
	}

	eps := cluster.Endpoints()
	if !eps[0].Available() {
		t.Error("endpoint should remain available after a QueryError")
	}
}

func TestInsertOverflowNoRetry(t *testing.T) {
	addr, stop := startFakeServer(t, authSuccessHandler(func(conn net.Conn, f protocol.Frame) {
		if f.Type != protocol.ReqInsert {
			return
		}
		t.Error("server should never see an insert carrying an out-of-range integer")
	}))
	defer stop()

	host, port := hostPort(t, addr)
	cluster, err := Connect(context.Background(), ClusterConfig{
		Username: "u", Password: "p", DBName: "db",
		Hostlist: []EndpointSpec{{Host: host, Port: port, Weight: 1}},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cluster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	series := map[string]any{"series-1": []any{[]any{int64(1 << 62), 1.0}}}
	_, err = cluster.Insert(ctx, series, time.Second)
	var oerr *OverflowError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected *OverflowError, got %#v", err)
	}
}

func TestClusterFailover(t *testing.T) {
	addrA, stopA := startFakeServer(t, authSuccessHandler(func(conn net.Conn, f protocol.Frame) {
		if f.Type != protocol.ReqQuery {
			return
		}
		payload, _ := protocol.Encode(map[string]any{"error_msg": "server busy"})
		resp, _ := protocol.EncodeFrame(f.PID, protocol.ErrServer, payload)
		conn.Write(resp)
	}))
	defer stopA()

	addrB, stopB := startFakeServer(t, authSuccessHandler(func(conn net.Conn, f protocol.Frame) {
		if f.Type != protocol.ReqQuery {
			return
		}
		payload, _ := protocol.Encode(map[string]any{"ok": true})
		resp, _ := protocol.EncodeFrame(f.PID, protocol.ResQuery, payload)
		conn.Write(resp)
	}))
	defer stopB()

	hostA, portA := hostPort(t, addrA)
	hostB, portB := hostPort(t, addrB)
	cluster, err := Connect(context.Background(), ClusterConfig{
		Username: "u", Password: "p", DBName: "db",
		InactiveTime: 50 * time.Millisecond,
		Hostlist: []EndpointSpec{
			{Host: hostA, Port: portA, Weight: 1},
			{Host: hostB, Port: portB, Weight: 1},
		},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cluster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for i := 0; i < 4; i++ {
		v, err := cluster.Query(ctx, "select *", None, time.Second)
		if err == nil {
			if m, ok := v.(map[string]any); ok && m["ok"] == true {
				return
			}
		}
	}
	t.Fatal("expected query to eventually succeed on endpoint B after failover")
}
