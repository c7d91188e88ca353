package siridb

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/siridb/go-siridb-connector/internal/metrics"
	"github.com/siridb/go-siridb-connector/internal/protocol"
)

const (
	// DefaultMaxWaitRetry caps the exponential reconnect backoff.
	DefaultMaxWaitRetry = 90 * time.Second
	// DefaultConnectTimeout bounds a single connect+auth attempt.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultInactiveTime is how long an ERR_SERVER-penalized endpoint
	// stays unavailable before it is retried.
	DefaultInactiveTime = 30 * time.Second
	// DefaultKeepAliveInterval is the idle threshold before a PING probe.
	DefaultKeepAliveInterval = 45 * time.Second
	// DefaultPingTimeout bounds a keep-alive PING.
	DefaultPingTimeout = 15 * time.Second
)

// EndpointSpec describes one entry in a cluster's host list, as
// supplied by the caller or loaded from configuration.
type EndpointSpec struct {
	Host     string
	Port     int
	Weight   int // 1-9; defaults to 1
	IsBackup bool
}

// ClusterConfig configures a Cluster.
type ClusterConfig struct {
	Username string
	Password string
	DBName   string
	Hostlist []EndpointSpec

	KeepAlive         bool
	ConnectTimeout    time.Duration
	InactiveTime      time.Duration
	MaxWaitRetry      time.Duration
	KeepAliveInterval time.Duration
	PingTimeout       time.Duration

	// Metrics, if set, receives endpoint state, latency and error
	// observations. Optional — a nil Metrics disables instrumentation.
	Metrics *metrics.Collector
}

func (c ClusterConfig) withDefaults() ClusterConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.InactiveTime <= 0 {
		c.InactiveTime = DefaultInactiveTime
	}
	if c.MaxWaitRetry <= 0 {
		c.MaxWaitRetry = DefaultMaxWaitRetry
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	return c
}

// Cluster is a weighted multi-server SiriDB client: it holds a
// selection pool built by replicating each endpoint by its weight,
// prefers non-backup endpoints over backups, retries queries and
// inserts across endpoints on transient failure, and maintains a
// background reconnect loop with exponential backoff.
type Cluster struct {
	cfg ClusterConfig

	mu           sync.Mutex
	endpoints    []*Endpoint // one entry per configured host
	pool         []*Endpoint // endpoints replicated Weight times
	retryConnect bool
	loopRunning  bool
	closed       bool
}

// NewCluster builds a Cluster from configuration. It does not connect;
// call Connect to dial every endpoint and arm the reconnect loop.
func NewCluster(cfg ClusterConfig) (*Cluster, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Hostlist) == 0 {
		return nil, fmt.Errorf("siridb: cluster requires at least one endpoint")
	}

	c := &Cluster{cfg: cfg}
	for _, spec := range cfg.Hostlist {
		w := spec.Weight
		if w < 1 {
			w = 1
		}
		if w > 9 {
			return nil, fmt.Errorf("siridb: endpoint %s:%d weight %d out of range 1-9", spec.Host, spec.Port, w)
		}
		ep := &Endpoint{Host: spec.Host, Port: spec.Port, Weight: w, IsBackup: spec.IsBackup}
		c.endpoints = append(c.endpoints, ep)
		for i := 0; i < w; i++ {
			c.pool = append(c.pool, ep)
		}
	}
	return c, nil
}

// Connect dials every endpoint in parallel, returns once all attempts
// have finished (errors on individual endpoints are not fatal — a
// cluster is usable as soon as one endpoint is up), and starts the
// background reconnect loop for whichever endpoints failed.
func (c *Cluster) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.retryConnect = true
	c.mu.Unlock()

	c.connectDisconnected(ctx)

	anyUp := false
	for _, ep := range c.endpoints {
		if ep.Connected() {
			anyUp = true
			break
		}
	}

	c.triggerConnectLoop()

	if !anyUp {
		return &PoolError{Msg: "no endpoint could be reached"}
	}
	return nil
}

// connectDisconnected attempts, in parallel, to connect every endpoint
// that is not currently connected.
func (c *Cluster) connectDisconnected(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ep := range c.endpoints {
		if ep.Connected() {
			continue
		}
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			err := ep.connect(ctx, c.cfg.Username, c.cfg.Password, c.cfg.DBName,
				c.cfg.ConnectTimeout,
				keepAliveIntervalOrZero(c.cfg), c.cfg.PingTimeout,
				c.onEndpointLost)
			if c.cfg.Metrics != nil {
				if err != nil {
					var authErr *AuthenticationError
					if errors.As(err, &authErr) {
						c.cfg.Metrics.AuthFailure()
					}
				}
				c.cfg.Metrics.SetEndpointState(ep.Addr(), ep.Connected(), ep.Available())
			}
		}(ep)
	}
	wg.Wait()
}

func keepAliveIntervalOrZero(cfg ClusterConfig) time.Duration {
	if cfg.KeepAlive {
		return cfg.KeepAliveInterval
	}
	return 0
}

// onEndpointLost is the connection-lost callback wired into every
// endpoint: it records the endpoint as down and re-arms the reconnect
// loop.
func (c *Cluster) onEndpointLost(ep *Endpoint, exc error) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SetEndpointState(ep.Addr(), false, false)
	}
	c.triggerConnectLoop()
}

// triggerConnectLoop spawns the background reconnect loop if it is not
// already running and the cluster hasn't been told to stop retrying.
func (c *Cluster) triggerConnectLoop() {
	c.mu.Lock()
	if c.closed || !c.retryConnect || c.loopRunning {
		c.mu.Unlock()
		return
	}
	c.loopRunning = true
	c.mu.Unlock()

	go c.connectLoop()
}

// connectLoop retries connecting every disconnected endpoint with
// exponential backoff, doubling from 1s and capping at MaxWaitRetry,
// until every endpoint is connected or the cluster is closed.
func (c *Cluster) connectLoop() {
	defer func() {
		c.mu.Lock()
		c.loopRunning = false
		c.mu.Unlock()
	}()

	wait := time.Second
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		anyDisconnected := false
		for _, ep := range c.endpoints {
			if !ep.Connected() {
				anyDisconnected = true
			}
		}
		if !anyDisconnected {
			return
		}

		time.Sleep(wait)
		if c.cfg.Metrics != nil {
			for _, ep := range c.endpoints {
				if !ep.Connected() {
					c.cfg.Metrics.ReconnectAttempt(ep.Addr(), wait)
				}
			}
		}
		wait *= 2
		if wait > c.cfg.MaxWaitRetry {
			wait = c.cfg.MaxWaitRetry
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		c.connectDisconnected(ctx)
		cancel()
	}
}

// pick selects one endpoint from the weighted pool, preferring
// available non-backup endpoints over available backups. If
// tryUnavailable is true and nothing is available, it falls back to a
// uniform random choice among endpoints that are merely connected,
// ignoring the primary/backup distinction entirely. Returns PoolError
// if the pool is exhausted.
func (c *Cluster) pick(tryUnavailable bool) (*Endpoint, error) {
	candidates := make([]*Endpoint, len(c.pool))
	copy(candidates, c.pool)
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	var availablePrimary, availableBackup, connected []*Endpoint
	seen := make(map[*Endpoint]bool)
	for _, ep := range candidates {
		switch {
		case ep.Available() && !ep.IsBackup:
			availablePrimary = append(availablePrimary, ep)
		case ep.Available() && ep.IsBackup:
			availableBackup = append(availableBackup, ep)
		case ep.Connected() && !seen[ep]:
			seen[ep] = true
			connected = append(connected, ep)
		}
	}

	if len(availablePrimary) > 0 {
		return availablePrimary[0], nil
	}
	if len(availableBackup) > 0 {
		return availableBackup[0], nil
	}
	if tryUnavailable && len(connected) > 0 {
		return connected[rand.Intn(len(connected))], nil
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.PoolExhausted()
	}
	return nil, &PoolError{Msg: "no available connections found"}
}

// Query sends a query to the cluster, trying an unavailable-but-
// connected endpoint on the very first attempt if nothing is strictly
// available, and retrying on ServerError/PoolError/ConnectionError
// until ctx is done.
func (c *Cluster) Query(ctx context.Context, query string, precision TimePrecision, timeout time.Duration) (any, error) {
	return c.retryingSend(ctx, protocol.ReqQuery, []any{query, precision.tag()}, timeout, true)
}

// Insert sends an insert to the cluster. Unlike Query it never falls
// back to an unavailable endpoint on the first attempt.
func (c *Cluster) Insert(ctx context.Context, series map[string]any, timeout time.Duration) (any, error) {
	return c.retryingSend(ctx, protocol.ReqInsert, series, timeout, false)
}

func (c *Cluster) retryingSend(ctx context.Context, tipe protocol.Type, value any, timeout time.Duration, tryUnavailableFirst bool) (any, error) {
	first := true
	for {
		ep, err := c.pick(first && tryUnavailableFirst)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(2 * time.Second):
				first = false
				continue
			}
		}
		first = false

		start := time.Now()
		result, err := ep.send(ctx, tipe, value, timeout)
		if err == nil {
			if c.cfg.Metrics != nil {
				if tipe == protocol.ReqInsert {
					c.cfg.Metrics.InsertCompleted(ep.Addr(), time.Since(start))
				} else {
					c.cfg.Metrics.QueryCompleted(ep.Addr(), time.Since(start))
				}
			}
			return result, nil
		}
		if c.cfg.Metrics != nil {
			kind := strings.TrimPrefix(fmt.Sprintf("%T", err), "*siridb.")
			if tipe == protocol.ReqInsert {
				c.cfg.Metrics.InsertFailed(ep.Addr(), kind)
			} else {
				c.cfg.Metrics.QueryFailed(ep.Addr(), kind)
			}
		}

		switch err.(type) {
		case *ServerError:
			ep.markUnavailable(c.cfg.InactiveTime)
			select {
			case <-ctx.Done():
				return nil, err
			default:
				continue
			}
		case *PoolError:
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(2 * time.Second):
				continue
			}
		case *ConnectionError:
			select {
			case <-ctx.Done():
				return nil, err
			default:
				continue
			}
		default:
			return nil, err
		}
	}
}

// Close stops the reconnect loop and closes every endpoint connection.
func (c *Cluster) Close() error {
	c.mu.Lock()
	c.closed = true
	c.retryConnect = false
	c.mu.Unlock()

	for _, ep := range c.endpoints {
		ep.close()
	}
	return nil
}

// Endpoints returns a snapshot of the cluster's configured endpoints,
// for status reporting (internal/api, cmd/siridb-top).
func (c *Cluster) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}
