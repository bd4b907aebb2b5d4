package cql

import (
	"context"
	"fmt"
	"sync"

	"github.com/twmb/cql-go/pkg/cql/policy"
	"github.com/twmb/cql-go/pkg/cqlproto"
	"github.com/twmb/cql-go/pkg/cqlproto/stream"
)

// Client is the user-facing handle for a cluster: a set of per-host
// Connection pools, the configured policies, the prepared-statement cache,
// and the EVENT fan-out, grounded on kgo.Client's role as the single
// object a caller constructs and drives requests through.
type Client struct {
	cfg cfg

	mu    sync.RWMutex
	pools map[string]*hostPool
	hosts []policy.HostInfo

	prepared *PreparedCache

	events  chan cqlproto.Event
	closeCh chan struct{}
	closeOnce sync.Once
}

// NewClient builds a Client from opts and eagerly dials one connection to
// every configured host so construction fails fast if the cluster is
// entirely unreachable; individual host failures beyond that are handled
// by the Host Pool's reconnection policy, not here.
func NewClient(opts ...Opt) (*Client, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if len(c.hosts) == 0 {
		return nil, fmt.Errorf("cql: at least one host required (WithHosts)")
	}
	cl := &Client{
		cfg:     c,
		pools:   make(map[string]*hostPool),
		events:  make(chan cqlproto.Event, 64),
		closeCh: make(chan struct{}),
	}
	cl.prepared = newPreparedCache(c.preparedCacheSize)
	for _, h := range c.hosts {
		cl.hosts = append(cl.hosts, policy.HostInfo{Addr: h, Up: true})
		cl.pools[h] = newHostPool(cl, h)
	}

	var lastErr error
	connected := 0
	for _, h := range c.hosts {
		ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
		_, err := cl.pools[h].borrow(ctx)
		cancel()
		if err != nil {
			lastErr = err
			cl.cfg.logger.Log(LogLevelWarn, "initial dial failed", "host", h, "err", err)
			continue
		}
		connected++
	}
	if connected == 0 {
		cl.Close()
		return nil, fmt.Errorf("cql: could not reach any configured host: %w", lastErr)
	}
	return cl, nil
}

func (cl *Client) poolFor(host string) *hostPool {
	cl.mu.RLock()
	p, ok := cl.pools[host]
	cl.mu.RUnlock()
	if ok {
		return p
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if p, ok := cl.pools[host]; ok {
		return p
	}
	p = newHostPool(cl, host)
	cl.pools[host] = p
	cl.hosts = append(cl.hosts, policy.HostInfo{Addr: host, Up: true})
	return p
}

// snapshotHosts returns the current up/down view of every known host, the
// consistent-snapshot contract spec.md §5 requires borrow()/query-plan
// construction to see.
func (cl *Client) snapshotHosts() []policy.HostInfo {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	out := make([]policy.HostInfo, len(cl.hosts))
	for i, h := range cl.hosts {
		if p, ok := cl.pools[h.Addr]; ok {
			h.Up = p.isUp()
		}
		out[i] = h
	}
	return out
}

// dispatchEvent routes a server-initiated EVENT item (stream id ==
// cqlproto.EventStreamID) from a Connection's read loop to Events(). It
// never blocks the read loop: a full event channel drops the event, since
// an event subscriber that can't keep up shouldn't stall request traffic.
func (cl *Client) dispatchEvent(it stream.Item) {
	select {
	case cl.events <- it.Event:
	default:
		cl.cfg.logger.Log(LogLevelWarn, "event channel full, dropping event", "kind", it.Event.Kind)
	}
}

// Events returns the channel server TOPOLOGY_CHANGE/STATUS_CHANGE/
// SCHEMA_CHANGE notifications are delivered on, for the (out-of-scope)
// topology-discovery collaborator to subscribe to.
func (cl *Client) Events() <-chan cqlproto.Event { return cl.events }

// Register subscribes every connection pool's connections to the given
// EVENT types; new connections dialed afterward are not automatically
// registered; callers needing this for every connection should call
// Register again after topology changes, a simplification acceptable
// since cluster topology discovery itself is out of scope.
func (cl *Client) Register(ctx context.Context, eventTypes []string) error {
	cl.mu.RLock()
	pools := make([]*hostPool, 0, len(cl.pools))
	for _, p := range cl.pools {
		pools = append(pools, p)
	}
	cl.mu.RUnlock()
	req := &cqlproto.RegisterRequest{EventTypes: eventTypes}
	var lastErr error
	for _, p := range pools {
		conn, err := p.borrow(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := conn.roundTrip(ctx, req, false); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close tears down every host pool's connections.
func (cl *Client) Close() error {
	cl.closeOnce.Do(func() { close(cl.closeCh) })
	cl.mu.RLock()
	pools := make([]*hostPool, 0, len(cl.pools))
	for _, p := range cl.pools {
		pools = append(pools, p)
	}
	cl.mu.RUnlock()
	for _, p := range pools {
		p.close()
	}
	return nil
}
