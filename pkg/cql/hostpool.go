package cql

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// hostPool owns every Connection to a single host, grounded on kgo's
// broker.go connection-map + loadConnection pattern: borrow returns an
// existing live connection when one is idle, dials a fresh one (up to
// connsPerHost) otherwise, and falls back to the least-loaded live
// connection once the pool is full. Generalized from the
// teacher's "one connection per request class" split to "N identical
// connections per host", since CQL has no per-class connection affinity.
type hostPool struct {
	cl   *Client
	host string

	mu    sync.Mutex
	conns []*Connection
	up    bool

	reconnectAttempt int
	reconnecting     bool
}

func newHostPool(cl *Client, host string) *hostPool {
	return &hostPool{cl: cl, host: host, up: true}
}

// borrow returns the first live Connection with no outstanding stream ids.
// If there is none, it dials a new one when the pool is under its configured
// size, and otherwise (or when that dial fails) returns the least-loaded live
// Connection. Connections are not rotated round-robin: the first idle one in
// pool order is always chosen.
func (p *hostPool) borrow(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	live := p.conns[:0]
	for _, c := range p.conns {
		if !c.IsDead() {
			live = append(live, c)
		}
	}
	p.conns = live
	var best *Connection
	bestOutstanding := -1
	for _, c := range p.conns {
		n := c.streamIDs.Outstanding()
		if n == 0 {
			p.mu.Unlock()
			return c, nil
		}
		if bestOutstanding < 0 || n < bestOutstanding {
			best, bestOutstanding = c, n
		}
	}
	needDial := len(p.conns) < p.cl.cfg.connsPerHost
	p.mu.Unlock()

	if needDial {
		conn, err := dialConnection(ctx, p.cl, p.host)
		if err != nil {
			p.onDialFailure(err)
			if best != nil {
				return best, nil
			}
			return nil, fmt.Errorf("cql: %s: %w", p.host, err)
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.up = true
		p.reconnectAttempt = 0
		p.mu.Unlock()
		return conn, nil
	}
	if best == nil {
		return nil, fmt.Errorf("cql: %s: %w", p.host, ErrConnectionDefunct)
	}
	return best, nil
}

// onDialFailure marks the host down and schedules a reconnection attempt
// per the configured Reconnection Policy (spec.md §4.4).
func (p *hostPool) onDialFailure(err error) {
	p.mu.Lock()
	p.up = false
	already := p.reconnecting
	p.reconnecting = true
	attempt := p.reconnectAttempt
	p.reconnectAttempt++
	p.mu.Unlock()
	if already {
		return
	}
	delay := p.cl.cfg.reconnection.NextDelay(attempt)
	p.cl.cfg.logger.Log(LogLevelWarn, "host dial failed, scheduling reconnect", "host", p.host, "err", err, "delay", delay)
	go p.reconnectAfter(delay)
}

func (p *hostPool) reconnectAfter(delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-p.cl.closeCh:
		return
	case <-t.C:
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cl.cfg.connectTimeout)
	defer cancel()
	conn, err := dialConnection(ctx, p.cl, p.host)
	p.mu.Lock()
	p.reconnecting = false
	p.mu.Unlock()
	if err != nil {
		p.onDialFailure(err)
		return
	}
	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.up = true
	p.reconnectAttempt = 0
	p.mu.Unlock()
}

func (p *hostPool) isUp() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.up
}

func (p *hostPool) close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
