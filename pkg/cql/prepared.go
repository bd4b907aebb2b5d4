package cql

import (
	"context"
	"sync"

	"github.com/twmb/cql-go/pkg/cqlproto"
	"github.com/twmb/cql-go/pkg/cqlproto/stream"
)

// PreparedStatement is the client-side handle for a PREPAREd query: the
// opaque query id the server returned plus enough of the original request
// to re-prepare it on a host that replies UNPREPARED (spec.md §4.5's
// "Prepare handling").
type PreparedStatement struct {
	Query    string
	Keyspace string

	mu     sync.RWMutex
	ids    map[string][]byte // host -> query id, may differ per host
	vars   cqlproto.RowsMetadata
	result cqlproto.RowsMetadata
}

func (p *PreparedStatement) idFor(host string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.ids[host]
	return id, ok
}

func (p *PreparedStatement) setID(host string, id []byte, body cqlproto.PreparedBody) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ids == nil {
		p.ids = make(map[string][]byte)
	}
	p.ids[host] = id
	p.vars = body.VarsMetadata
	p.result = body.ResultMetadata
}

// VarsMetadata reports the bound-variable column descriptors the server
// returned for the most recent PREPARE of this statement.
func (p *PreparedStatement) VarsMetadata() cqlproto.RowsMetadata {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vars
}

// coalesceEntry is one in-flight PREPARE; every caller racing to prepare the
// same (query, host) waits on the same entry instead of issuing duplicate
// network PREPAREs (spec.md §5's "Shared resources" coalescing rule).
type coalesceEntry struct {
	done chan struct{}
	id   []byte
	body cqlproto.PreparedBody
	err  error
}

// PreparedCache is the client-side cache named in spec.md §5 but never
// assigned a concrete home: one PreparedStatement per (query, keyspace),
// each holding a separate query id per host since a query id is only
// guaranteed valid on the host that issued it, bounded to size entries with
// simple FIFO eviction, and coalescing concurrent preparers of the same
// (query, keyspace, host).
type PreparedCache struct {
	size int

	mu      sync.Mutex
	order   []string
	entries map[string]*PreparedStatement
	inFlight map[string]*coalesceEntry
}

func newPreparedCache(size int) *PreparedCache {
	if size <= 0 {
		size = 1000
	}
	return &PreparedCache{
		size:     size,
		entries:  make(map[string]*PreparedStatement),
		inFlight: make(map[string]*coalesceEntry),
	}
}

func cacheKey(query, keyspace string) string { return keyspace + "\x00" + query }

// getOrCreate returns the PreparedStatement for (query, keyspace), creating
// and evicting-oldest if the cache is at capacity.
func (c *PreparedCache) getOrCreate(query, keyspace string) *PreparedStatement {
	key := cacheKey(query, keyspace)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.entries[key]; ok {
		return ps
	}
	ps := &PreparedStatement{Query: query, Keyspace: keyspace}
	if len(c.order) >= c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = ps
	return ps
}

// prepareOnHost issues PREPARE on host (or waits for a concurrent preparer of
// the same key to finish), populating ps's per-host id on success.
func (c *PreparedCache) prepareOnHost(ctx context.Context, cl *Client, ps *PreparedStatement, host string) ([]byte, error) {
	if id, ok := ps.idFor(host); ok {
		return id, nil
	}
	key := host + "\x00" + cacheKey(ps.Query, ps.Keyspace)

	c.mu.Lock()
	if e, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		<-e.done
		return e.id, e.err
	}
	e := &coalesceEntry{done: make(chan struct{})}
	c.inFlight[key] = e
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
		close(e.done)
	}()

	pool := cl.poolFor(host)
	conn, err := pool.borrow(ctx)
	if err != nil {
		e.err = err
		return nil, err
	}
	req := &cqlproto.PrepareRequest{Query: ps.Query, Keyspace: ps.Keyspace, UseKeyspace: ps.Keyspace != ""}
	items, err := conn.roundTrip(ctx, req, false)
	if err != nil {
		e.err = err
		return nil, err
	}
	head := items[0]
	if head.Kind != stream.ItemPrepared {
		if head.Kind == stream.ItemError {
			e.err = head.Error
		} else {
			e.err = ErrUnexpectedResponse
		}
		return nil, e.err
	}
	ps.setID(host, head.Prepared.QueryID, head.Prepared)
	e.id = head.Prepared.QueryID
	return e.id, nil
}
