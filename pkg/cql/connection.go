package cql

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/cql-go/pkg/cqlauth"
	"github.com/twmb/cql-go/pkg/cqlerr"
	"github.com/twmb/cql-go/pkg/cqlproto"
	"github.com/twmb/cql-go/pkg/cqlproto/stream"
)

// frameResult is what a request's writer gets back once the Connection's
// read loop has collected every Item for that request's stream id up
// through frame_ended.
type frameResult struct {
	items []stream.Item
	err   error
}

// inflight tracks one outstanding request, keyed by its stream id — the
// out-of-order analogue of kgo's promisedResp, generalized because CQL
// responses arrive tagged by stream id rather than strictly in request
// order.
type inflight struct {
	streamID  int16
	deadline  time.Time
	rowByRow  bool
	resultCh  chan frameResult
	collected []stream.Item
}

// Connection is one CQL protocol connection to a single host: the
// handshake, the stream-id-keyed out-of-order request/response
// correlation, and the write/read goroutines, grounded on kgo's
// broker.go brokerCxn/broker split (dieMu + atomic dead flag, a
// FIFO-ish write path, a dedicated read goroutine feeding a per-request
// channel) but keyed by CQL stream id instead of Kafka's strictly ordered
// correlation id.
type Connection struct {
	cl   *Client
	host string

	conn    net.Conn
	bw      *bufio.Writer
	version cqlproto.Version
	compAlg string

	streamIDs *streamIDAllocator
	parser    *stream.Parser

	dieMu sync.RWMutex
	dead  int32

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int16]*inflight

	consecutiveTimeouts int32

	closeOnce sync.Once
	closeCh   chan struct{}
}

func dialConnection(ctx context.Context, cl *Client, host string) (*Connection, error) {
	start := time.Now()
	d := net.Dialer{Timeout: cl.cfg.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	cl.cfg.hooks.eachConnect(host, time.Since(start), conn, err)
	if err != nil {
		return nil, fmt.Errorf("cql: dial %s: %w", host, err)
	}
	c := &Connection{
		cl:        cl,
		host:      host,
		conn:      conn,
		bw:        bufio.NewWriter(conn),
		version:   cl.cfg.protocolVersion,
		streamIDs: newStreamIDAllocator(cl.cfg.protocolVersion.MaxStreamID(), cl.cfg.streamIDBandSize),
		parser:    stream.NewParser(cl.cfg.protocolVersion),
		pending:   make(map[int16]*inflight),
		closeCh:   make(chan struct{}),
	}
	go c.readLoop()
	if err := c.handshake(ctx); err != nil {
		c.die(err)
		return nil, err
	}
	go c.heartbeatLoop()
	return c, nil
}

// handshake runs STARTUP (with CQL_VERSION and, when configured and
// registered, COMPRESSION), an optional AUTHENTICATE exchange, and USE
// <keyspace> when a keyspace is configured, the fixed sequence a
// Connection completes before it is usable. No OPTIONS request is sent.
func (c *Connection) handshake(ctx context.Context) error {
	startup := &cqlproto.StartupRequest{Options: map[string]string{"CQL_VERSION": "3.0.0"}}
	if c.cl.cfg.compressionAlg != "" {
		if _, ok := c.cl.cfg.compressors[c.cl.cfg.compressionAlg]; ok {
			startup.Options["COMPRESSION"] = c.cl.cfg.compressionAlg
		}
	}
	items, err := c.roundTrip(ctx, startup, false)
	if err != nil {
		return fmt.Errorf("cql: STARTUP: %w", err)
	}
	head := items[0]
	switch head.Kind {
	case stream.ItemReady:
		// no auth required
	case stream.ItemMustAuthenticate:
		if err := c.authenticate(ctx, head.AuthenticatorName); err != nil {
			return err
		}
	case stream.ItemError:
		return head.Error
	default:
		return fmt.Errorf("cql: unexpected STARTUP response kind %d", head.Kind)
	}
	if c.cl.cfg.compressionAlg != "" {
		if _, ok := c.cl.cfg.compressors[c.cl.cfg.compressionAlg]; ok {
			c.compAlg = c.cl.cfg.compressionAlg
			c.parser.SetCompression(c.compAlg, c.cl.cfg.compressors)
		}
	}
	if ks := c.cl.cfg.keyspace; ks != "" {
		q := &cqlproto.QueryRequest{Query: "USE " + ks, Params: cqlproto.QueryParams{Consistency: cqlerr.ConsistencyOne}}
		items, err := c.roundTrip(ctx, q, false)
		if err != nil {
			return fmt.Errorf("cql: USE %s: %w", ks, err)
		}
		if items[0].Kind == stream.ItemError {
			return items[0].Error
		}
	}
	return nil
}

func (c *Connection) authenticate(ctx context.Context, authenticatorName string) error {
	var auth cqlauth.Authenticator
	for _, a := range c.cl.cfg.authenticators {
		if a.Name() == authenticatorName {
			auth = a
			break
		}
	}
	if auth == nil {
		return fmt.Errorf("cql: server requires authenticator %q, none configured", authenticatorName)
	}
	token, err := auth.InitialResponse()
	if err != nil {
		return err
	}
	for {
		items, err := c.roundTrip(ctx, &cqlproto.AuthResponseRequest{Token: token}, false)
		if err != nil {
			return err
		}
		head := items[0]
		switch head.Kind {
		case stream.ItemAuthSuccess:
			if v, ok := auth.(interface{ VerifyServerSignature([]byte) error }); ok {
				return v.VerifyServerSignature(head.AuthSuccess)
			}
			return nil
		case stream.ItemAuthChallenge:
			token, err = auth.EvaluateChallenge(head.AuthChallenge)
			if err != nil {
				return err
			}
		case stream.ItemError:
			return head.Error
		default:
			return fmt.Errorf("cql: unexpected AUTH_RESPONSE reply kind %d", head.Kind)
		}
	}
}

// IsDead reports whether the connection has been marked defunct and should
// no longer be used; a Connection that dies wakes every in-flight waiter
// with an error (the cause passed to die, or ErrConnectionDefunct).
func (c *Connection) IsDead() bool { return atomic.LoadInt32(&c.dead) != 0 }

func (c *Connection) die(err error) {
	if !atomic.CompareAndSwapInt32(&c.dead, 0, 1) {
		return
	}
	c.dieMu.Lock()
	defer c.dieMu.Unlock()
	c.conn.Close()
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int16]*inflight)
	c.mu.Unlock()
	for _, p := range pending {
		p.resultCh <- frameResult{err: err}
	}
	c.cl.cfg.hooks.eachDefunct(c.host, err)
	c.cl.cfg.logger.Log(LogLevelWarn, "connection marked defunct", "host", c.host, "err", err)
}

// roundTrip writes req and blocks for its full response (every Item up
// through frame_ended). Request Execution (execution.go) calls it once per
// attempt; cancelling ctx abandons the stream id through cancelStream, which
// is how a losing attempt is torn down.
func (c *Connection) roundTrip(ctx context.Context, req cqlproto.Request, rowByRow bool) ([]stream.Item, error) {
	streamID, resultCh, err := c.writeRequest(ctx, req, rowByRow)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return res.items, nil
	case <-ctx.Done():
		c.cancelStream(streamID, true)
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, ErrConnectionDefunct
	}
}

// writeRequest serializes req onto the wire under a stream id this
// Connection allocates, and registers the result channel that will
// receive its collected Items once the read loop sees frame_ended.
func (c *Connection) writeRequest(ctx context.Context, req cqlproto.Request, rowByRow bool) (int16, chan frameResult, error) {
	if c.IsDead() {
		return 0, nil, ErrConnectionDefunct
	}
	streamID, ok := c.streamIDs.Acquire()
	if !ok {
		return 0, nil, ErrStreamIDsExhausted
	}
	resultCh := make(chan frameResult, 1)
	timeout := c.cl.cfg.requestTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	c.mu.Lock()
	c.pending[streamID] = &inflight{streamID: streamID, deadline: time.Now().Add(timeout), rowByRow: rowByRow, resultCh: resultCh}
	c.mu.Unlock()

	h := cqlproto.Header{Version: c.version, StreamID: streamID, Opcode: req.Opcode()}
	body := req.AppendBody(nil, c.version)
	if c.compAlg != "" {
		comp, ok := c.cl.cfg.compressors[c.compAlg]
		if ok {
			compressed, err := comp.Compress(body)
			if err == nil {
				body = compressed
				h.Flags |= cqlproto.FlagCompression
			}
		}
	}
	h.BodyLen = int32(len(body))
	frame := cqlproto.AppendHeader(nil, h)
	frame = append(frame, body...)

	if rowByRow {
		c.parser.RequestRowByRow(streamID)
	}

	c.writeMu.Lock()
	start := time.Now()
	n, err := c.bw.Write(frame)
	if err == nil {
		err = c.bw.Flush()
	}
	c.cl.cfg.hooks.eachWrite(c.host, n, time.Since(start), err)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, streamID)
		c.mu.Unlock()
		c.streamIDs.Release(streamID)
		c.die(fmt.Errorf("cql: write: %w", err))
		return 0, nil, err
	}
	return streamID, resultCh, nil
}

// cancelStream abandons a request's result without releasing its stream id
// immediately when deferred is true — spec.md §9's deferred-release
// decision for a speculative attempt that lost the race, so a late server
// reply can't be misattributed to whatever new request reuses the id next.
func (c *Connection) cancelStream(streamID int16, deferred bool) {
	c.mu.Lock()
	p, ok := c.pending[streamID]
	if ok {
		delete(c.pending, streamID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if deferred {
		c.streamIDs.ReleaseDeferred(streamID, p.deadline.Add(c.cl.cfg.requestTimeout))
	} else {
		c.streamIDs.Release(streamID)
	}
}

// readLoop is the sole reader of the socket: it feeds bytes into the
// stream.Parser and dispatches completed per-stream-id Item sequences to
// whichever goroutine is waiting on that stream id's channel.
func (c *Connection) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		start := time.Now()
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.cl.cfg.hooks.eachRead(c.host, n, time.Since(start), err)
			c.parser.Feed(buf[:n])
			c.drainItems(c.parser)
		}
		if err != nil {
			if err != io.EOF {
				c.cl.cfg.logger.Log(LogLevelDebug, "read from connection errored", "host", c.host, "err", err)
			}
			c.die(fmt.Errorf("cql: read: %w", err))
			return
		}
	}
}

func (c *Connection) drainItems(p *stream.Parser) {
	for {
		it, ok := p.Next()
		if !ok {
			return
		}
		if it.StreamID == cqlproto.EventStreamID {
			c.cl.dispatchEvent(it)
			continue
		}
		c.mu.Lock()
		pend, ok := c.pending[it.StreamID]
		c.mu.Unlock()
		if !ok {
			continue // response to a stream id we've already abandoned
		}
		pend.collected = append(pend.collected, it)
		if it.Kind == stream.ItemFrameEnded {
			c.mu.Lock()
			delete(c.pending, it.StreamID)
			c.mu.Unlock()
			c.streamIDs.Release(it.StreamID)
			pend.resultCh <- frameResult{items: pend.collected}
		}
	}
}

// heartbeatLoop periodically issues OPTIONS to detect a half-dead peer and
// sweeps any stream ids whose deferred release has matured.
func (c *Connection) heartbeatLoop() {
	t := time.NewTicker(c.cl.cfg.heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case now := <-t.C:
			c.streamIDs.Sweep(now)
			ctx, cancel := context.WithTimeout(context.Background(), c.cl.cfg.requestTimeout)
			_, err := c.roundTrip(ctx, &cqlproto.OptionsRequest{}, false)
			cancel()
			if err != nil {
				if atomic.AddInt32(&c.consecutiveTimeouts, 1) >= int32(c.cl.cfg.maxTimeoutsBeforeDefunct) {
					c.die(fmt.Errorf("cql: heartbeat failed %d times: %w", c.consecutiveTimeouts, err))
					return
				}
				continue
			}
			atomic.StoreInt32(&c.consecutiveTimeouts, 0)
		}
	}
}

// Close gracefully tears down the connection.
func (c *Connection) Close() error {
	c.die(ErrClosed)
	return nil
}
