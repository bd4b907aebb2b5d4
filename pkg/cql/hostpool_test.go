package cql

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

// acceptAndHandshakeLoop runs a minimal fake-server loop on every connection
// ln accepts: STARTUP->READY, then leaves the connection open until the test
// closes the listener.
func acceptAndHandshakeLoop(t *testing.T, ln net.Listener) {
	t.Helper()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			srv := &fakeServerConn{t: t, conn: conn, br: bufio.NewReader(conn)}
			srv.handleStartupReady()
		}(conn)
	}
}

func TestHostPoolBorrowReusesIdleConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go acceptAndHandshakeLoop(t, ln)

	cl := newTestClient(t)
	cl.cfg.connsPerHost = 2
	host := ln.Addr().String()
	p := newHostPool(cl, host)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c1, err := p.borrow(ctx)
	if err != nil {
		t.Fatalf("borrow 1: %v", err)
	}
	// c1 has Outstanding()==0, so a second borrow should reuse it rather
	// than dial, since an idle connection always wins over dialing fresh.
	c2, err := p.borrow(ctx)
	if err != nil {
		t.Fatalf("borrow 2: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected borrow to reuse the idle connection instead of dialing a second one")
	}
	if len(p.conns) != 1 {
		t.Fatalf("pool has %d conns, want 1", len(p.conns))
	}
}

func TestHostPoolBorrowDialsSecondConnWhenFirstBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go acceptAndHandshakeLoop(t, ln)

	cl := newTestClient(t)
	cl.cfg.connsPerHost = 2
	host := ln.Addr().String()
	p := newHostPool(cl, host)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c1, err := p.borrow(ctx)
	if err != nil {
		t.Fatalf("borrow 1: %v", err)
	}
	// Make c1 look busy so the pool dials a second connection.
	if _, ok := c1.streamIDs.Acquire(); !ok {
		t.Fatalf("acquire on c1 failed")
	}

	c2, err := p.borrow(ctx)
	if err != nil {
		t.Fatalf("borrow 2: %v", err)
	}
	if c1 == c2 {
		t.Fatalf("expected a second, distinct connection once the first is busy")
	}
	if len(p.conns) != 2 {
		t.Fatalf("pool has %d conns, want 2", len(p.conns))
	}
}

func TestHostPoolOnDialFailureMarksDownAndSchedulesReconnect(t *testing.T) {
	cl := newTestClient(t)
	host := "127.0.0.1:1" // nothing listens on port 1; dial is refused immediately
	p := newHostPool(cl, host)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.borrow(ctx)
	if err == nil {
		t.Fatalf("expected borrow against an unreachable host to fail")
	}
	if p.isUp() {
		t.Fatalf("expected the pool to be marked down after a dial failure")
	}
	close(cl.closeCh) // let the background reconnect goroutine exit promptly
}
