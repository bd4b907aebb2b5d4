package cql

import (
	"net"
	"time"
)

// Hook is the marker interface for all extension hooks a Client can be
// configured with, mirroring franz-go's Hook/hooks machinery: a caller
// implements whichever of the interfaces below it needs, registers it via
// WithHooks, and the Client type-asserts each hook into the sub-interfaces
// it fires at the relevant point.
type Hook interface{}

// ConnectHookFn fires after a TCP dial to a host, successful or not, before
// any CQL handshake (STARTUP/AUTHENTICATE) runs.
type ConnectHookFn interface {
	OnConnect(host string, dialDur time.Duration, conn net.Conn, err error)
}

// WriteHookFn fires after a request frame is written to the wire.
type WriteHookFn interface {
	OnWrite(host string, bytesWritten int, writeDur time.Duration, err error)
}

// ReadHookFn fires after each read from a connection's socket that returned
// bytes, with the raw (possibly compressed) byte count, before those bytes
// are fed to the stream parser.
type ReadHookFn interface {
	OnRead(host string, bytesRead int, readDur time.Duration, err error)
}

// DefunctHookFn fires when a Connection is marked defunct and torn down.
type DefunctHookFn interface {
	OnDefunct(host string, err error)
}

// SpeculativeHookFn fires every time the Speculative Execution Policy fans
// out an additional attempt for a request already in flight.
type SpeculativeHookFn interface {
	OnSpeculativeExecution(host string, attemptIndex int)
}

type hooks []Hook

func (hs hooks) each(fn func(Hook)) {
	for _, h := range hs {
		fn(h)
	}
}

func (hs hooks) eachConnect(host string, dialDur time.Duration, conn net.Conn, err error) {
	hs.each(func(h Hook) {
		if hk, ok := h.(ConnectHookFn); ok {
			hk.OnConnect(host, dialDur, conn, err)
		}
	})
}

func (hs hooks) eachWrite(host string, n int, dur time.Duration, err error) {
	hs.each(func(h Hook) {
		if hk, ok := h.(WriteHookFn); ok {
			hk.OnWrite(host, n, dur, err)
		}
	})
}

func (hs hooks) eachRead(host string, n int, dur time.Duration, err error) {
	hs.each(func(h Hook) {
		if hk, ok := h.(ReadHookFn); ok {
			hk.OnRead(host, n, dur, err)
		}
	})
}

func (hs hooks) eachDefunct(host string, err error) {
	hs.each(func(h Hook) {
		if hk, ok := h.(DefunctHookFn); ok {
			hk.OnDefunct(host, err)
		}
	})
}

func (hs hooks) eachSpeculative(host string, attempt int) {
	hs.each(func(h Hook) {
		if hk, ok := h.(SpeculativeHookFn); ok {
			hk.OnSpeculativeExecution(host, attempt)
		}
	})
}
