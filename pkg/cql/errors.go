package cql

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller can compare against with errors.Is, mirroring
// the handful of sentinels kgo exposes for its own terminal conditions.
var (
	ErrClosed            = errors.New("cql: client is closed")
	ErrNoHosts           = errors.New("cql: no hosts available for the query plan")
	ErrConnectionDefunct = errors.New("cql: connection is defunct")
	ErrRequestTimeout    = errors.New("cql: request timed out")
	ErrStreamIDsExhausted = errors.New("cql: connection has no free stream ids")
	ErrUnexpectedResponse = errors.New("cql: unexpected response opcode for this request")
)

// RequestError is returned from Client.Execute/ExecutePrepared/ExecuteBatch
// when the last in-flight attempt of a request ends without success, either
// because the query plan ran out of hosts or because an attempt ended with
// an error that does not move on to another host. It carries the
// bookkeeping spec.md's Request Execution component (C5) requires every
// caller be able to inspect: how many hosts were tried, how many
// speculative attempts ran, and the last error seen from each host tried.
type RequestError struct {
	TriedHosts            []string
	SpeculativeExecutions int
	LastErrs              map[string]error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("cql: request failed after trying %d host(s) (%d speculative): %v", len(e.TriedHosts), e.SpeculativeExecutions, e.LastErrs)
}

func (e *RequestError) Unwrap() []error {
	errs := make([]error, 0, len(e.LastErrs))
	for _, err := range e.LastErrs {
		errs = append(errs, err)
	}
	return errs
}
