package cql

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/twmb/cql-go/pkg/cql/policy"
	"github.com/twmb/cql-go/pkg/cqlerr"
	"github.com/twmb/cql-go/pkg/cqlproto"
	"github.com/twmb/cql-go/pkg/cqlproto/stream"
)

// RequestOptions is the per-request surface spec.md §6 enumerates: the bits
// of a QUERY/EXECUTE/BATCH that Request Execution (rather than the codec)
// cares about.
type RequestOptions struct {
	Keyspace          string
	Consistency       cqlerr.Consistency
	SerialConsistency cqlerr.Consistency
	FetchSize         int32
	PagingState       []byte
	RoutingKey        []byte
	IsIdempotent      bool
	ReadTimeout       time.Duration
	RetryOnTimeout    bool
	Host              string // pin to a specific host, bypassing load balancing
	TraceQuery        bool
	Timestamp         int64
	HasTimestamp      bool
	CustomPayload     map[string][]byte
	RowByRow          bool

	Retry       policy.RetryPolicy
	Speculative policy.SpeculativeExecutionPolicy
}

// Result is the outcome of a successful Execute/ExecuteBatch call, carrying
// the counters spec.md §4.5 requires every caller be able to inspect.
type Result struct {
	Void         bool
	Rows         []stream.Row
	RowsMeta     cqlproto.RowsMetadata
	KeyspaceSet  string
	SchemaChange cqlproto.SchemaChangeBody
	Prepared     cqlproto.PreparedBody

	TriedHosts            map[string]error
	QueriedHost           string
	SpeculativeExecutions int
	AchievedConsistency   cqlerr.Consistency

	TraceID    [16]byte
	HasTraceID bool
	Warnings   []string
}

// attemptOutcome is what one host's worth of attempts (including any
// same-host retries and Unprepared re-prepare/re-execute cycles) resolves
// to, reported back to the request orchestrator in execute().
type attemptOutcome struct {
	host     string
	result   *Result
	err      error
	nextHost bool // plan should advance and try another host
}

func (cl *Client) queryParams(opts RequestOptions, withValues bool, values [][]byte, names []string) cqlproto.QueryParams {
	p := cqlproto.QueryParams{
		Consistency: opts.Consistency,
		PagingState: opts.PagingState,
	}
	if withValues && len(values) > 0 {
		p.Flags |= cqlproto.QueryFlagValues
		p.Values = values
		if len(names) > 0 {
			p.Flags |= cqlproto.QueryFlagWithNamesForValues
			p.Names = names
		}
	}
	if opts.FetchSize > 0 {
		p.Flags |= cqlproto.QueryFlagPageSize
		p.PageSize = opts.FetchSize
	}
	if len(opts.PagingState) > 0 {
		p.Flags |= cqlproto.QueryFlagWithPagingState
	}
	if opts.SerialConsistency != 0 {
		p.Flags |= cqlproto.QueryFlagWithSerialConsistency
		p.SerialConsistency = opts.SerialConsistency
	}
	if opts.HasTimestamp {
		p.Flags |= cqlproto.QueryFlagWithDefaultTimestamp
		p.Timestamp = opts.Timestamp
	}
	return p
}

// Execute runs a non-prepared CQL statement.
func (cl *Client) Execute(ctx context.Context, query string, values [][]byte, opts RequestOptions) (*Result, error) {
	build := func() cqlproto.Request {
		return &cqlproto.QueryRequest{Query: query, Params: cl.queryParams(opts, true, values, nil)}
	}
	return cl.execute(ctx, build, opts)
}

// Prepare asks the coordinator host (the first entry of a fresh query plan)
// to PREPARE query, caching the resulting id for later Execute calls, and
// coalescing concurrent Prepare calls for the same (query, keyspace, host).
func (cl *Client) Prepare(ctx context.Context, query string, opts RequestOptions) (*PreparedStatement, error) {
	ps := cl.prepared.getOrCreate(query, opts.Keyspace)
	info := cl.queryInfo(opts)
	plan := cl.cfg.loadBalancing.NewQueryPlan(info, cl.snapshotHosts())
	h, ok := plan.Next()
	if !ok {
		return nil, ErrNoHosts
	}
	if _, err := cl.prepared.prepareOnHost(ctx, cl, ps, h.Addr); err != nil {
		return nil, err
	}
	return ps, nil
}

// ExecutePrepared runs a previously Prepared statement, transparently
// re-preparing on UNPREPARED per spec.md §4.5's "Prepare handling".
func (cl *Client) ExecutePrepared(ctx context.Context, ps *PreparedStatement, values [][]byte, names []string, opts RequestOptions) (*Result, error) {
	if opts.Keyspace == "" {
		opts.Keyspace = ps.Keyspace
	}
	return cl.executePrepared(ctx, ps, values, names, opts)
}

// ExecuteBatch runs several statements atomically.
func (cl *Client) ExecuteBatch(ctx context.Context, batch *cqlproto.BatchRequest, opts RequestOptions) (*Result, error) {
	build := func() cqlproto.Request { return batch }
	return cl.execute(ctx, build, opts)
}

func (cl *Client) queryInfo(opts RequestOptions) policy.QueryInfo {
	info := policy.QueryInfo{Keyspace: opts.Keyspace}
	if len(opts.RoutingKey) > 0 {
		// Routing is normally owned by a ReplicaLookup collaborator that
		// knows the cluster's actual partitioner (Murmur3 token ring
		// computation is explicitly out of scope, spec.md §1). Here we use
		// a non-cryptographic hash of the routing key only to exercise
		// TokenAware's ordering logic deterministically; it is not a real
		// Cassandra Murmur3 token.
		info.Token = int64(xxhash.Sum64(opts.RoutingKey))
		info.HasToken = true
	}
	return info
}

func (cl *Client) retryPolicy(opts RequestOptions) policy.RetryPolicy {
	if opts.Retry != nil {
		return opts.Retry
	}
	return cl.cfg.retry
}

func (cl *Client) specPolicy(opts RequestOptions) policy.SpeculativeExecutionPolicy {
	if opts.Speculative != nil {
		return opts.Speculative
	}
	return cl.cfg.speculative
}

// execute is the request orchestrator: §4.5's Start/Attempt/.../Done state
// machine, implemented as a single goroutine selecting over {attempt
// outcome, speculative timer tick, caller cancellation}. Each attempt (one
// per host in the query plan) runs in its own goroutine via runOnHost,
// which internally handles same-host retries and the Unprepared
// re-prepare/re-execute cycle; execute only ever sees a host's final
// outcome.
func (cl *Client) execute(ctx context.Context, build func() cqlproto.Request, opts RequestOptions) (*Result, error) {
	return cl.runPlan(ctx, build, nil, opts)
}

func (cl *Client) executePrepared(ctx context.Context, ps *PreparedStatement, values [][]byte, names []string, opts RequestOptions) (*Result, error) {
	return cl.runPlan(ctx, nil, &preparedBuild{ps: ps, values: values, names: names}, opts)
}

// preparedBuild carries enough information for runOnHost to build an
// ExECUTE request tied to a specific host's query id, re-preparing on that
// same host first if it hasn't been prepared there yet.
type preparedBuild struct {
	ps     *PreparedStatement
	values [][]byte
	names  []string
}

func (cl *Client) runPlan(ctx context.Context, build func() cqlproto.Request, pb *preparedBuild, opts RequestOptions) (*Result, error) {
	if opts.Host != "" {
		o := cl.runOnHost(ctx, opts.Host, build, pb, opts)
		if o.result != nil {
			o.result.TriedHosts = map[string]error{}
			o.result.QueriedHost = o.host
			return o.result, nil
		}
		return nil, o.err
	}

	info := cl.queryInfo(opts)
	hosts := cl.snapshotHosts()
	plan := cl.cfg.loadBalancing.NewQueryPlan(info, hosts)

	h0, ok := plan.Next()
	if !ok {
		return nil, ErrNoHosts
	}

	// A query plan never yields more hosts than it was given, so this bounds
	// the number of attempts ever launched for one request: outcomes can
	// never fill up and block a losing attempt's send after runPlan has
	// already returned and stopped reading.
	outcomeCap := len(hosts)
	if outcomeCap < 1 {
		outcomeCap = 1
	}
	outcomes := make(chan attemptOutcome, outcomeCap)
	inFlight := 0
	var cancels []context.CancelFunc
	launch := func(host string) {
		actx, cancel := context.WithCancel(ctx)
		cancels = append(cancels, cancel)
		inFlight++
		go func() { outcomes <- cl.runOnHost(actx, host, build, pb, opts) }()
	}
	launch(h0.Addr)

	triedHosts := make(map[string]error)
	speculative := 0
	attemptIndex := 0

	var specCh <-chan time.Time
	var specTimer *time.Timer
	if opts.IsIdempotent {
		specPolicy := cl.specPolicy(opts)
		if d, ok := specPolicy.Delay(1); ok {
			specTimer = time.NewTimer(d)
			specCh = specTimer.C
		}
	}
	stopSpec := func() {
		if specTimer != nil {
			specTimer.Stop()
		}
	}
	defer stopSpec()
	// Once this request is done one way or another, every attempt still
	// racing against a loser/abandoned host must be torn down: its per-attempt
	// context cancellation wakes roundTrip's ctx.Done() branch, which calls
	// cancelStream to drop that stream id's waiter (a late reply is discarded)
	// and hand the id to the deferred-release set (spec.md §4.5 item 3, §5's
	// Invariant 6), instead of leaking
	// the goroutine and its stream id forever.
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	planExhausted := false
	for {
		select {
		case o := <-outcomes:
			inFlight--
			if o.err != nil {
				triedHosts[o.host] = o.err
			}
			if o.result != nil {
				stopSpec()
				o.result.TriedHosts = triedHosts
				o.result.QueriedHost = o.host
				o.result.SpeculativeExecutions = speculative
				return o.result, nil
			}
			if o.nextHost && !planExhausted {
				h, ok := plan.Next()
				if ok {
					launch(h.Addr)
				} else {
					planExhausted = true
				}
			}
			if inFlight == 0 {
				return nil, &RequestError{TriedHosts: hostKeys(triedHosts), SpeculativeExecutions: speculative, LastErrs: triedHosts}
			}
		case <-specCh:
			attemptIndex++
			if !planExhausted {
				h, ok := plan.Next()
				if ok {
					speculative++
					cl.cfg.hooks.eachSpeculative(h.Addr, attemptIndex)
					launch(h.Addr)
				} else {
					planExhausted = true
				}
			}
			specPolicy := cl.specPolicy(opts)
			if d, ok := specPolicy.Delay(attemptIndex + 1); ok && !planExhausted {
				specTimer = time.NewTimer(d)
				specCh = specTimer.C
			} else {
				specCh = nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func hostKeys(m map[string]error) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// runOnHost drives every attempt this request makes against one host: the
// initial send, same-host retries per the Retry Policy, and the Unprepared
// re-prepare/re-execute cycle (spec.md §4.5's "Prepare handling"). It
// returns only once this host's contribution to the request is final:
// either a winning Result, a terminal error, or a signal to try the plan's
// next host.
func (cl *Client) runOnHost(ctx context.Context, host string, build func() cqlproto.Request, pb *preparedBuild, opts RequestOptions) attemptOutcome {
	pool := cl.poolFor(host)
	retry := cl.retryPolicy(opts)
	nbRetry := 0
	reprepared := false

	for {
		actx := ctx
		var cancel context.CancelFunc
		if opts.ReadTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, opts.ReadTimeout)
		}

		conn, err := pool.borrow(actx)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			out, retrySameHost := transportOutcome(host, err, retry, nbRetry)
			if retrySameHost {
				nbRetry++
				continue
			}
			return out
		}

		var req cqlproto.Request
		if pb != nil {
			id, perr := cl.prepared.prepareOnHost(actx, cl, pb.ps, host)
			if perr != nil {
				if cancel != nil {
					cancel()
				}
				out, retrySameHost := transportOutcome(host, perr, retry, nbRetry)
				if retrySameHost {
					nbRetry++
					continue
				}
				return out
			}
			req = &cqlproto.ExecuteRequest{QueryID: id, Params: cl.queryParams(opts, true, pb.values, pb.names)}
		} else {
			req = build()
		}

		items, err := conn.roundTrip(actx, req, opts.RowByRow)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if err == context.DeadlineExceeded {
				err = ErrRequestTimeout
				if !opts.RetryOnTimeout {
					return attemptOutcome{host: host, err: err}
				}
			}
			out, retrySameHost := transportOutcome(host, err, retry, nbRetry)
			if retrySameHost {
				nbRetry++
				continue
			}
			return out
		}

		res, decision, rerr := interpretItems(items, opts, retry, nbRetry)
		switch decision {
		case decisionWon:
			return attemptOutcome{host: host, result: res}
		case decisionIgnore:
			return attemptOutcome{host: host, result: &Result{Void: true}}
		case decisionRetrySameHost:
			nbRetry++
			continue
		case decisionRetryNextHost:
			return attemptOutcome{host: host, err: rerr, nextHost: true}
		case decisionReprepare:
			if reprepared {
				return attemptOutcome{host: host, err: rerr}
			}
			reprepared = true
			if pb != nil {
				// Force prepareOnHost above to re-issue PREPARE: forget the
				// stale id for this host before looping.
				pb.ps.mu.Lock()
				delete(pb.ps.ids, host)
				pb.ps.mu.Unlock()
			}
			continue
		default: // decisionRethrow
			return attemptOutcome{host: host, err: rerr}
		}
	}
}

// transportOutcome routes a transport-level failure (a failed borrow,
// prepareOnHost, or roundTrip — anything short of a server-returned error
// body) through the Retry Policy's OnRequestError callback, spec.md §4.6's
// fourth decision point. retrySameHost is true when the caller should retry
// this same host without consulting outcome.
func transportOutcome(host string, err error, retry policy.RetryPolicy, nbRetry int) (outcome attemptOutcome, retrySameHost bool) {
	switch retry.OnRequestError(err, nbRetry) {
	case policy.DecisionRetrySameHost:
		return attemptOutcome{}, true
	case policy.DecisionRetryNextHost:
		return attemptOutcome{host: host, err: err, nextHost: true}, false
	case policy.DecisionIgnore:
		return attemptOutcome{host: host, result: &Result{Void: true}}, false
	default:
		return attemptOutcome{host: host, err: err}, false
	}
}

type decision int

const (
	decisionWon decision = iota
	decisionIgnore
	decisionRetrySameHost
	decisionRetryNextHost
	decisionReprepare
	decisionRethrow
)

// interpretItems classifies a completed response: a server error is routed
// through the Retry Policy (or, for codes spec.md §4.5 assigns a fixed
// routing, decided directly without consulting the policy); anything else
// is assembled into a Result.
func interpretItems(items []stream.Item, opts RequestOptions, retry policy.RetryPolicy, nbRetry int) (*Result, decision, error) {
	if len(items) == 0 {
		return nil, decisionRethrow, ErrUnexpectedResponse
	}
	head := items[0]
	res := &Result{AchievedConsistency: opts.Consistency}
	if head.HasTraceID {
		res.TraceID, res.HasTraceID = head.TraceID, true
	}
	res.Warnings = head.Warnings

	switch head.Kind {
	case stream.ItemError:
		return classifyServerError(head.Error, retry, nbRetry)
	case stream.ItemVoid:
		res.Void = true
		return res, decisionWon, nil
	case stream.ItemKeyspaceSet:
		res.KeyspaceSet = head.KeyspaceSet
		return res, decisionWon, nil
	case stream.ItemSchemaChange:
		res.SchemaChange = head.SchemaChange
		return res, decisionWon, nil
	case stream.ItemPrepared:
		res.Prepared = head.Prepared
		return res, decisionWon, nil
	case stream.ItemRowsMetadata:
		res.RowsMeta = head.RowsMeta
		for _, it := range items {
			if it.Kind == stream.ItemRow {
				res.Rows = append(res.Rows, it.Row)
			}
		}
		return res, decisionWon, nil
	default:
		return nil, decisionRethrow, ErrUnexpectedResponse
	}
}

func classifyServerError(se *cqlerr.ServerError, retry policy.RetryPolicy, nbRetry int) (*Result, decision, error) {
	switch se.Code {
	case cqlerr.CodeUnavailable:
		return dispatchRetryDecision(retry.OnUnavailable(se, nbRetry), se)
	case cqlerr.CodeReadTimeout:
		return dispatchRetryDecision(retry.OnReadTimeout(se, nbRetry), se)
	case cqlerr.CodeWriteTimeout:
		return dispatchRetryDecision(retry.OnWriteTimeout(se, nbRetry), se)
	case cqlerr.CodeOverloaded, cqlerr.CodeIsBootstrapping, cqlerr.CodeTruncateError:
		return nil, decisionRetryNextHost, se
	case cqlerr.CodeUnprepared:
		return nil, decisionReprepare, se
	default:
		return nil, decisionRethrow, se
	}
}

func dispatchRetryDecision(d policy.Decision, se *cqlerr.ServerError) (*Result, decision, error) {
	switch d {
	case policy.DecisionRetrySameHost:
		return nil, decisionRetrySameHost, se
	case policy.DecisionRetryNextHost:
		return nil, decisionRetryNextHost, se
	case policy.DecisionIgnore:
		return nil, decisionIgnore, nil
	default:
		return nil, decisionRethrow, se
	}
}
