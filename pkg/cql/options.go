package cql

import (
	"time"

	"github.com/twmb/cql-go/pkg/cqlauth"
	"github.com/twmb/cql-go/pkg/cql/policy"
	"github.com/twmb/cql-go/pkg/cqlproto"
)

// cfg holds every option a Client is built from, the same functional-option
// target struct franz-go's kgo.cfg plays for Client.
type cfg struct {
	hosts    []string
	keyspace string

	logger Logger
	hooks  hooks

	dialTimeout      time.Duration
	connectTimeout   time.Duration
	requestTimeout   time.Duration
	heartbeatEvery   time.Duration
	maxTimeoutsBeforeDefunct int

	streamIDBandSize int
	connsPerHost     int

	protocolVersion cqlproto.Version

	compressionAlg string
	compressors    map[string]cqlproto.Compressor

	authenticators []cqlauth.Authenticator

	loadBalancing policy.LoadBalancingPolicy
	retry         policy.RetryPolicy
	speculative   policy.SpeculativeExecutionPolicy
	reconnection  policy.ReconnectionPolicy

	preparedCacheSize int
}

func defaultCfg() cfg {
	return cfg{
		logger:                   nopLogger{},
		dialTimeout:              5 * time.Second,
		connectTimeout:           10 * time.Second,
		requestTimeout:           12 * time.Second,
		heartbeatEvery:           30 * time.Second,
		maxTimeoutsBeforeDefunct: 3,
		streamIDBandSize:         128,
		connsPerHost:             2,
		protocolVersion:          cqlproto.Version4,
		compressors:              cqlproto.DefaultCompressors(),
		loadBalancing:            policy.NewRoundRobin(),
		retry:                    policy.DefaultRetryPolicy{},
		speculative:              policy.NoSpeculativeExecution{},
		reconnection:             policy.NewExponentialReconnection(time.Second, time.Minute, 0.2),
		preparedCacheSize:        1000,
	}
}

// Opt configures a Client, following the same functional-options shape as
// kgo.Opt.
type Opt interface {
	apply(*cfg)
}

type opt func(*cfg)

func (o opt) apply(c *cfg) { o(c) }

// WithHosts sets the hosts the Client dials at construction and builds its
// query plans from; no further hosts are discovered from them.
func WithHosts(hosts ...string) Opt {
	return opt(func(c *cfg) { c.hosts = hosts })
}

// WithKeyspace sets the keyspace a STARTUP'd connection USEs before the
// Client is considered ready.
func WithKeyspace(ks string) Opt {
	return opt(func(c *cfg) { c.keyspace = ks })
}

// WithLogger installs a Logger; the default discards everything.
func WithLogger(l Logger) Opt {
	return opt(func(c *cfg) { c.logger = l })
}

// WithHooks registers extension hooks; see the *HookFn interfaces.
func WithHooks(hs ...Hook) Opt {
	return opt(func(c *cfg) { c.hooks = append(c.hooks, hs...) })
}

// WithDialTimeout bounds how long a single TCP dial may take.
func WithDialTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.dialTimeout = d })
}

// WithConnectTimeout bounds the full handshake (dial + STARTUP + optional
// AUTHENTICATE + USE keyspace).
func WithConnectTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.connectTimeout = d })
}

// WithRequestTimeout sets the timeout of each heartbeat OPTIONS round trip,
// and the deadline a connection records for a request whose context has
// none, which in turn times the deferred release of an abandoned stream id.
// It does not bound an Execute attempt: RequestOptions.ReadTimeout does, and
// a ReadTimeout of 0 means the attempt has no timeout of its own.
func WithRequestTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.requestTimeout = d })
}

// WithHeartbeatInterval sets how often an idle connection sends an OPTIONS
// frame to detect a dead peer and sweep deferred stream-id releases.
func WithHeartbeatInterval(d time.Duration) Opt {
	return opt(func(c *cfg) { c.heartbeatEvery = d })
}

// WithMaxTimeoutsBeforeDefunct sets how many consecutive failed heartbeat
// OPTIONS round trips on one connection mark it defunct. Timeouts of
// ordinary requests are not counted toward this limit.
func WithMaxTimeoutsBeforeDefunct(n int) Opt {
	return opt(func(c *cfg) { c.maxTimeoutsBeforeDefunct = n })
}

// WithProtocolVersion sets the CQL protocol version every connection speaks
// (default v4); the version is not negotiated with the server.
func WithProtocolVersion(v cqlproto.Version) Opt {
	return opt(func(c *cfg) { c.protocolVersion = v })
}

// WithCompression negotiates algo (must be a key DefaultCompressors/the
// registry passed to WithCompressors recognizes) in STARTUP.
func WithCompression(algo string) Opt {
	return opt(func(c *cfg) { c.compressionAlg = algo })
}

// WithCompressors overrides the compressor registry (e.g. to substitute
// LegacySnappy for the default klauspost Snappy implementation).
func WithCompressors(registry map[string]cqlproto.Compressor) Opt {
	return opt(func(c *cfg) { c.compressors = registry })
}

// WithAuthenticator registers an authenticator a Connection can use to
// answer an AUTHENTICATE challenge whose AuthenticatorName matches.
func WithAuthenticator(a cqlauth.Authenticator) Opt {
	return opt(func(c *cfg) { c.authenticators = append(c.authenticators, a) })
}

// WithLoadBalancingPolicy overrides the default RoundRobin policy.
func WithLoadBalancingPolicy(p policy.LoadBalancingPolicy) Opt {
	return opt(func(c *cfg) { c.loadBalancing = p })
}

// WithRetryPolicy overrides the default conservative RetryPolicy.
func WithRetryPolicy(p policy.RetryPolicy) Opt {
	return opt(func(c *cfg) { c.retry = p })
}

// WithSpeculativeExecutionPolicy opts requests into speculative retries.
func WithSpeculativeExecutionPolicy(p policy.SpeculativeExecutionPolicy) Opt {
	return opt(func(c *cfg) { c.speculative = p })
}

// WithReconnectionPolicy overrides how aggressively downed hosts are
// retried.
func WithReconnectionPolicy(p policy.ReconnectionPolicy) Opt {
	return opt(func(c *cfg) { c.reconnection = p })
}

// WithPreparedCacheSize bounds the client-side cache of prepared statement
// ids (spec.md's supplemented PreparedCache feature).
func WithPreparedCacheSize(n int) Opt {
	return opt(func(c *cfg) { c.preparedCacheSize = n })
}

// WithStreamIDBandSize overrides the band size the per-connection stream-id
// pool rounds its capacity down to a multiple of (default 128).
func WithStreamIDBandSize(n int) Opt {
	return opt(func(c *cfg) { c.streamIDBandSize = n })
}

// WithConnsPerHost sets how many Connections the Host Pool maintains per
// host (default 2).
func WithConnsPerHost(n int) Opt {
	return opt(func(c *cfg) { c.connsPerHost = n })
}
