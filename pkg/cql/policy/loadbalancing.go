// Package policy implements the pluggable decision points a cql.Client
// delegates to: load balancing (query-plan host ordering), retry,
// speculative execution, and reconnection — spec.md §6's "Policies"
// component (C6). Each policy is a small interface with a handful of
// concrete implementations, the same shape franz-go uses for its
// rebalance/partition-assignment strategies.
package policy

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// HostInfo is the subset of a cluster host's state load-balancing policies
// need: address, topology placement, and the token ranges it owns.
type HostInfo struct {
	Addr       string
	Datacenter string
	Rack       string
	Tokens     []int64
	Up         bool
}

// QueryInfo carries whatever the load balancing policy can use to route a
// request intelligently — today just the target keyspace and, when known,
// the partition key's token (for TokenAware).
type QueryInfo struct {
	Keyspace string
	Token    int64
	HasToken bool
}

// HostIterator yields hosts in query-plan order; Next returns ok=false once
// exhausted. Not safe for concurrent use — Request Execution owns one per
// request.
type HostIterator interface {
	Next() (HostInfo, bool)
}

// LoadBalancingPolicy builds the host query plan for one request.
type LoadBalancingPolicy interface {
	Name() string
	NewQueryPlan(info QueryInfo, hosts []HostInfo) HostIterator
}

type sliceIterator struct {
	hosts []HostInfo
	i     int
}

func (s *sliceIterator) Next() (HostInfo, bool) {
	if s.i >= len(s.hosts) {
		return HostInfo{}, false
	}
	h := s.hosts[s.i]
	s.i++
	return h, true
}

// RoundRobin cycles through all known hosts, rotating the starting point on
// each call via an atomic counter so concurrent requests spread load evenly
// without a lock. The starting offset is additionally salted per process
// with an xxhash of the keyspace name, so two Clients in the same process
// targeting different keyspaces don't all start their very first plan at
// host 0 simultaneously (a cheap, non-cryptographic shuffle; xxhash is
// already in the module graph for this exact kind of non-cryptographic
// hashing, not introduced solely for this).
type RoundRobin struct {
	ctr uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Name() string { return "round_robin" }

func (r *RoundRobin) NewQueryPlan(info QueryInfo, hosts []HostInfo) HostIterator {
	up := filterUp(hosts)
	if len(up) == 0 {
		return &sliceIterator{}
	}
	salt := xxhash.Sum64String(info.Keyspace)
	start := int((atomic.AddUint64(&r.ctr, 1) + salt) % uint64(len(up)))
	ordered := make([]HostInfo, len(up))
	for i := range up {
		ordered[i] = up[(start+i)%len(up)]
	}
	return &sliceIterator{hosts: ordered}
}

// DCAwareRoundRobin prefers hosts in localDC, falling back to the rest
// (optionally capped) only after the local hosts are exhausted.
type DCAwareRoundRobin struct {
	localDC         string
	maxRemoteHosts  int
	local, remote   *RoundRobin
}

func NewDCAwareRoundRobin(localDC string, maxRemoteHosts int) *DCAwareRoundRobin {
	return &DCAwareRoundRobin{localDC: localDC, maxRemoteHosts: maxRemoteHosts, local: NewRoundRobin(), remote: NewRoundRobin()}
}

func (p *DCAwareRoundRobin) Name() string { return "dc_aware_round_robin" }

func (p *DCAwareRoundRobin) NewQueryPlan(info QueryInfo, hosts []HostInfo) HostIterator {
	var local, remote []HostInfo
	for _, h := range hosts {
		if h.Datacenter == p.localDC {
			local = append(local, h)
		} else {
			remote = append(remote, h)
		}
	}
	localIt := p.local.NewQueryPlan(info, local)
	remoteIt := p.remote.NewQueryPlan(info, remote)
	var out []HostInfo
	for {
		h, ok := localIt.Next()
		if !ok {
			break
		}
		out = append(out, h)
	}
	n := 0
	for p.maxRemoteHosts <= 0 || n < p.maxRemoteHosts {
		h, ok := remoteIt.Next()
		if !ok {
			break
		}
		out = append(out, h)
		n++
	}
	return &sliceIterator{hosts: out}
}

// TokenAware reorders a child policy's plan so the replica(s) owning the
// query's partition token are tried first, falling back to the child's
// order for the rest. Token ownership is resolved by the nearest-token
// (ring) rule: the first host whose token is >= the query's token owns it.
type TokenAware struct {
	mu    sync.RWMutex
	child LoadBalancingPolicy
}

func NewTokenAware(child LoadBalancingPolicy) *TokenAware {
	return &TokenAware{child: child}
}

func (t *TokenAware) Name() string { return "token_aware(" + t.child.Name() + ")" }

func (t *TokenAware) NewQueryPlan(info QueryInfo, hosts []HostInfo) HostIterator {
	childPlan := t.child.NewQueryPlan(info, hosts)
	if !info.HasToken {
		return childPlan
	}
	owner := ringOwner(info.Token, hosts)
	if owner == "" {
		return childPlan
	}
	var ordered []HostInfo
	seen := map[string]bool{}
	for {
		h, ok := childPlan.Next()
		if !ok {
			break
		}
		if h.Addr == owner && !seen[h.Addr] {
			ordered = append([]HostInfo{h}, ordered...)
		} else {
			ordered = append(ordered, h)
		}
		seen[h.Addr] = true
	}
	return &sliceIterator{hosts: ordered}
}

func ringOwner(token int64, hosts []HostInfo) string {
	type tok struct {
		t    int64
		addr string
	}
	var ring []tok
	for _, h := range hosts {
		if !h.Up {
			continue
		}
		for _, t := range h.Tokens {
			ring = append(ring, tok{t, h.Addr})
		}
	}
	if len(ring) == 0 {
		return ""
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].t < ring[j].t })
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].t >= token })
	if idx == len(ring) {
		idx = 0
	}
	return ring[idx].addr
}

// AllowList wraps a child policy and drops any host not present in the
// allowed set from the plan entirely — for restricting a client to a subset
// of a cluster (e.g. a single rack during a staged rollout).
type AllowList struct {
	child   LoadBalancingPolicy
	allowed map[string]bool
}

func NewAllowList(child LoadBalancingPolicy, allowed []string) *AllowList {
	m := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		m[a] = true
	}
	return &AllowList{child: child, allowed: m}
}

func (a *AllowList) Name() string { return "allow_list(" + a.child.Name() + ")" }

func (a *AllowList) NewQueryPlan(info QueryInfo, hosts []HostInfo) HostIterator {
	var filtered []HostInfo
	for _, h := range hosts {
		if a.allowed[h.Addr] {
			filtered = append(filtered, h)
		}
	}
	return a.child.NewQueryPlan(info, filtered)
}

func filterUp(hosts []HostInfo) []HostInfo {
	out := make([]HostInfo, 0, len(hosts))
	for _, h := range hosts {
		if h.Up {
			out = append(out, h)
		}
	}
	return out
}
