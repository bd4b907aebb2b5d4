package policy

import (
	"testing"
)

func addrs(hosts []HostInfo) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Addr
	}
	return out
}

func drainPlan(it HostIterator) []HostInfo {
	var out []HostInfo
	for {
		h, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, h)
	}
}

func TestRoundRobinVisitsEveryUpHostOnce(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "a:9042", Up: true},
		{Addr: "b:9042", Up: true},
		{Addr: "c:9042", Up: false},
		{Addr: "d:9042", Up: true},
	}
	rr := NewRoundRobin()
	plan := drainPlan(rr.NewQueryPlan(QueryInfo{}, hosts))
	if len(plan) != 3 {
		t.Fatalf("got %d hosts, want 3 (down host excluded): %v", len(plan), addrs(plan))
	}
	seen := map[string]bool{}
	for _, h := range plan {
		if h.Addr == "c:9042" {
			t.Fatalf("down host c:9042 present in plan: %v", addrs(plan))
		}
		seen[h.Addr] = true
	}
	if len(seen) != 3 {
		t.Fatalf("plan repeats a host: %v", addrs(plan))
	}
}

func TestRoundRobinRotatesStartingHost(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "a:9042", Up: true},
		{Addr: "b:9042", Up: true},
		{Addr: "c:9042", Up: true},
	}
	rr := NewRoundRobin()
	first := addrs(drainPlan(rr.NewQueryPlan(QueryInfo{}, hosts)))
	different := false
	for i := 0; i < len(hosts); i++ {
		next := addrs(drainPlan(rr.NewQueryPlan(QueryInfo{}, hosts)))
		if next[0] != first[0] {
			different = true
			break
		}
	}
	if !different {
		t.Fatalf("round robin never rotated its starting host across %d plans", len(hosts))
	}
}

func TestRoundRobinNoUpHosts(t *testing.T) {
	hosts := []HostInfo{{Addr: "a:9042", Up: false}}
	rr := NewRoundRobin()
	plan := drainPlan(rr.NewQueryPlan(QueryInfo{}, hosts))
	if len(plan) != 0 {
		t.Fatalf("got %v, want empty plan", addrs(plan))
	}
}

func TestDCAwareRoundRobinPrefersLocalDC(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "dc1-a:9042", Datacenter: "dc1", Up: true},
		{Addr: "dc2-a:9042", Datacenter: "dc2", Up: true},
		{Addr: "dc1-b:9042", Datacenter: "dc1", Up: true},
		{Addr: "dc2-b:9042", Datacenter: "dc2", Up: true},
	}
	p := NewDCAwareRoundRobin("dc1", 1)
	plan := addrs(drainPlan(p.NewQueryPlan(QueryInfo{}, hosts)))
	if len(plan) != 3 {
		t.Fatalf("got %v, want 2 local + 1 remote (maxRemoteHosts=1)", plan)
	}
	for _, a := range plan[:2] {
		if a != "dc1-a:9042" && a != "dc1-b:9042" {
			t.Fatalf("expected local hosts first, got %v", plan)
		}
	}
	if plan[2] != "dc2-a:9042" && plan[2] != "dc2-b:9042" {
		t.Fatalf("expected a remote host last, got %v", plan)
	}
}

func TestDCAwareRoundRobinUnboundedRemote(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "dc1-a:9042", Datacenter: "dc1", Up: true},
		{Addr: "dc2-a:9042", Datacenter: "dc2", Up: true},
		{Addr: "dc2-b:9042", Datacenter: "dc2", Up: true},
	}
	p := NewDCAwareRoundRobin("dc1", 0)
	plan := drainPlan(p.NewQueryPlan(QueryInfo{}, hosts))
	if len(plan) != 3 {
		t.Fatalf("got %d hosts, want 3 (maxRemoteHosts<=0 means unbounded): %v", len(plan), addrs(plan))
	}
}

func TestTokenAwarePrefersRingOwner(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "a:9042", Up: true, Tokens: []int64{0}},
		{Addr: "b:9042", Up: true, Tokens: []int64{100}},
		{Addr: "c:9042", Up: true, Tokens: []int64{200}},
	}
	ta := NewTokenAware(NewRoundRobin())
	plan := addrs(drainPlan(ta.NewQueryPlan(QueryInfo{Token: 50, HasToken: true}, hosts)))
	if plan[0] != "b:9042" {
		t.Fatalf("owner of token 50 should be first (nearest token >= 50 is host b's 100), got %v", plan)
	}
	if len(plan) != 3 {
		t.Fatalf("expected all 3 hosts in plan, got %v", plan)
	}
}

func TestTokenAwareWrapsAroundRing(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "a:9042", Up: true, Tokens: []int64{0}},
		{Addr: "b:9042", Up: true, Tokens: []int64{100}},
	}
	ta := NewTokenAware(NewRoundRobin())
	plan := addrs(drainPlan(ta.NewQueryPlan(QueryInfo{Token: 500, HasToken: true}, hosts)))
	if plan[0] != "a:9042" {
		t.Fatalf("token past the highest owned token should wrap to the first ring entry, got %v", plan)
	}
}

func TestTokenAwareFallsBackWithoutToken(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "a:9042", Up: true},
		{Addr: "b:9042", Up: true},
	}
	child := NewRoundRobin()
	ta := NewTokenAware(child)
	plan := drainPlan(ta.NewQueryPlan(QueryInfo{}, hosts))
	if len(plan) != 2 {
		t.Fatalf("got %v, want both hosts via child plan", addrs(plan))
	}
}

func TestAllowListFiltersHosts(t *testing.T) {
	hosts := []HostInfo{
		{Addr: "a:9042", Up: true},
		{Addr: "b:9042", Up: true},
		{Addr: "c:9042", Up: true},
	}
	al := NewAllowList(NewRoundRobin(), []string{"b:9042"})
	plan := addrs(drainPlan(al.NewQueryPlan(QueryInfo{}, hosts)))
	if len(plan) != 1 || plan[0] != "b:9042" {
		t.Fatalf("got %v, want only b:9042", plan)
	}
}
