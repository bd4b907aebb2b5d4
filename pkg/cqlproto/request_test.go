package cqlproto

import (
	"testing"

	"github.com/twmb/cql-go/pkg/cqlbin"
	"github.com/twmb/cql-go/pkg/cqlerr"
)

func TestStartupRequestBody(t *testing.T) {
	req := &StartupRequest{Options: map[string]string{"CQL_VERSION": "3.0.0"}}
	buf := req.AppendBody(nil, Version4)
	r := &cqlbin.Reader{Src: buf}
	m := r.StringMap()
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	if m["CQL_VERSION"] != "3.0.0" {
		t.Fatalf("got %v", m)
	}
}

func TestQueryRequestBodyWithValues(t *testing.T) {
	req := &QueryRequest{
		Query: "SELECT * FROM t WHERE id = ?",
		Params: QueryParams{
			Consistency: cqlerr.ConsistencyQuorum,
			Flags:       QueryFlagValues | QueryFlagPageSize,
			Values:      [][]byte{{1, 2, 3}},
			PageSize:    100,
		},
	}
	buf := req.AppendBody(nil, Version4)
	r := &cqlbin.Reader{Src: buf}
	query := r.LongString()
	cl := r.Short()
	flags := r.Int()
	n := r.Short()
	val, ok := r.Bytes()
	pageSize := r.Int()
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	if query != req.Query || cl != uint16(cqlerr.ConsistencyQuorum) {
		t.Fatalf("query=%q cl=%d", query, cl)
	}
	if flags != int32(req.Params.Flags) || n != 1 || !ok || string(val) != "\x01\x02\x03" || pageSize != 100 {
		t.Fatalf("flags=%d n=%d val=%v pageSize=%d", flags, n, val, pageSize)
	}
}

func TestExecuteRequestBody(t *testing.T) {
	req := &ExecuteRequest{
		QueryID: []byte{0xDE, 0xAD},
		Params: QueryParams{
			Consistency: cqlerr.ConsistencyOne,
		},
	}
	buf := req.AppendBody(nil, Version4)
	r := &cqlbin.Reader{Src: buf}
	id := r.ShortBytes()
	_ = r.Short() // consistency
	_ = r.Int()   // flags
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	if string(id) != "\xDE\xAD" {
		t.Fatalf("id = %v", id)
	}
}

func TestBatchRequestBody(t *testing.T) {
	req := &BatchRequest{
		Kind: BatchLogged,
		Queries: []BatchQuery{
			{IsPrepared: false, Query: "INSERT INTO t VALUES (?)", Values: [][]byte{{9}}},
			{IsPrepared: true, QueryID: []byte{1, 2}, Values: [][]byte{{8}}},
		},
		Consistency: cqlerr.ConsistencyQuorum,
	}
	buf := req.AppendBody(nil, Version4)
	r := &cqlbin.Reader{Src: buf}
	kind := r.Byte()
	n := r.Short()
	if kind != byte(BatchLogged) || n != 2 {
		t.Fatalf("kind=%d n=%d", kind, n)
	}
	isPrepared := r.Byte()
	query := r.LongString()
	nv := r.Short()
	v0, _ := r.Bytes()
	if isPrepared != 0 || query != req.Queries[0].Query || nv != 1 || string(v0) != "\x09" {
		t.Fatalf("first query decode mismatch: %v %q %d %v", isPrepared, query, nv, v0)
	}
	isPrepared2 := r.Byte()
	id := r.ShortBytes()
	nv2 := r.Short()
	v1, _ := r.Bytes()
	if isPrepared2 != 1 || string(id) != "\x01\x02" || nv2 != 1 || string(v1) != "\x08" {
		t.Fatalf("second query decode mismatch: %v %v %d %v", isPrepared2, id, nv2, v1)
	}
	_ = r.Short() // consistency
	_ = r.Int()   // flags
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
}
