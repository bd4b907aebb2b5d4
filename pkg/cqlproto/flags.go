package cqlproto

import "github.com/twmb/cql-go/pkg/cqlbin"

// ResponseExtras holds the optional response prelude sections consumed in
// fixed order — tracing, warning, custom-payload — per spec.md §4.1.
type ResponseExtras struct {
	TraceID       [16]byte
	HasTraceID    bool
	Warnings      []string
	CustomPayload map[string][]byte
}

// DecodeResponseExtras consumes the flags-gated prelude from r, in the
// fixed order the spec mandates: tracing, warning, custom payload.
func DecodeResponseExtras(r *cqlbin.Reader, flags Flags) ResponseExtras {
	var ex ResponseExtras
	if flags.Has(FlagTracing) {
		ex.TraceID = r.UUID()
		ex.HasTraceID = true
	}
	if flags.Has(FlagWarning) {
		ex.Warnings = r.StringList()
	}
	if flags.Has(FlagCustomPayload) {
		ex.CustomPayload = r.BytesMap()
	}
	return ex
}
