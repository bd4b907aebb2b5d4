package cqlproto

import "github.com/twmb/cql-go/pkg/cqlbin"

// RowsMetaFlags are the flags word preceding a Rows/Prepared result's
// column metadata (§4.1).
type RowsMetaFlags uint32

const (
	MetaFlagGlobalTablesSpec RowsMetaFlags = 0x0001
	MetaFlagHasMorePages     RowsMetaFlags = 0x0002
	MetaFlagNoMetadata       RowsMetaFlags = 0x0004
	MetaFlagMetadataChanged  RowsMetaFlags = 0x0008
	MetaFlagContinuousPaging RowsMetaFlags = 0x40000000
	MetaFlagLastContinuous   RowsMetaFlags = 0x80000000
)

func (f RowsMetaFlags) Has(bit RowsMetaFlags) bool { return f&bit != 0 }

// ColumnSpec is one column descriptor: optional (keyspace, table) plus name
// and type (§3).
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     ColumnType
}

// RowsMetadata is the decoded metadata preceding a Rows or Prepared result
// body (§3, §4.1).
type RowsMetadata struct {
	Flags       RowsMetaFlags
	ColumnCount int32

	// Prepared-only prelude.
	PreparedResultID    []byte
	PartitionKeyIndexes []int16

	PagingState   []byte
	NewResultID   []byte

	ContinuousPageIndex int32
	LastContinuousPage  bool

	GlobalKeyspace string
	GlobalTable    string

	Columns []ColumnSpec
}

// DecodeRowsMetadata decodes a RowsMetadata per spec.md §4.1's fixed field
// order. forPrepared gates the prepared-statement prelude (result id +
// partition-key indices), which only a PREPARED result carries.
func DecodeRowsMetadata(r *cqlbin.Reader, v Version, forPrepared bool) RowsMetadata {
	m := RowsMetadata{
		Flags:       RowsMetaFlags(r.Int()),
		ColumnCount: r.Int(),
	}
	if forPrepared && v >= Version4 {
		m.PreparedResultID = r.ShortBytes()
		n := r.Short()
		m.PartitionKeyIndexes = make([]int16, 0, n)
		for i := 0; i < int(n); i++ {
			m.PartitionKeyIndexes = append(m.PartitionKeyIndexes, r.SignedShort())
		}
	}
	if m.Flags.Has(MetaFlagHasMorePages) {
		m.PagingState, _ = r.Bytes()
	}
	if m.Flags.Has(MetaFlagMetadataChanged) {
		m.NewResultID = r.ShortBytes()
	}
	if m.Flags.Has(MetaFlagContinuousPaging) {
		m.ContinuousPageIndex = r.Int()
		m.LastContinuousPage = m.Flags.Has(MetaFlagLastContinuous)
	}
	if m.Flags.Has(MetaFlagNoMetadata) {
		return m
	}
	global := m.Flags.Has(MetaFlagGlobalTablesSpec)
	if global {
		m.GlobalKeyspace = r.String()
		m.GlobalTable = r.String()
	}
	m.Columns = make([]ColumnSpec, 0, m.ColumnCount)
	for i := int32(0); i < m.ColumnCount; i++ {
		var cs ColumnSpec
		if !global {
			cs.Keyspace = r.String()
			cs.Table = r.String()
		}
		cs.Name = r.String()
		cs.Type = DecodeOption(r)
		m.Columns = append(m.Columns, cs)
	}
	return m
}
