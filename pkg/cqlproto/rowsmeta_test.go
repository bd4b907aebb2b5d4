package cqlproto

import (
	"testing"

	"github.com/twmb/cql-go/pkg/cqlbin"
)

func TestRowsMetadataGlobalTablesSpec(t *testing.T) {
	var buf []byte
	buf = cqlbin.AppendInt(buf, int32(MetaFlagGlobalTablesSpec))
	buf = cqlbin.AppendInt(buf, 2)
	buf = cqlbin.AppendString(buf, "ks1")
	buf = cqlbin.AppendString(buf, "t1")
	buf = cqlbin.AppendString(buf, "id")
	buf = AppendOption(buf, ColumnType{ID: TypeUUID})
	buf = cqlbin.AppendString(buf, "name")
	buf = AppendOption(buf, ColumnType{ID: TypeVarchar})

	r := &cqlbin.Reader{Src: buf}
	m := DecodeRowsMetadata(r, Version4, false)
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	if m.ColumnCount != 2 || m.GlobalKeyspace != "ks1" || m.GlobalTable != "t1" {
		t.Fatalf("got %+v", m)
	}
	if len(m.Columns) != 2 || m.Columns[0].Name != "id" || m.Columns[1].Type.ID != TypeVarchar {
		t.Fatalf("got columns %+v", m.Columns)
	}
}

func TestRowsMetadataHasMorePages(t *testing.T) {
	var buf []byte
	buf = cqlbin.AppendInt(buf, int32(MetaFlagHasMorePages|MetaFlagNoMetadata))
	buf = cqlbin.AppendInt(buf, 0)
	buf = cqlbin.AppendBytes(buf, []byte("page-state"), true)

	r := &cqlbin.Reader{Src: buf}
	m := DecodeRowsMetadata(r, Version4, false)
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	if string(m.PagingState) != "page-state" {
		t.Fatalf("PagingState = %q", m.PagingState)
	}
	if m.Columns != nil {
		t.Fatalf("expected no columns with NoMetadata set, got %+v", m.Columns)
	}
}

func TestRowsMetadataPreparedPrelude(t *testing.T) {
	var buf []byte
	buf = cqlbin.AppendInt(buf, int32(MetaFlagGlobalTablesSpec))
	buf = cqlbin.AppendInt(buf, 1)
	buf = cqlbin.AppendShortBytes(buf, []byte{0xAA, 0xBB})
	buf = cqlbin.AppendShort(buf, 1)
	buf = cqlbin.AppendSignedShort(buf, 0)
	buf = cqlbin.AppendString(buf, "ks1")
	buf = cqlbin.AppendString(buf, "t1")
	buf = cqlbin.AppendString(buf, "id")
	buf = AppendOption(buf, ColumnType{ID: TypeUUID})

	r := &cqlbin.Reader{Src: buf}
	m := DecodeRowsMetadata(r, Version4, true)
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	if string(m.PreparedResultID) != string([]byte{0xAA, 0xBB}) {
		t.Fatalf("PreparedResultID = %v", m.PreparedResultID)
	}
	if len(m.PartitionKeyIndexes) != 1 || m.PartitionKeyIndexes[0] != 0 {
		t.Fatalf("PartitionKeyIndexes = %v", m.PartitionKeyIndexes)
	}
}
