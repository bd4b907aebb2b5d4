package cqlproto

import (
	"testing"

	"github.com/twmb/cql-go/pkg/cqlbin"
)

func roundTripOption(t *testing.T, typ ColumnType) ColumnType {
	t.Helper()
	buf := AppendOption(nil, typ)
	r := &cqlbin.Reader{Src: buf}
	got := DecodeOption(r)
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete(): %v", err)
	}
	return got
}

func TestOptionRoundTripPrimitive(t *testing.T) {
	got := roundTripOption(t, ColumnType{ID: TypeBigint})
	if got.ID != TypeBigint || !got.IsPrimitive() {
		t.Fatalf("got %+v", got)
	}
}

func TestOptionRoundTripListOfText(t *testing.T) {
	elem := ColumnType{ID: TypeVarchar}
	got := roundTripOption(t, ColumnType{ID: TypeList, Elem: &elem})
	if got.ID != TypeList || got.Elem == nil || got.Elem.ID != TypeVarchar {
		t.Fatalf("got %+v", got)
	}
}

func TestOptionRoundTripMap(t *testing.T) {
	key := ColumnType{ID: TypeVarchar}
	val := ColumnType{ID: TypeInt}
	got := roundTripOption(t, ColumnType{ID: TypeMap, Key: &key, Val: &val})
	if got.Key.ID != TypeVarchar || got.Val.ID != TypeInt {
		t.Fatalf("got %+v", got)
	}
}

func TestOptionRoundTripUDT(t *testing.T) {
	typ := ColumnType{
		ID:       TypeUDT,
		Keyspace: "ks",
		UDTName:  "address",
		Fields: []UDTField{
			{Name: "street", Type: ColumnType{ID: TypeVarchar}},
			{Name: "zip", Type: ColumnType{ID: TypeInt}},
		},
	}
	got := roundTripOption(t, typ)
	if got.Keyspace != "ks" || got.UDTName != "address" || len(got.Fields) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Fields[0].Name != "street" || got.Fields[0].Type.ID != TypeVarchar {
		t.Fatalf("got field 0 = %+v", got.Fields[0])
	}
}

func TestOptionRoundTripTuple(t *testing.T) {
	typ := ColumnType{
		ID:         TypeTuple,
		TupleElems: []ColumnType{{ID: TypeInt}, {ID: TypeVarchar}, {ID: TypeBoolean}},
	}
	got := roundTripOption(t, typ)
	if len(got.TupleElems) != 3 || got.TupleElems[2].ID != TypeBoolean {
		t.Fatalf("got %+v", got)
	}
}

func TestOptionRoundTripCustom(t *testing.T) {
	got := roundTripOption(t, ColumnType{ID: TypeCustom, Custom: "org.example.MyType"})
	if got.Custom != "org.example.MyType" {
		t.Fatalf("got %+v", got)
	}
}

func TestOptionRoundTripNestedSetOfMap(t *testing.T) {
	key := ColumnType{ID: TypeVarchar}
	val := ColumnType{ID: TypeBigint}
	inner := ColumnType{ID: TypeMap, Key: &key, Val: &val}
	got := roundTripOption(t, ColumnType{ID: TypeSet, Elem: &inner})
	if got.ID != TypeSet || got.Elem.ID != TypeMap || got.Elem.Key.ID != TypeVarchar {
		t.Fatalf("got %+v", got)
	}
}
