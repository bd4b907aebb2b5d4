package cqlproto

import "github.com/twmb/cql-go/pkg/cqlbin"

// TypeID is the [option] type code for a CQL column type (§4.1).
type TypeID uint16

const (
	TypeCustom    TypeID = 0x0000
	TypeASCII     TypeID = 0x0001
	TypeBigint    TypeID = 0x0002
	TypeBlob      TypeID = 0x0003
	TypeBoolean   TypeID = 0x0004
	TypeCounter   TypeID = 0x0005
	TypeDecimal   TypeID = 0x0006
	TypeDouble    TypeID = 0x0007
	TypeFloat     TypeID = 0x0008
	TypeInt       TypeID = 0x0009
	TypeTimestamp TypeID = 0x000B
	TypeUUID      TypeID = 0x000C
	TypeVarchar   TypeID = 0x000D
	TypeVarint    TypeID = 0x000E
	TypeTimeUUID  TypeID = 0x000F
	TypeInet      TypeID = 0x0010
	TypeDate      TypeID = 0x0011
	TypeTime      TypeID = 0x0012
	TypeSmallint  TypeID = 0x0013
	TypeTinyint   TypeID = 0x0014
	TypeDuration  TypeID = 0x0015
	TypeList      TypeID = 0x0020
	TypeMap       TypeID = 0x0021
	TypeSet       TypeID = 0x0022
	TypeUDT       TypeID = 0x0030
	TypeTuple     TypeID = 0x0031
)

// ColumnType is the recursive CQL type descriptor ([option] per §4.1),
// covering primitives and the composite variants list/set/map/udt/tuple/
// custom.
type ColumnType struct {
	ID TypeID

	// Custom: the class name (TypeCustom only).
	Custom string

	// List/Set: element type.
	Elem *ColumnType

	// Map: key/value types.
	Key *ColumnType
	Val *ColumnType

	// UDT
	Keyspace string
	UDTName  string
	Fields   []UDTField

	// Tuple
	TupleElems []ColumnType
}

// UDTField is one (name, type) pair in a user-defined type.
type UDTField struct {
	Name string
	Type ColumnType
}

// IsPrimitive reports whether this type is a fixed/variable-length scalar
// with no nested type, i.e. not list/set/map/udt/tuple/custom.
func (t ColumnType) IsPrimitive() bool {
	switch t.ID {
	case TypeList, TypeSet, TypeMap, TypeUDT, TypeTuple, TypeCustom:
		return false
	default:
		return true
	}
}

// DecodeOption reads an [option]: [short] type code + optional payload,
// recursing for composite types, per spec.md §4.1.
func DecodeOption(r *cqlbin.Reader) ColumnType {
	id := TypeID(r.Short())
	t := ColumnType{ID: id}
	switch id {
	case TypeCustom:
		t.Custom = r.String()
	case TypeList, TypeSet:
		elem := DecodeOption(r)
		t.Elem = &elem
	case TypeMap:
		key := DecodeOption(r)
		val := DecodeOption(r)
		t.Key = &key
		t.Val = &val
	case TypeUDT:
		t.Keyspace = r.String()
		t.UDTName = r.String()
		n := r.Short()
		t.Fields = make([]UDTField, 0, n)
		for i := 0; i < int(n); i++ {
			name := r.String()
			ft := DecodeOption(r)
			t.Fields = append(t.Fields, UDTField{Name: name, Type: ft})
		}
	case TypeTuple:
		n := r.Short()
		t.TupleElems = make([]ColumnType, 0, n)
		for i := 0; i < int(n); i++ {
			t.TupleElems = append(t.TupleElems, DecodeOption(r))
		}
	}
	return t
}

// AppendOption serializes a ColumnType back to an [option], the inverse of
// DecodeOption.
func AppendOption(dst []byte, t ColumnType) []byte {
	dst = cqlbin.AppendShort(dst, uint16(t.ID))
	switch t.ID {
	case TypeCustom:
		dst = cqlbin.AppendString(dst, t.Custom)
	case TypeList, TypeSet:
		dst = AppendOption(dst, *t.Elem)
	case TypeMap:
		dst = AppendOption(dst, *t.Key)
		dst = AppendOption(dst, *t.Val)
	case TypeUDT:
		dst = cqlbin.AppendString(dst, t.Keyspace)
		dst = cqlbin.AppendString(dst, t.UDTName)
		dst = cqlbin.AppendShort(dst, uint16(len(t.Fields)))
		for _, f := range t.Fields {
			dst = cqlbin.AppendString(dst, f.Name)
			dst = AppendOption(dst, f.Type)
		}
	case TypeTuple:
		dst = cqlbin.AppendShort(dst, uint16(len(t.TupleElems)))
		for _, e := range t.TupleElems {
			dst = AppendOption(dst, e)
		}
	}
	return dst
}
