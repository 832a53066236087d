package pdbtest

import (
	"bytes"

	"github.com/jtang613/pdbscope/pkg/pdb/codeview"
	"github.com/jtang613/pdbscope/pkg/pdb/streams"
)

// Types accumulates TPI records. Each method returns the new type index.
type Types struct {
	records [][]byte
}

// Member is an LF_MEMBER field list entry.
type Member struct {
	Name   string
	Type   uint32
	Offset uint64
}

// Raw appends a record of the given leaf kind.
func (t *Types) Raw(kind uint16, data []byte) uint32 {
	var buf bytes.Buffer
	le(&buf, kind)
	buf.Write(data)
	for buf.Len()%4 != 2 {
		buf.WriteByte(byte(0xF0 | (4 - (buf.Len()+2)%4)))
	}
	t.records = append(t.records, buf.Bytes())
	return streams.TypeIndexBegin + uint32(len(t.records)-1)
}

// FieldList appends an LF_FIELDLIST holding members, then the raw entries
// in extra.
func (t *Types) FieldList(members []Member, extra ...[]byte) uint32 {
	var buf bytes.Buffer
	for _, m := range members {
		buf.Write(MemberEntry(m))
	}
	for _, e := range extra {
		buf.Write(e)
	}
	return t.Raw(streams.LF_FIELDLIST, buf.Bytes())
}

// MemberEntry encodes one padded LF_MEMBER entry.
func MemberEntry(m Member) []byte {
	var buf bytes.Buffer
	le(&buf, uint16(streams.LF_MEMBER), uint16(3), m.Type)
	buf.Write(Numeric(m.Offset))
	buf.WriteString(m.Name)
	buf.WriteByte(0)
	return pad(buf.Bytes())
}

// IndexEntry encodes an LF_INDEX continuation to another field list.
func IndexEntry(next uint32) []byte {
	var buf bytes.Buffer
	le(&buf, uint16(streams.LF_INDEX), uint16(0), next)
	return buf.Bytes()
}

// MethodEntry encodes an LF_ONEMETHOD entry for a plain method.
func MethodEntry(name string, typ uint32) []byte {
	var buf bytes.Buffer
	le(&buf, uint16(streams.LF_ONEMETHOD), uint16(3), typ)
	buf.WriteString(name)
	buf.WriteByte(0)
	return pad(buf.Bytes())
}

// Struct appends an LF_STRUCTURE record.
func (t *Types) Struct(name string, size uint64, fieldList uint32, count uint16) uint32 {
	return t.class(streams.LF_STRUCTURE, name, size, fieldList, count, 0)
}

// Forward appends a forward reference to the structure name.
func (t *Types) Forward(name string) uint32 {
	return t.class(streams.LF_STRUCTURE, name, 0, 0, 0, codeview.PropForwardRef)
}

func (t *Types) class(kind uint16, name string, size uint64, fieldList uint32, count, prop uint16) uint32 {
	var buf bytes.Buffer
	le(&buf, count, prop, fieldList, uint32(0), uint32(0))
	buf.Write(Numeric(size))
	buf.WriteString(name)
	buf.WriteByte(0)
	return t.Raw(kind, buf.Bytes())
}

// Union appends an LF_UNION record.
func (t *Types) Union(name string, size uint64, fieldList uint32, count uint16) uint32 {
	var buf bytes.Buffer
	le(&buf, count, uint16(0), fieldList)
	buf.Write(Numeric(size))
	buf.WriteString(name)
	buf.WriteByte(0)
	return t.Raw(streams.LF_UNION, buf.Bytes())
}

// Pointer appends an LF_POINTER of the given byte size.
func (t *Types) Pointer(underlying uint32, size uint32) uint32 {
	var buf bytes.Buffer
	le(&buf, underlying, uint32(0x0c)|size<<13)
	return t.Raw(streams.LF_POINTER, buf.Bytes())
}

// Array appends an LF_ARRAY of total byte size.
func (t *Types) Array(elem uint32, size uint64) uint32 {
	var buf bytes.Buffer
	le(&buf, elem, uint32(0x23))
	buf.Write(Numeric(size))
	buf.WriteByte(0)
	return t.Raw(streams.LF_ARRAY, buf.Bytes())
}

// Modifier appends an LF_MODIFIER (const) of underlying.
func (t *Types) Modifier(underlying uint32) uint32 {
	var buf bytes.Buffer
	le(&buf, underlying, uint16(1))
	return t.Raw(streams.LF_MODIFIER, buf.Bytes())
}

// Numeric encodes v as a numeric leaf.
func Numeric(v uint64) []byte {
	var buf bytes.Buffer
	switch {
	case v < streams.LF_NUMERIC:
		le(&buf, uint16(v))
	case v <= 0xFFFF:
		le(&buf, uint16(streams.LF_USHORT), uint16(v))
	case v <= 0xFFFFFFFF:
		le(&buf, uint16(streams.LF_ULONG), uint32(v))
	default:
		le(&buf, uint16(streams.LF_UQUADWORD), v)
	}
	return buf.Bytes()
}

// pad aligns a field list entry to four bytes with LF_PAD bytes.
func pad(b []byte) []byte {
	for n := (4 - len(b)%4) % 4; n > 0; n-- {
		b = append(b, byte(0xF0|n))
	}
	return b
}

// Stream encodes the TPI stream holding the accumulated records.
func (t *Types) Stream() []byte {
	var records [][]byte
	if t != nil {
		records = t.records
	}
	var data bytes.Buffer
	for _, r := range records {
		le(&data, uint16(len(r)))
		data.Write(r)
	}
	h := streams.TPIHeader{
		Version:            streams.TPIStreamVersionV80,
		HeaderSize:         56,
		TypeIndexBegin:     streams.TypeIndexBegin,
		TypeIndexEnd:       streams.TypeIndexBegin + uint32(len(records)),
		TypeRecordBytes:    uint32(data.Len()),
		HashStreamIndex:    streams.NoStream,
		HashAuxStreamIndex: streams.NoStream,
	}
	var buf bytes.Buffer
	le(&buf, h)
	buf.Write(data.Bytes())
	return buf.Bytes()
}
