package codeview

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/jtang613/pdbscope/pkg/pdb/streams"
)

// Class property bits
const (
	PropForwardRef = 0x80
	PropScoped     = 0x100
)

// maxTypeDepth bounds recursion through modifiers, arrays and field-list
// continuations.
const maxTypeDepth = 64

// UDT is a decoded LF_CLASS, LF_STRUCTURE or LF_UNION record.
type UDT struct {
	Index      uint32
	Kind       uint16
	Count      uint16
	Property   uint16
	FieldList  uint32
	Size       uint64
	Name       string
	ForwardRef bool
}

// Member is a data member taken from a field list.
type Member struct {
	Name      string
	TypeIndex uint32
	Offset    uint64
}

// ParseUDT decodes a class, structure or union record.
func ParseUDT(rec *streams.TypeRecord) (*UDT, error) {
	d := rec.Data
	if len(d) < 8 {
		return nil, fmt.Errorf("type 0x%x: record too small: %d bytes", rec.Index, len(d))
	}
	u := &UDT{
		Index:     rec.Index,
		Kind:      rec.Kind,
		Count:     binary.LittleEndian.Uint16(d[0:]),
		Property:  binary.LittleEndian.Uint16(d[2:]),
		FieldList: binary.LittleEndian.Uint32(d[4:]),
	}
	u.ForwardRef = u.Property&PropForwardRef != 0

	sizeAt := 8
	switch rec.Kind {
	case streams.LF_CLASS, streams.LF_STRUCTURE:
		// derived and vshape precede the size
		sizeAt = 16
	case streams.LF_UNION:
	default:
		return nil, fmt.Errorf("type 0x%x: leaf 0x%04x is not a user-defined type", rec.Index, rec.Kind)
	}
	if len(d) < sizeAt {
		return nil, fmt.Errorf("type 0x%x: record too small: %d bytes", rec.Index, len(d))
	}
	size, n := streams.ParseNumeric(d[sizeAt:])
	if n == 0 {
		return nil, fmt.Errorf("type 0x%x: malformed size", rec.Index)
	}
	u.Size = size
	u.Name, _ = streams.ParseString(d[sizeAt+n:])
	return u, nil
}

// IsUDT reports whether kind is a class, structure or union leaf.
func IsUDT(kind uint16) bool {
	switch kind {
	case streams.LF_CLASS, streams.LF_STRUCTURE, streams.LF_UNION:
		return true
	}
	return false
}

// TypeTable answers member and size queries over a decoded type stream.
type TypeTable struct {
	tpi *streams.TPI
	// sizes of complete definitions by name, used for forward references
	sizes map[string]uint64
}

// NewTypeTable indexes the complete user-defined types of tpi.
func NewTypeTable(tpi *streams.TPI) *TypeTable {
	t := &TypeTable{tpi: tpi, sizes: make(map[string]uint64)}
	for i := range tpi.Records {
		rec := &tpi.Records[i]
		if !IsUDT(rec.Kind) {
			continue
		}
		u, err := ParseUDT(rec)
		if err != nil || u.ForwardRef || u.Name == "" {
			continue
		}
		if _, seen := t.sizes[u.Name]; !seen {
			t.sizes[u.Name] = u.Size
		}
	}
	return t
}

// UDTs yields every class, structure and union record in index order.
func (t *TypeTable) UDTs() iter.Seq2[*UDT, error] {
	return func(yield func(*UDT, error) bool) {
		for i := range t.tpi.Records {
			rec := &t.tpi.Records[i]
			if !IsUDT(rec.Kind) {
				continue
			}
			if !yield(ParseUDT(rec)) {
				return
			}
		}
	}
}

// TypeSize returns the byte size of ti, or 0 when it cannot be determined.
func (t *TypeTable) TypeSize(ti uint32) uint64 {
	return t.typeSize(ti, 0)
}

func (t *TypeTable) typeSize(ti uint32, depth int) uint64 {
	if ti < streams.TypeIndexBegin {
		return streams.BuiltinSize(ti)
	}
	if depth > maxTypeDepth {
		return 0
	}
	rec := t.tpi.Type(ti)
	if rec == nil {
		return 0
	}
	d := rec.Data

	switch rec.Kind {
	case streams.LF_CLASS, streams.LF_STRUCTURE, streams.LF_UNION:
		u, err := ParseUDT(rec)
		if err != nil {
			return 0
		}
		if u.ForwardRef {
			return t.sizes[u.Name]
		}
		return u.Size
	case streams.LF_ENUM:
		if len(d) < 8 {
			return 0
		}
		return t.typeSize(binary.LittleEndian.Uint32(d[4:]), depth+1)
	case streams.LF_POINTER:
		if len(d) < 8 {
			return 0
		}
		return uint64(binary.LittleEndian.Uint32(d[4:])>>13) & 0x3F
	case streams.LF_ARRAY:
		if len(d) < 10 {
			return 0
		}
		size, _ := streams.ParseNumeric(d[8:])
		return size
	case streams.LF_MODIFIER, streams.LF_BITFIELD:
		if len(d) < 4 {
			return 0
		}
		return t.typeSize(binary.LittleEndian.Uint32(d[0:]), depth+1)
	}
	return 0
}

// Members yields the data members of a field list in declaration order,
// following LF_INDEX continuations. Static members, methods, nested types and
// base classes are skipped. An undecodable entry is yielded as an error and
// ends the walk since the remaining entries cannot be located.
func (t *TypeTable) Members(fieldList uint32) iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		t.walkFieldList(fieldList, 0, yield)
	}
}

func (t *TypeTable) walkFieldList(ti uint32, depth int, yield func(Member, error) bool) bool {
	if ti == 0 {
		return true
	}
	if depth > maxTypeDepth {
		return yield(Member{}, fmt.Errorf("field list 0x%x: continuation chain too deep", ti))
	}
	rec := t.tpi.Type(ti)
	if rec == nil {
		return yield(Member{}, fmt.Errorf("field list 0x%x not found", ti))
	}
	if rec.Kind != streams.LF_FIELDLIST {
		return yield(Member{}, fmt.Errorf("type 0x%x: leaf 0x%04x is not a field list", ti, rec.Kind))
	}

	d := rec.Data
	for off := 0; off+2 <= len(d); {
		if d[off] > 0xF0 {
			off += int(d[off] & 0x0F)
			continue
		}
		leaf := binary.LittleEndian.Uint16(d[off:])
		body := d[off+2:]

		n, m, next, err := parseFieldEntry(leaf, body)
		if err != nil {
			yield(Member{}, fmt.Errorf("field list 0x%x offset %d: %w", ti, off, err))
			return false
		}
		if next != 0 {
			return t.walkFieldList(next, depth+1, yield)
		}
		if m != nil && !yield(*m, nil) {
			return false
		}
		off += 2 + n
	}
	return true
}

// parseFieldEntry decodes one field-list entry body. It returns the bytes
// consumed, the member for LF_MEMBER, and the continuation for LF_INDEX.
func parseFieldEntry(leaf uint16, b []byte) (int, *Member, uint32, error) {
	need := func(n int) error {
		if len(b) < n {
			return fmt.Errorf("leaf 0x%04x truncated", leaf)
		}
		return nil
	}
	numeric := func(at int) (int, uint64, error) {
		if err := need(at + 2); err != nil {
			return 0, 0, err
		}
		v, n := streams.ParseNumeric(b[at:])
		if n == 0 {
			return 0, 0, fmt.Errorf("leaf 0x%04x: malformed numeric", leaf)
		}
		return at + n, v, nil
	}
	name := func(at int) int {
		_, n := streams.ParseString(b[at:])
		return at + n
	}

	switch leaf {
	case streams.LF_MEMBER:
		end, off, err := numeric(6)
		if err != nil {
			return 0, nil, 0, err
		}
		s, _ := streams.ParseString(b[end:])
		m := &Member{Name: s, TypeIndex: binary.LittleEndian.Uint32(b[2:]), Offset: off}
		return name(end), m, 0, nil
	case streams.LF_INDEX:
		if err := need(6); err != nil {
			return 0, nil, 0, err
		}
		return 6, nil, binary.LittleEndian.Uint32(b[2:]), nil
	case streams.LF_BCLASS:
		end, _, err := numeric(6)
		return end, nil, 0, err
	case streams.LF_VBCLASS, streams.LF_IVBCLASS:
		end, _, err := numeric(10)
		if err != nil {
			return 0, nil, 0, err
		}
		end, _, err = numeric(end)
		return end, nil, 0, err
	case streams.LF_STMEMBER, streams.LF_NESTTYPE:
		if err := need(6); err != nil {
			return 0, nil, 0, err
		}
		return name(6), nil, 0, nil
	case streams.LF_METHOD:
		if err := need(6); err != nil {
			return 0, nil, 0, err
		}
		return name(6), nil, 0, nil
	case streams.LF_ONEMETHOD:
		if err := need(6); err != nil {
			return 0, nil, 0, err
		}
		at := 6
		// introducing virtuals carry a vtable offset
		if mprop := (binary.LittleEndian.Uint16(b) >> 2) & 7; mprop == 4 || mprop == 6 {
			at += 4
			if err := need(at); err != nil {
				return 0, nil, 0, err
			}
		}
		return name(at), nil, 0, nil
	case streams.LF_VFUNCTAB:
		if err := need(6); err != nil {
			return 0, nil, 0, err
		}
		return 6, nil, 0, nil
	case streams.LF_ENUMERATE:
		end, _, err := numeric(2)
		if err != nil {
			return 0, nil, 0, err
		}
		return name(end), nil, 0, nil
	}
	return 0, nil, 0, fmt.Errorf("unsupported field leaf 0x%04x", leaf)
}
