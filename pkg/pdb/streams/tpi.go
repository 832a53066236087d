package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// TPI stream versions
const (
	TPIStreamVersionV70 = 19990903
	TPIStreamVersionV80 = 20040203
	tpiHeaderSize       = 56
)

// TypeIndexBegin is the first non-builtin type index.
const TypeIndexBegin = 0x1000

// TPIHeader is the header of the type stream (stream 2).
type TPIHeader struct {
	Version                 uint32
	HeaderSize              uint32
	TypeIndexBegin          uint32
	TypeIndexEnd            uint32
	TypeRecordBytes         uint32
	HashStreamIndex         uint16
	HashAuxStreamIndex      uint16
	HashKeySize             uint32
	NumHashBuckets          uint32
	HashValueBufferOffset   int32
	HashValueBufferLength   uint32
	IndexOffsetBufferOffset int32
	IndexOffsetBufferLength uint32
	HashAdjBufferOffset     int32
	HashAdjBufferLength     uint32
}

// TypeRecord is one record of the type stream. Data excludes the length and
// kind prefix.
type TypeRecord struct {
	Index uint32
	Kind  uint16
	Data  []byte
}

// TPI is the decoded type stream. Records are stored in index order.
type TPI struct {
	Header  TPIHeader
	Records []TypeRecord
}

// ReadTPI decodes the type stream header and splits its records. A truncated
// record ends the table.
func ReadTPI(data []byte) (*TPI, error) {
	if len(data) < tpiHeaderSize {
		return nil, fmt.Errorf("TPI stream too small: %d bytes", len(data))
	}
	var h TPIHeader
	if err := binary.Read(bytes.NewReader(data[:tpiHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to read TPI header: %w", err)
	}
	if h.Version != TPIStreamVersionV80 && h.Version != TPIStreamVersionV70 {
		return nil, fmt.Errorf("unsupported TPI version: %d", h.Version)
	}
	if h.TypeIndexEnd < h.TypeIndexBegin {
		return nil, fmt.Errorf("invalid type index range [0x%x, 0x%x)", h.TypeIndexBegin, h.TypeIndexEnd)
	}

	start, err := safecast.Conv[int](h.HeaderSize)
	if err != nil || start > len(data) {
		return nil, fmt.Errorf("invalid TPI header size %d", h.HeaderSize)
	}
	end := min(start+int(h.TypeRecordBytes), len(data))
	r := newReader(data[start:end])

	tpi := &TPI{Header: h}
	for ti := h.TypeIndexBegin; ti < h.TypeIndexEnd && r.remaining() >= 4; ti++ {
		n := int(r.u16())
		rec := r.take(n)
		if rec == nil || n < 2 {
			break
		}
		tpi.Records = append(tpi.Records, TypeRecord{
			Index: ti,
			Kind:  binary.LittleEndian.Uint16(rec),
			Data:  rec[2:],
		})
	}
	return tpi, nil
}

// Type returns the record for ti, or nil for builtins and unknown indexes.
func (t *TPI) Type(ti uint32) *TypeRecord {
	if ti < t.Header.TypeIndexBegin {
		return nil
	}
	i := int(ti - t.Header.TypeIndexBegin)
	if i >= len(t.Records) {
		return nil
	}
	return &t.Records[i]
}

// Leaf kinds
const (
	LF_MODIFIER  = 0x1001
	LF_POINTER   = 0x1002
	LF_PROCEDURE = 0x1008
	LF_MFUNCTION = 0x1009
	LF_FIELDLIST = 0x1203
	LF_BITFIELD  = 0x1205

	LF_BCLASS    = 0x1400
	LF_VBCLASS   = 0x1401
	LF_IVBCLASS  = 0x1402
	LF_INDEX     = 0x1404
	LF_VFUNCTAB  = 0x1409
	LF_ENUMERATE = 0x1502
	LF_ARRAY     = 0x1503
	LF_CLASS     = 0x1504
	LF_STRUCTURE = 0x1505
	LF_UNION     = 0x1506
	LF_ENUM      = 0x1507
	LF_MEMBER    = 0x150d
	LF_STMEMBER  = 0x150e
	LF_METHOD    = 0x150f
	LF_NESTTYPE  = 0x1510
	LF_ONEMETHOD = 0x1511
)

// Numeric leaf prefixes
const (
	LF_NUMERIC   = 0x8000
	LF_CHAR      = 0x8000
	LF_SHORT     = 0x8001
	LF_USHORT    = 0x8002
	LF_LONG      = 0x8003
	LF_ULONG     = 0x8004
	LF_QUADWORD  = 0x8009
	LF_UQUADWORD = 0x800a
)

// ParseNumeric decodes a numeric leaf. Signed encodings are sign-extended.
// It returns the value and bytes consumed; zero consumed means malformed.
func ParseNumeric(data []byte) (uint64, int) {
	if len(data) < 2 {
		return 0, 0
	}
	v := binary.LittleEndian.Uint16(data)
	if v < LF_NUMERIC {
		return uint64(v), 2
	}
	p := data[2:]
	switch v {
	case LF_CHAR:
		if len(p) >= 1 {
			return uint64(int64(int8(p[0]))), 3
		}
	case LF_SHORT:
		if len(p) >= 2 {
			return uint64(int64(int16(binary.LittleEndian.Uint16(p)))), 4
		}
	case LF_USHORT:
		if len(p) >= 2 {
			return uint64(binary.LittleEndian.Uint16(p)), 4
		}
	case LF_LONG:
		if len(p) >= 4 {
			return uint64(int64(int32(binary.LittleEndian.Uint32(p)))), 6
		}
	case LF_ULONG:
		if len(p) >= 4 {
			return uint64(binary.LittleEndian.Uint32(p)), 6
		}
	case LF_QUADWORD, LF_UQUADWORD:
		if len(p) >= 8 {
			return binary.LittleEndian.Uint64(p), 10
		}
	}
	return 0, 0
}

// Builtin type modes (bits 8-11 of a builtin index)
const (
	TM_DIRECT  = 0
	TM_NPTR    = 1
	TM_FPTR    = 2
	TM_HPTR    = 3
	TM_NPTR32  = 4
	TM_FPTR32  = 5
	TM_NPTR64  = 6
	TM_NPTR128 = 7
)

// BuiltinSize returns the byte size of a builtin type index.
func BuiltinSize(ti uint32) uint64 {
	switch (ti >> 8) & 0xF {
	case TM_DIRECT:
	case TM_NPTR:
		return 2
	case TM_FPTR, TM_HPTR, TM_NPTR32:
		return 4
	case TM_FPTR32:
		return 6
	case TM_NPTR64:
		return 8
	case TM_NPTR128:
		return 16
	}

	switch ti & 0xFF {
	case 0x10, 0x20, 0x30, 0x68, 0x69, 0x70, 0x7c: // char, uchar, bool8, int8, uint8, rchar, char8
		return 1
	case 0x11, 0x21, 0x31, 0x46, 0x71, 0x72, 0x73, 0x7a: // short, ushort, bool16, real16, wchar, int16, uint16, char16
		return 2
	case 0x08, 0x12, 0x22, 0x32, 0x40, 0x74, 0x75, 0x7b: // hresult, long, ulong, bool32, real32, int32, uint32, char32
		return 4
	case 0x44: // real48
		return 6
	case 0x13, 0x23, 0x33, 0x41, 0x50, 0x76, 0x77: // quad, uquad, bool64, real64, cplx32, int64, uint64
		return 8
	case 0x42: // real80
		return 10
	case 0x14, 0x24, 0x43, 0x51, 0x78, 0x79: // oct, uoct, real128, cplx64, int128, uint128
		return 16
	case 0x52: // cplx80
		return 20
	case 0x53: // cplx128
		return 32
	}
	return 0
}
