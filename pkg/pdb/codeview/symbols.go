// Package codeview decodes CodeView symbol and type records.
package codeview

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/jtang613/pdbscope/pkg/pdb/streams"
)

// Symbol record kinds
const (
	S_END        = 0x0006
	S_PUB32      = 0x110e
	S_LPROC32    = 0x110f
	S_GPROC32    = 0x1110
	S_LPROC32_ID = 0x1146
	S_GPROC32_ID = 0x1147
)

// CVSignatureC13 prefixes every module symbol stream.
const CVSignatureC13 = 4

// Public symbol flags
const (
	PubCode     = 0x1
	PubFunction = 0x2
	PubManaged  = 0x4
	PubMSIL     = 0x8
)

// Record is one symbol record. Data excludes the length and kind prefix.
type Record struct {
	Kind uint16
	Data []byte
}

// Records walks a symbol record buffer. A length that overruns the buffer
// is yielded as an error and ends the walk.
func Records(data []byte) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		off := 0
		for off+4 <= len(data) {
			n := int(binary.LittleEndian.Uint16(data[off:]))
			if n < 2 || off+2+n > len(data) {
				yield(Record{}, fmt.Errorf("symbol record at offset %d has invalid length %d", off, n))
				return
			}
			rec := Record{
				Kind: binary.LittleEndian.Uint16(data[off+2:]),
				Data: data[off+4 : off+2+n],
			}
			if !yield(rec, nil) {
				return
			}
			off += 2 + n
		}
	}
}

// ModuleRecords walks a module symbol stream, skipping its signature and
// stopping at symBytes.
func ModuleRecords(data []byte, symBytes uint32) iter.Seq2[Record, error] {
	end := min(int(symBytes), len(data))
	if end < 4 || binary.LittleEndian.Uint32(data) != CVSignatureC13 {
		return func(yield func(Record, error) bool) {
			yield(Record{}, fmt.Errorf("module symbol stream lacks the C13 signature"))
		}
	}
	return Records(data[4:end])
}

// PubSym is an S_PUB32 record.
type PubSym struct {
	Flags   uint32
	Offset  uint32
	Segment uint16
	Name    string
}

// ParsePubSym decodes an S_PUB32 record body.
func ParsePubSym(data []byte) (*PubSym, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("public symbol too small: %d bytes", len(data))
	}
	name, _ := streams.ParseString(data[10:])
	return &PubSym{
		Flags:   binary.LittleEndian.Uint32(data[0:]),
		Offset:  binary.LittleEndian.Uint32(data[4:]),
		Segment: binary.LittleEndian.Uint16(data[8:]),
		Name:    name,
	}, nil
}

// ProcSym is an S_GPROC32 or S_LPROC32 record, or one of their _ID forms.
type ProcSym struct {
	Length    uint32
	TypeIndex uint32
	Offset    uint32
	Segment   uint16
	Flags     uint8
	Name      string
}

// ParseProcSym decodes a procedure record body.
func ParseProcSym(data []byte) (*ProcSym, error) {
	if len(data) < 35 {
		return nil, fmt.Errorf("procedure symbol too small: %d bytes", len(data))
	}
	name, _ := streams.ParseString(data[35:])
	return &ProcSym{
		Length:    binary.LittleEndian.Uint32(data[12:]),
		TypeIndex: binary.LittleEndian.Uint32(data[24:]),
		Offset:    binary.LittleEndian.Uint32(data[28:]),
		Segment:   binary.LittleEndian.Uint16(data[32:]),
		Flags:     data[34],
		Name:      name,
	}, nil
}

// IsProcSymbol reports whether kind is a procedure record.
func IsProcSymbol(kind uint16) bool {
	switch kind {
	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID:
		return true
	}
	return false
}
