// Package pdbtest writes small synthetic PDB files for tests.
package pdbtest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jtang613/pdbscope/pkg/pdb/codeview"
	"github.com/jtang613/pdbscope/pkg/pdb/msf"
	"github.com/jtang613/pdbscope/pkg/pdb/streams"
)

// BlockSize is the MSF block size of generated files.
const BlockSize = 512

// Fixed stream layout of generated files.
const (
	StreamNames         = 4
	StreamSections      = 5
	StreamSymbolRecords = 6
	StreamModule        = 7
)

// Section is an image section.
type Section struct {
	Name string
	RVA  uint32
	Size uint32
}

// Public is an S_PUB32 record.
type Public struct {
	Name    string
	Segment uint16
	Offset  uint32
}

// Proc is an S_GPROC32 record placed in the single module stream.
type Proc struct {
	Name      string
	Segment   uint16
	Offset    uint32
	Length    uint32
	TypeIndex uint32
}

// Builder describes the file to generate. The zero value, after NewBuilder,
// yields a valid empty x64 PDB.
type Builder struct {
	Machine  uint16
	GUID     [16]byte
	Age      uint32
	Sections []Section
	Publics  []Public
	Procs    []Proc
	Types    *Types
	// SkipSectionHeaders leaves the section header stream out of the DBI
	// debug header.
	SkipSectionHeaders bool
}

// NewBuilder returns a builder for an x64 PDB with one .text section at
// 0x1000.
func NewBuilder() *Builder {
	return &Builder{
		Machine:  uint16(pe.IMAGE_FILE_MACHINE_AMD64),
		Age:      1,
		Sections: []Section{{Name: ".text", RVA: 0x1000, Size: 0x1000}},
		Types:    &Types{},
	}
}

// Write generates the file in a temporary directory and returns its path.
func (b *Builder) Write(tb testing.TB) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "test.pdb")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		tb.Fatalf("failed to write PDB: %v", err)
	}
	return path
}

// Bytes returns the generated file contents.
func (b *Builder) Bytes() []byte {
	return Container(b.Streams())
}

// Streams returns the generated streams in directory order, for callers
// that corrupt one before packing them with Container.
func (b *Builder) Streams() [][]byte {
	var module []byte
	if len(b.Procs) > 0 {
		module = b.moduleStream()
	}
	list := [][]byte{
		nil,
		b.infoStream(),
		b.Types.Stream(),
		b.dbiStream(len(module)),
		[]byte("/names\x00\x00"),
		b.sectionStream(),
		b.symbolStream(),
		module,
	}
	return list
}

func (b *Builder) infoStream() []byte {
	var buf bytes.Buffer
	le(&buf, uint32(streams.PDBStreamVersionVC70), uint32(0x5f000000), b.Age)
	buf.Write(b.GUID[:])
	names := []byte("/names\x00")
	le(&buf, uint32(len(names)))
	buf.Write(names)
	// one entry, capacity one, present bitmap {1}, empty deleted bitmap
	le(&buf, uint32(1), uint32(1), uint32(1), uint32(1), uint32(0))
	le(&buf, uint32(0), uint32(StreamNames))
	return buf.Bytes()
}

func (b *Builder) dbiStream(moduleSize int) []byte {
	var mods bytes.Buffer
	if moduleSize > 0 {
		hdr := make([]byte, 64)
		binary.LittleEndian.PutUint16(hdr[34:], StreamModule)
		binary.LittleEndian.PutUint32(hdr[36:], uint32(moduleSize))
		mods.Write(hdr)
		mods.WriteString("test.obj\x00test.obj\x00")
		for mods.Len()%4 != 0 {
			mods.WriteByte(0)
		}
	}

	dbg := make([]uint16, streams.DebugHeaderSectionHeaders+6)
	for i := range dbg {
		dbg[i] = streams.NoStream
	}
	if !b.SkipSectionHeaders {
		dbg[streams.DebugHeaderSectionHeaders] = StreamSections
	}

	h := streams.DBIHeader{
		VersionSignature:      -1,
		VersionHeader:         streams.DBIStreamVersionV70,
		Age:                   b.Age,
		GlobalStreamIndex:     streams.NoStream,
		PublicStreamIndex:     streams.NoStream,
		SymRecordStream:       StreamSymbolRecords,
		ModInfoSize:           int32(mods.Len()),
		OptionalDbgHeaderSize: int32(len(dbg) * 2),
		Machine:               b.Machine,
	}
	var buf bytes.Buffer
	le(&buf, h)
	buf.Write(mods.Bytes())
	le(&buf, dbg)
	return buf.Bytes()
}

func (b *Builder) sectionStream() []byte {
	var buf bytes.Buffer
	for _, s := range b.Sections {
		var sh pe.SectionHeader32
		copy(sh.Name[:], s.Name)
		sh.VirtualAddress = s.RVA
		sh.VirtualSize = s.Size
		le(&buf, sh)
	}
	return buf.Bytes()
}

func (b *Builder) symbolStream() []byte {
	var buf bytes.Buffer
	for _, p := range b.Publics {
		var body bytes.Buffer
		le(&body, uint32(codeview.PubFunction), p.Offset, p.Segment)
		body.WriteString(p.Name)
		body.WriteByte(0)
		SymbolRecord(&buf, codeview.S_PUB32, body.Bytes())
	}
	return buf.Bytes()
}

func (b *Builder) moduleStream() []byte {
	var buf bytes.Buffer
	le(&buf, uint32(codeview.CVSignatureC13))
	for _, p := range b.Procs {
		var body bytes.Buffer
		// parent, end, next, length, debug start, debug end, type
		le(&body, uint32(0), uint32(0), uint32(0), p.Length, uint32(0), uint32(0), p.TypeIndex)
		le(&body, p.Offset, p.Segment, uint8(0))
		body.WriteString(p.Name)
		body.WriteByte(0)
		SymbolRecord(&buf, codeview.S_GPROC32, body.Bytes())
		SymbolRecord(&buf, codeview.S_END, nil)
	}
	return buf.Bytes()
}

// SymbolRecord appends a length-prefixed symbol record, zero padded to four
// bytes.
func SymbolRecord(buf *bytes.Buffer, kind uint16, body []byte) {
	pad := (4 - (4+len(body))%4) % 4
	le(buf, uint16(2+len(body)+pad), kind)
	buf.Write(body)
	buf.Write(make([]byte, pad))
}

// Container lays streams out in an MSF 7.00 file: superblock, two free block
// maps, the block map, the directory, then stream data.
func Container(list [][]byte) []byte {
	blocks := func(n int) int { return (n + BlockSize - 1) / BlockSize }

	dirBytes := 4 + 4*len(list)
	for _, s := range list {
		dirBytes += 4 * blocks(len(s))
	}
	next := 4 + blocks(dirBytes)

	var dir bytes.Buffer
	le(&dir, uint32(len(list)))
	for _, s := range list {
		le(&dir, uint32(len(s)))
	}
	start := make([]int, len(list))
	for i, s := range list {
		start[i] = next
		for j := range blocks(len(s)) {
			le(&dir, uint32(next+j))
		}
		next += blocks(len(s))
	}

	out := make([]byte, next*BlockSize)
	sb := msf.SuperBlock{
		BlockSize:         BlockSize,
		FreeBlockMapBlock: 1,
		NumBlocks:         uint32(next),
		NumDirectoryBytes: uint32(dir.Len()),
		BlockMapAddr:      3,
	}
	copy(sb.Magic[:], msf.Magic)
	var hdr bytes.Buffer
	le(&hdr, sb)
	copy(out, hdr.Bytes())

	for i := range blocks(dir.Len()) {
		binary.LittleEndian.PutUint32(out[3*BlockSize+4*i:], uint32(4+i))
	}
	copy(out[4*BlockSize:], dir.Bytes())
	for i, s := range list {
		copy(out[start[i]*BlockSize:], s)
	}
	return out
}

func le(buf *bytes.Buffer, vs ...any) {
	for _, v := range vs {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}
}
