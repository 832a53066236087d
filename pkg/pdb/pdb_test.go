package pdb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbscope/pkg/pdb/pdbtest"
	"github.com/jtang613/pdbscope/pkg/provider"
)

const (
	tInt32  = 0x74
	tUInt64 = 0x23
	tULong  = 0x22
	tUChar  = 0x20
)

func sampleBuilder() *pdbtest.Builder {
	b := pdbtest.NewBuilder()
	b.GUID = [16]byte{0x78, 0x56, 0x34, 0x12, 0xbc, 0x9a, 0xf0, 0xde, 1, 2, 3, 4, 5, 6, 7, 8}
	b.Age = 3
	b.Sections = append(b.Sections, pdbtest.Section{Name: ".data", RVA: 0x3000, Size: 0x200})
	b.Publics = []pdbtest.Public{
		{Name: "?Foo@Bar@@QEAAXXZ", Segment: 1, Offset: 0x10},
		{Name: "_NtClose@4", Segment: 1, Offset: 0x20},
		{Name: "Bad", Segment: 9, Offset: 0},
		{Name: "Data", Segment: 2, Offset: 8},
	}
	b.Procs = []pdbtest.Proc{{Name: "Bar::Foo", Segment: 1, Offset: 0x10, Length: 0x40, TypeIndex: 0x1234}}

	t := b.Types
	fwd := t.Forward("_LIST_ENTRY")
	ptr := t.Pointer(fwd, 8)
	entry := t.FieldList([]pdbtest.Member{{Name: "Flink", Type: ptr}, {Name: "Blink", Type: ptr, Offset: 8}})
	t.Struct("_LIST_ENTRY", 16, entry, 2)

	tail := t.FieldList([]pdbtest.Member{{Name: "Tail", Type: tInt32, Offset: 24}})
	obj := t.FieldList([]pdbtest.Member{
		{Name: "ListEntry", Type: fwd},
		{Name: "Flags", Type: t.Modifier(tULong), Offset: 16},
		{Name: "Name", Type: t.Array(tUChar, 4), Offset: 20},
	}, pdbtest.MethodEntry("Close", 0), pdbtest.IndexEntry(tail))
	t.Struct("_OBJECT", 32, obj, 5)

	u := t.FieldList([]pdbtest.Member{{Name: "A", Type: tUInt64}, {Name: "B", Type: tInt32}})
	t.Union("_U", 8, u, 2)
	return b
}

func openSample(t *testing.T, b *pdbtest.Builder) *PDB {
	t.Helper()
	p, err := Open(b.Write(t))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func collectSymbols(p *PDB) ([]provider.RawSymbol, int) {
	var syms []provider.RawSymbol
	failures := 0
	for s, err := range p.PublicSymbols() {
		if err != nil {
			failures++
			continue
		}
		syms = append(syms, s)
	}
	return syms, failures
}

func TestOpen_PublicSymbols(t *testing.T) {
	p := openSample(t, sampleBuilder())

	assert.Equal(t, provider.MachineX64, p.MachineType())

	syms, failures := collectSymbols(p)
	assert.Equal(t, 1, failures, "segment out of range is a per-record error")
	require.Len(t, syms, 3)

	assert.Equal(t, provider.RawSymbol{Name: "Bar::Foo", RVA: 0x1010, Size: 0x40, TypeID: 0x1234}, syms[0])
	assert.Equal(t, provider.RawSymbol{Name: "NtClose", RVA: 0x1020}, syms[1])
	assert.Equal(t, provider.RawSymbol{Name: "Data", RVA: 0x3008}, syms[2])

	again, _ := collectSymbols(p)
	assert.Equal(t, syms, again, "sequence must be restartable")
}

func TestOpen_NoSectionHeaders(t *testing.T) {
	b := sampleBuilder()
	b.SkipSectionHeaders = true
	p := openSample(t, b)

	syms, failures := collectSymbols(p)
	assert.Zero(t, failures)
	require.Len(t, syms, 4)
	assert.Equal(t, uint64(0x10), syms[0].RVA)
	assert.Equal(t, uint64(0x40), syms[0].Size)
}

func TestOpen_UserDefinedTypes(t *testing.T) {
	p := openSample(t, sampleBuilder())

	byName := map[string]provider.UDT{}
	var order []string
	for u, err := range p.UserDefinedTypes() {
		require.NoError(t, err)
		order = append(order, u.Name())
		byName[u.Name()] = u
	}
	assert.Equal(t, []string{"_LIST_ENTRY", "_OBJECT", "_U"}, order, "forward references are skipped")

	var members []provider.RawMember
	for m, err := range byName["_OBJECT"].Members() {
		require.NoError(t, err)
		members = append(members, m)
	}
	assert.Equal(t, uint64(32), byName["_OBJECT"].Size())
	require.Len(t, members, 4)
	assert.Equal(t, provider.RawMember{Name: "ListEntry", Offset: 0, Size: 16, TypeID: 0x1000}, members[0])
	assert.Equal(t, "Flags", members[1].Name)
	assert.Equal(t, uint64(4), members[1].Size)
	assert.Equal(t, provider.RawMember{Name: "Name", Offset: 20, Size: 4, TypeID: members[2].TypeID}, members[2])
	assert.Equal(t, provider.RawMember{Name: "Tail", Offset: 24, Size: 4, TypeID: tInt32}, members[3])

	var union []provider.RawMember
	for m, err := range byName["_U"].Members() {
		require.NoError(t, err)
		union = append(union, m)
	}
	require.Len(t, union, 2)
	assert.Equal(t, uint64(8), union[0].Size)
	assert.Equal(t, int64(0), union[1].Offset)

	var entry []provider.RawMember
	for m, err := range byName["_LIST_ENTRY"].Members() {
		require.NoError(t, err)
		entry = append(entry, m)
	}
	require.Len(t, entry, 2)
	assert.Equal(t, uint64(8), entry[1].Size)
}

func TestInfo(t *testing.T) {
	b := sampleBuilder()
	p := openSample(t, b)

	info := p.Info()
	assert.Equal(t, b.GUID, info.GUID)
	assert.Equal(t, uint32(3), info.Age)
	assert.Equal(t, provider.MachineX64, info.Machine)
	assert.Equal(t, uint32(pdbtest.BlockSize), info.BlockSize)
	assert.Equal(t, uint32(pdbtest.StreamNames), info.NamedStreams["/names"])
	require.Len(t, info.Sections, 2)
	assert.Equal(t, Section{Index: 2, Name: ".data", RVA: 0x3000, Length: 0x200}, info.Sections[1])
	require.Len(t, info.Modules, 1)
	assert.Equal(t, "test.obj", info.Modules[0].Name)
	assert.Positive(t, info.Types)
}

func TestProvider_Unavailable(t *testing.T) {
	dir := t.TempDir()

	_, err := Provider{}.Open(filepath.Join(dir, "missing.pdb"))
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	junk := filepath.Join(dir, "junk.pdb")
	require.NoError(t, os.WriteFile(junk, make([]byte, 4096), 0o644))
	_, err = Provider{}.Open(junk)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestProvider_CorruptDatabase(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(streams [][]byte) []byte
	}{
		{"stream size near 4 GiB", func(streams [][]byte) []byte {
			raw := pdbtest.Container(streams)
			// directory at block 4: count, then sizes; entry 1 is the info stream
			binary.LittleEndian.PutUint32(raw[4*pdbtest.BlockSize+8:], 0xFFFFFF00)
			return raw
		}},
		{"negative DBI substream size", func(streams [][]byte) []byte {
			binary.LittleEndian.PutUint32(streams[StreamDBI][24:], 0xFFFFFFF0)
			return pdbtest.Container(streams)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "corrupt.pdb")
			raw := tt.corrupt(sampleBuilder().Streams())
			require.NoError(t, os.WriteFile(path, raw, 0o644))

			_, err := Provider{}.Open(path)
			assert.ErrorIs(t, err, provider.ErrUnavailable)
		})
	}
}

func TestProvider_OpensSession(t *testing.T) {
	path := sampleBuilder().Write(t)

	s, err := Provider{}.Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}
