package locator

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGUID = [16]byte{
	0x78, 0x56, 0x34, 0x12, // Data1 0x12345678
	0xbc, 0x9a, // Data2 0x9abc
	0xf0, 0xde, // Data3 0xdef0
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
}

func rsds(guid [16]byte, age uint32, name string) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rsdsSignature))
	buf.Write(guid[:])
	_ = binary.Write(&buf, binary.LittleEndian, age)
	buf.WriteString(name)
	buf.WriteByte(0)
	return buf.Bytes()
}

// buildPE writes a minimal PE32+ image with one section holding a debug
// directory that points at cv.
func buildPE(t *testing.T, cv []byte) string {
	t.Helper()
	return buildPESized(t, cv, debugEntrySize, uint32(len(cv)))
}

// buildPESized is buildPE with the recorded debug directory and CodeView
// sizes overridden.
func buildPESized(t *testing.T, cv []byte, dirSize, cvSize uint32) string {
	t.Helper()

	const (
		sectionVA  = 0x1000
		sectionRaw = 0x200
		rawSize    = 0x200
	)

	var buf bytes.Buffer
	dos := make([]byte, 0x40)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 0xf0,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &fh))

	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         0x2000,
		SizeOfHeaders:       0x200,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[debugDirectoryIndex] = pe.DataDirectory{VirtualAddress: sectionVA, Size: dirSize}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &oh))

	sh := pe.SectionHeader32{
		VirtualSize:      rawSize,
		VirtualAddress:   sectionVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: sectionRaw,
		Characteristics:  pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
	}
	copy(sh.Name[:], ".rdata")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &sh))

	buf.Write(make([]byte, sectionRaw-buf.Len()))

	entry := make([]byte, debugEntrySize)
	binary.LittleEndian.PutUint32(entry[12:], debugTypeCodeView)
	binary.LittleEndian.PutUint32(entry[16:], cvSize)
	binary.LittleEndian.PutUint32(entry[20:], sectionVA+debugEntrySize)
	binary.LittleEndian.PutUint32(entry[24:], sectionRaw+debugEntrySize)
	buf.Write(entry)
	buf.Write(cv)
	buf.Write(make([]byte, sectionRaw+rawSize-buf.Len()))

	path := filepath.Join(t.TempDir(), "ntoskrnl.exe")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestGUIDFromBytes(t *testing.T) {
	assert.Equal(t, uuid.MustParse("12345678-9abc-def0-0102-030405060708"), GUIDFromBytes(testGUID))
}

func TestIdentityKey(t *testing.T) {
	id := Identity{PDBName: "ntkrnlmp.pdb", GUID: GUIDFromBytes(testGUID), Age: 0x1a}
	assert.Equal(t, "123456789ABCDEF001020304050607081A", id.Key())
	assert.Equal(t, "ntkrnlmp.pdb|123456789ABCDEF001020304050607081A", id.String())
}

func TestParseCodeView(t *testing.T) {
	id, err := ParseCodeView(rsds(testGUID, 3, `d:\os\obj\amd64fre\ntkrnlmp.pdb`))
	require.NoError(t, err)
	assert.Equal(t, "ntkrnlmp.pdb", id.PDBName)
	assert.Equal(t, uint32(3), id.Age)

	_, err = ParseCodeView([]byte("NB10 and something else entirely"))
	assert.ErrorIs(t, err, ErrNoCodeView)

	_, err = ParseCodeView([]byte("RSDS"))
	assert.ErrorIs(t, err, ErrNoCodeView)

	_, err = ParseCodeView(rsds(testGUID, 1, ""))
	assert.Error(t, err)
}

func TestReadIdentity(t *testing.T) {
	exe := buildPE(t, rsds(testGUID, 2, "ntkrnlmp.pdb"))

	id, err := ReadIdentity(exe)
	require.NoError(t, err)
	assert.Equal(t, "ntkrnlmp.pdb", id.PDBName)
	assert.Equal(t, "123456789ABCDEF001020304050607082", id.Key())
}

func TestReadIdentity_OversizedRecords(t *testing.T) {
	exe := buildPESized(t, rsds(testGUID, 2, "ntkrnlmp.pdb"), 0xFFFFFFF0, 0xFFFFFFF0)

	id, err := ReadIdentity(exe)
	require.NoError(t, err)
	assert.Equal(t, "ntkrnlmp.pdb", id.PDBName)
	assert.Equal(t, uint32(2), id.Age)
}

func TestReadIdentity_NotPE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.exe")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := ReadIdentity(path)
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	root := t.TempDir()
	store := Store{Root: root}
	id := Identity{PDBName: "hal.pdb", GUID: GUIDFromBytes(testGUID), Age: 1}

	want := filepath.Join(root, "hal.pdb", "123456789ABCDEF00102030405060708"+"1", "hal.pdb")
	assert.Equal(t, want, store.Path(id))

	_, err := store.Resolve(id)
	assert.ErrorIs(t, err, ErrNotInStore)

	require.NoError(t, os.MkdirAll(filepath.Dir(want), 0o755))
	require.NoError(t, os.WriteFile(want, []byte("pdb"), 0o644))

	got, err := store.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreLocate(t *testing.T) {
	exe := buildPE(t, rsds(testGUID, 5, "ntkrnlmp.pdb"))
	store := Store{Root: t.TempDir()}

	id, _, err := store.Locate(exe)
	assert.ErrorIs(t, err, ErrNotInStore)
	assert.Equal(t, uint32(5), id.Age)
}
