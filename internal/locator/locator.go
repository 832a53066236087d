// Package locator maps an executable to the debug database it was linked
// with, using the CodeView record in its PE debug directory, and resolves
// that database inside a local symbol store.
package locator

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNoCodeView is returned when an executable carries no RSDS record.
	ErrNoCodeView = errors.New("no CodeView debug record")
	// ErrNotInStore is returned when the database is absent from the store.
	ErrNotInStore = errors.New("debug database not in symbol store")
)

const (
	debugDirectoryIndex = 6 // IMAGE_DIRECTORY_ENTRY_DEBUG
	debugTypeCodeView   = 2 // IMAGE_DEBUG_TYPE_CODEVIEW
	debugEntrySize      = 28
	rsdsSignature       = 0x53445352 // "RSDS"
	rsdsHeaderSize      = 24
)

// Identity names one build of a debug database.
type Identity struct {
	PDBName string
	GUID    uuid.UUID
	Age     uint32
}

// Key returns the symbol store directory name: the GUID in upper-case hex
// without separators followed by the age in hex.
func (id Identity) Key() string {
	g := strings.ToUpper(strings.ReplaceAll(id.GUID.String(), "-", ""))
	return fmt.Sprintf("%s%X", g, id.Age)
}

func (id Identity) String() string {
	return id.PDBName + "|" + id.Key()
}

// GUIDFromBytes converts a GUID in its on-disk mixed-endian layout to
// canonical form.
func GUIDFromBytes(b [16]byte) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(u[8:], b[8:])
	return u
}

// ReadIdentity reads the CodeView identity of the executable at path.
func ReadIdentity(path string) (Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to open executable: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Identity{}, fmt.Errorf("failed to stat executable: %w", err)
	}
	fileSize := uint64(st.Size())

	pf, err := pe.NewFile(f)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse PE headers: %w", err)
	}
	defer pf.Close()

	var dir pe.DataDirectory
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > debugDirectoryIndex {
			dir = oh.DataDirectory[debugDirectoryIndex]
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > debugDirectoryIndex {
			dir = oh.DataDirectory[debugDirectoryIndex]
		}
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return Identity{}, ErrNoCodeView
	}

	entries, err := readVirtual(pf, dir.VirtualAddress, dir.Size)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read debug directory: %w", err)
	}

	for off := 0; off+debugEntrySize <= len(entries); off += debugEntrySize {
		e := entries[off : off+debugEntrySize]
		if binary.LittleEndian.Uint32(e[12:16]) != debugTypeCodeView {
			continue
		}
		size := uint64(binary.LittleEndian.Uint32(e[16:20]))
		ptr := uint64(binary.LittleEndian.Uint32(e[24:28]))
		if ptr >= fileSize {
			continue
		}

		data := make([]byte, min(size, fileSize-ptr))
		if _, err := f.ReadAt(data, int64(ptr)); err != nil && !errors.Is(err, io.EOF) {
			return Identity{}, fmt.Errorf("failed to read CodeView record: %w", err)
		}
		id, err := ParseCodeView(data)
		if errors.Is(err, ErrNoCodeView) {
			continue
		}
		return id, err
	}
	return Identity{}, ErrNoCodeView
}

func readVirtual(pf *pe.File, va, size uint32) ([]byte, error) {
	for _, s := range pf.Sections {
		end := uint64(s.VirtualAddress) + uint64(max(s.VirtualSize, s.Size))
		if va < s.VirtualAddress || uint64(va) >= end {
			continue
		}
		// only the raw data backs the read; the rest of the section is zero fill
		off := va - s.VirtualAddress
		if off >= s.Size {
			return nil, nil
		}
		buf := make([]byte, min(size, s.Size-off))
		n, err := s.ReadAt(buf, int64(off))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf[:n], nil
	}
	return nil, fmt.Errorf("address 0x%x is not inside any section", va)
}

// ParseCodeView decodes an RSDS CodeView record. Other record kinds yield
// ErrNoCodeView.
func ParseCodeView(data []byte) (Identity, error) {
	if len(data) < rsdsHeaderSize || binary.LittleEndian.Uint32(data[0:4]) != rsdsSignature {
		return Identity{}, ErrNoCodeView
	}

	var raw [16]byte
	copy(raw[:], data[4:20])

	name := data[rsdsHeaderSize:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) == 0 {
		return Identity{}, errors.New("CodeView record has an empty database name")
	}

	return Identity{
		PDBName: baseName(string(name)),
		GUID:    GUIDFromBytes(raw),
		Age:     binary.LittleEndian.Uint32(data[20:24]),
	}, nil
}

// baseName strips directories from a path recorded by either a Windows or a
// POSIX linker.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Store is a local symbol store laid out as <root>/<name>/<key>/<name>.
type Store struct {
	Root string
}

// Path returns where id lives in the store.
func (s Store) Path(id Identity) string {
	return filepath.Join(s.Root, id.PDBName, id.Key(), id.PDBName)
}

// Resolve returns the stored database for id, or ErrNotInStore.
func (s Store) Resolve(id Identity) (string, error) {
	p := s.Path(id)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotInStore, p)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotInStore, p)
	}
	return p, nil
}

// Locate reads the identity of the executable at exePath and resolves it in
// the store.
func (s Store) Locate(exePath string) (Identity, string, error) {
	id, err := ReadIdentity(exePath)
	if err != nil {
		return Identity{}, "", err
	}
	p, err := s.Resolve(id)
	return id, p, err
}
