package streams

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// DBI stream constants
const (
	DBIStreamVersionV70 = 19990903
	dbiHeaderSize       = 64
	moduleHeaderSize    = 64
	sectionHeaderSize   = 40

	// NoStream marks an absent stream index.
	NoStream = 0xFFFF
)

// Optional debug header slots
const (
	DebugHeaderFPO = iota
	DebugHeaderException
	DebugHeaderFixup
	DebugHeaderOmapToSrc
	DebugHeaderOmapFromSrc
	DebugHeaderSectionHeaders
)

// DBIHeader is the fixed 64-byte header of the DBI stream (stream 3).
type DBIHeader struct {
	VersionSignature        int32 // always -1
	VersionHeader           uint32
	Age                     uint32
	GlobalStreamIndex       uint16
	BuildNumber             uint16
	PublicStreamIndex       uint16
	PdbDllVersion           uint16
	SymRecordStream         uint16
	PdbDllRbld              uint16
	ModInfoSize             int32
	SectionContributionSize int32
	SectionMapSize          int32
	SourceInfoSize          int32
	TypeServerMapSize       int32
	MFCTypeServerIndex      uint32
	OptionalDbgHeaderSize   int32
	ECSubstreamSize         int32
	Flags                   uint16
	Machine                 uint16
	Padding                 uint32
}

// ModuleInfo describes one compiland. Only the fields needed to reach its
// symbol stream are kept.
type ModuleInfo struct {
	ModuleSymStream uint16
	SymByteSize     uint32
	ModuleName      string
	ObjFileName     string
}

// HasSymbols reports whether the module owns a symbol stream.
func (m *ModuleInfo) HasSymbols() bool {
	return m.ModuleSymStream != NoStream && m.SymByteSize > 0
}

// DBI is the decoded DBI stream.
type DBI struct {
	Header      DBIHeader
	Modules     []ModuleInfo
	DebugHeader []uint16
}

// SectionHeaderStream returns the stream holding the image section headers.
func (d *DBI) SectionHeaderStream() (int, bool) {
	if len(d.DebugHeader) <= DebugHeaderSectionHeaders {
		return 0, false
	}
	idx := d.DebugHeader[DebugHeaderSectionHeaders]
	if idx == NoStream {
		return 0, false
	}
	return int(idx), true
}

// ReadDBI decodes the DBI header, module list and optional debug header.
func ReadDBI(data []byte) (*DBI, error) {
	if len(data) < dbiHeaderSize {
		return nil, fmt.Errorf("DBI stream too small: %d bytes", len(data))
	}

	var h DBIHeader
	if err := binary.Read(bytes.NewReader(data[:dbiHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to read DBI header: %w", err)
	}
	if h.VersionSignature != -1 {
		return nil, fmt.Errorf("invalid DBI version signature: %d", h.VersionSignature)
	}

	sizes := []int32{
		h.ModInfoSize, h.SectionContributionSize, h.SectionMapSize,
		h.SourceInfoSize, h.TypeServerMapSize, h.ECSubstreamSize,
		h.OptionalDbgHeaderSize,
	}
	offsets := make([]int, len(sizes)+1)
	offsets[0] = dbiHeaderSize
	for i, sz := range sizes {
		if sz < 0 {
			return nil, fmt.Errorf("invalid DBI substream %d size %d", i, sz)
		}
		n, err := safecast.Conv[int](sz)
		if err != nil {
			return nil, fmt.Errorf("invalid DBI substream %d size %d: %w", i, sz, err)
		}
		offsets[i+1] = offsets[i] + n
	}
	if offsets[len(sizes)] > len(data) {
		return nil, fmt.Errorf("DBI substreams need %d bytes, stream has %d", offsets[len(sizes)], len(data))
	}

	dbi := &DBI{Header: h}
	dbi.Modules = parseModules(data[offsets[0]:offsets[1]])

	dbg := data[offsets[6]:offsets[7]]
	for i := 0; i+2 <= len(dbg); i += 2 {
		dbi.DebugHeader = append(dbi.DebugHeader, binary.LittleEndian.Uint16(dbg[i:]))
	}
	return dbi, nil
}

func parseModules(data []byte) []ModuleInfo {
	var mods []ModuleInfo
	r := newReader(data)
	for r.remaining() >= moduleHeaderSize {
		hdr := r.take(moduleHeaderSize)
		mod := ModuleInfo{
			ModuleSymStream: binary.LittleEndian.Uint16(hdr[34:]),
			SymByteSize:     binary.LittleEndian.Uint32(hdr[36:]),
		}
		mod.ModuleName = r.cstring()
		mod.ObjFileName = r.cstring()
		r.align(4)
		mods = append(mods, mod)
	}
	return mods
}

// ReadSectionHeaders decodes the image section header table copied into the
// PDB. Section numbers in symbol records are 1-based indexes into it.
func ReadSectionHeaders(data []byte) ([]pe.SectionHeader32, error) {
	if len(data)%sectionHeaderSize != 0 {
		return nil, fmt.Errorf("section header stream size %d is not a multiple of %d", len(data), sectionHeaderSize)
	}
	hdrs := make([]pe.SectionHeader32, len(data)/sectionHeaderSize)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, hdrs); err != nil {
		return nil, fmt.Errorf("failed to read section headers: %w", err)
	}
	return hdrs, nil
}
