package streams

import "fmt"

// PDB info stream versions
const (
	PDBStreamVersionVC70  = 20000404
	PDBStreamVersionVC80  = 20030901
	PDBStreamVersionVC110 = 20091201
	PDBStreamVersionVC140 = 20140508
)

// PDBInfo is the PDB info stream (stream 1). GUID and Age identify the build
// the database belongs to.
type PDBInfo struct {
	Version      uint32
	Signature    uint32
	Age          uint32
	GUID         [16]byte
	NamedStreams map[string]uint32
}

// ReadPDBInfo decodes the PDB info stream. The named stream table is read
// best effort; older files may omit it.
func ReadPDBInfo(data []byte) (*PDBInfo, error) {
	r := newReader(data)
	info := &PDBInfo{
		Version:      r.u32(),
		Signature:    r.u32(),
		Age:          r.u32(),
		NamedStreams: make(map[string]uint32),
	}
	copy(info.GUID[:], r.take(16))
	if r.err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", r.err)
	}

	names := r.take(int(r.u32()))
	_ = r.u32() // entry count
	capacity := r.u32()
	words := int(r.u32())
	if r.err != nil || words*4 > r.remaining() {
		return info, nil
	}
	present := make([]uint32, words)
	for i := range present {
		present[i] = r.u32()
	}
	r.take(4 * int(r.u32())) // deleted bitmap
	if r.err != nil {
		return info, nil
	}

	capacity = min(capacity, uint32(words)*32)
	for i := uint32(0); i < capacity; i++ {
		if !bitSet(present, i) {
			continue
		}
		keyOff, stream := r.u32(), r.u32()
		if r.err != nil {
			break
		}
		if int(keyOff) < len(names) {
			name, _ := ParseString(names[keyOff:])
			info.NamedStreams[name] = stream
		}
	}
	return info, nil
}

func bitSet(words []uint32, n uint32) bool {
	w := n / 32
	return int(w) < len(words) && words[w]&(1<<(n%32)) != 0
}
