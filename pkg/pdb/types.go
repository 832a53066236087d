// Package pdb reads Microsoft PDB files and serves their public symbols and
// user-defined types to the indexes.
package pdb

import (
	"bytes"

	"github.com/jtang613/pdbscope/pkg/provider"
)

// Info contains basic PDB file information.
type Info struct {
	GUID         [16]byte
	Age          uint32
	Signature    uint32
	Version      uint32
	Machine      provider.MachineType
	Streams      int
	BlockSize    uint32
	Types        int
	NamedStreams map[string]uint32
	Modules      []Module
	Sections     []Section
}

// Module describes a compiland recorded in the DBI stream.
type Module struct {
	Name         string
	ObjectFile   string
	SymbolStream uint16
	SymbolSize   uint32
}

// Section is an image section copied into the PDB.
type Section struct {
	Index  uint16 // 1-based, as used in symbol records
	Name   string
	RVA    uint32
	Length uint32
}

func sectionName(raw [8]uint8) string {
	if i := bytes.IndexByte(raw[:], 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw[:])
}
