package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Document is the exported JSON form of a snapshot.
type Document struct {
	PDBInfo    PDBInfo          `json:"pdb_info"`
	Symbols    []SymbolEntry    `json:"symbols"`
	Structures []StructureEntry `json:"structures"`
	Statistics Statistics       `json:"statistics"`
}

// PDBInfo identifies the source database.
type PDBInfo struct {
	Path        string `json:"path"`
	MachineType uint16 `json:"machine_type"`
}

// SymbolEntry is one exported symbol. RVA is a 0x-prefixed hex string.
type SymbolEntry struct {
	Name   string `json:"name"`
	RVA    string `json:"rva"`
	Size   uint64 `json:"size"`
	TypeID uint32 `json:"type_id"`
}

// StructureEntry is one exported structure layout.
type StructureEntry struct {
	Name    string        `json:"name"`
	Size    uint64        `json:"size"`
	Members []MemberEntry `json:"members"`
}

// MemberEntry is one exported structure member.
type MemberEntry struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
	TypeID uint32 `json:"type_id"`
}

// Statistics summarizes the document.
type Statistics struct {
	TotalSymbols    int `json:"total_symbols"`
	TotalStructures int `json:"total_structures"`
}

// HexRVA formats an address the way exported documents do.
func HexRVA(rva uint64) string {
	return fmt.Sprintf("0x%x", rva)
}

// Document converts the snapshot to its export form.
func (s *Snapshot) Document() *Document {
	doc := &Document{
		PDBInfo: PDBInfo{
			Path:        s.Path,
			MachineType: uint16(s.Machine),
		},
		Symbols:    make([]SymbolEntry, 0, len(s.Symbols)),
		Structures: make([]StructureEntry, 0, len(s.Structures)),
	}

	for _, sym := range s.Symbols {
		doc.Symbols = append(doc.Symbols, SymbolEntry{
			Name:   sym.Name,
			RVA:    HexRVA(sym.RVA),
			Size:   sym.Size,
			TypeID: sym.TypeID,
		})
	}

	for _, st := range s.Structures {
		entry := StructureEntry{
			Name:    st.Name,
			Size:    st.Size,
			Members: make([]MemberEntry, 0, len(st.Members)),
		}
		for _, m := range st.Members {
			entry.Members = append(entry.Members, MemberEntry{
				Name:   m.Name,
				Offset: m.Offset,
				Size:   m.Size,
				TypeID: m.TypeID,
			})
		}
		doc.Structures = append(doc.Structures, entry)
	}

	doc.Statistics = Statistics{
		TotalSymbols:    len(doc.Symbols),
		TotalStructures: len(doc.Structures),
	}
	return doc
}

// WriteJSON writes the snapshot document to w.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	return EncodeJSON(w, s.Document())
}

// Export writes the snapshot document to path. Failures are logged and
// reported as false.
func (s *Snapshot) Export(path string, logger zerolog.Logger) bool {
	if err := WriteFile(path, s.WriteJSON); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("snapshot export failed")
		return false
	}
	return true
}

// EncodeJSON writes v as indented JSON without HTML escaping.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteFile creates path and fills it with write. The file is closed before
// returning and a close error is reported.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
