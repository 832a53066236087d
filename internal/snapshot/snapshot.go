// Package snapshot captures the indexed content of one debug database and
// writes it as a JSON document.
package snapshot

import (
	"github.com/jtang613/pdbscope/internal/index"
	"github.com/jtang613/pdbscope/pkg/provider"
)

// Snapshot is a point-in-time capture of one session's symbols and
// structures. It is not modified after Capture returns.
type Snapshot struct {
	Path       string               `msgpack:"path"`
	Machine    provider.MachineType `msgpack:"machine"`
	Symbols    []index.SymbolRecord `msgpack:"symbols"`
	Structures []index.StructRecord `msgpack:"structures"`
}

// Capture builds a snapshot from the indexes of session. Symbols come from
// BuildFull; structures are every name from Names that resolves.
func Capture(session provider.Session, symbols *index.SymbolIndex, structs *index.StructIndex) *Snapshot {
	structs.Preload()

	names := structs.Names()
	records := make([]index.StructRecord, 0, len(names))
	for _, name := range names {
		if rec, ok := structs.GetStruct(name); ok {
			records = append(records, rec)
		}
	}

	return &Snapshot{
		Path:       session.Path(),
		Machine:    session.MachineType(),
		Symbols:    symbols.BuildFull(),
		Structures: records,
	}
}

// CaptureSession is Capture with fresh indexes built from opts.
func CaptureSession(session provider.Session, opts ...index.Option) *Snapshot {
	return Capture(session,
		index.NewSymbolIndex(session, opts...),
		index.NewStructIndex(session, opts...))
}

// SymbolRVAs maps each symbol name to its RVA. The first record for a name
// wins.
func (s *Snapshot) SymbolRVAs() map[string]uint64 {
	m := make(map[string]uint64, len(s.Symbols))
	for _, sym := range s.Symbols {
		if _, ok := m[sym.Name]; !ok {
			m[sym.Name] = sym.RVA
		}
	}
	return m
}

// FromSymbols builds a symbol-only snapshot. Used by callers that already hold
// decoded records.
func FromSymbols(path string, symbols ...index.SymbolRecord) *Snapshot {
	return &Snapshot{Path: path, Symbols: symbols}
}
