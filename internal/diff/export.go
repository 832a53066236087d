package diff

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/jtang613/pdbscope/internal/snapshot"
)

// Document is the exported JSON form of a diff.
type Document struct {
	Differences []Difference `json:"differences"`
}

// Difference is one exported entry. Unused RVAs render as 0x0.
type Difference struct {
	Name   string `json:"name"`
	OldRVA string `json:"old_rva"`
	NewRVA string `json:"new_rva"`
	Status string `json:"status"`
}

// NewDocument converts entries to their export form.
func NewDocument(entries []Entry) *Document {
	doc := &Document{Differences: make([]Difference, 0, len(entries))}
	for _, e := range entries {
		doc.Differences = append(doc.Differences, Difference{
			Name:   e.Name,
			OldRVA: snapshot.HexRVA(e.OldRVA),
			NewRVA: snapshot.HexRVA(e.NewRVA),
			Status: e.Kind.String(),
		})
	}
	return doc
}

// WriteJSON writes the diff document for entries to w.
func WriteJSON(w io.Writer, entries []Entry) error {
	return snapshot.EncodeJSON(w, NewDocument(entries))
}

// Export writes the diff document to path. Failures are logged and reported
// as false.
func Export(entries []Entry, path string, logger zerolog.Logger) bool {
	err := snapshot.WriteFile(path, func(w io.Writer) error {
		return WriteJSON(w, entries)
	})
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("diff export failed")
		return false
	}
	return true
}
