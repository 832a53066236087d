// Package diff compares the public symbols of two snapshots.
package diff

import (
	"sort"

	"github.com/jtang613/pdbscope/internal/snapshot"
)

// Kind classifies a difference.
type Kind int

// Difference kinds
const (
	Added Kind = iota
	Removed
	Changed
)

// String returns the status word used in exported documents.
func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Entry is one symbol difference. OldRVA is zero for Added entries and
// NewRVA is zero for Removed entries.
type Entry struct {
	Kind   Kind
	Name   string
	OldRVA uint64
	NewRVA uint64
}

// Summary counts entries per kind.
type Summary struct {
	Added   int
	Removed int
	Changed int
}

// Compare returns the symbol differences between oldSnap and newSnap. Removed
// entries come first in old order, followed by added and changed entries in
// new order. Symbols with the same RVA in both produce nothing.
func Compare(oldSnap, newSnap *snapshot.Snapshot) []Entry {
	oldRVAs := oldSnap.SymbolRVAs()
	newRVAs := newSnap.SymbolRVAs()

	var entries []Entry
	seen := make(map[string]struct{}, len(oldRVAs))
	for _, sym := range oldSnap.Symbols {
		if _, dup := seen[sym.Name]; dup {
			continue
		}
		seen[sym.Name] = struct{}{}
		if _, ok := newRVAs[sym.Name]; !ok {
			entries = append(entries, Entry{Kind: Removed, Name: sym.Name, OldRVA: oldRVAs[sym.Name]})
		}
	}

	clear(seen)
	for _, sym := range newSnap.Symbols {
		if _, dup := seen[sym.Name]; dup {
			continue
		}
		seen[sym.Name] = struct{}{}
		newRVA := newRVAs[sym.Name]
		oldRVA, ok := oldRVAs[sym.Name]
		switch {
		case !ok:
			entries = append(entries, Entry{Kind: Added, Name: sym.Name, NewRVA: newRVA})
		case oldRVA != newRVA:
			entries = append(entries, Entry{Kind: Changed, Name: sym.Name, OldRVA: oldRVA, NewRVA: newRVA})
		}
	}
	return entries
}

// SortByName orders entries by name, then kind.
func SortByName(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Kind < entries[j].Kind
	})
}

// Summarize counts entries per kind.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Kind {
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		case Changed:
			s.Changed++
		}
	}
	return s
}
