package diff

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbscope/internal/index"
	"github.com/jtang613/pdbscope/internal/snapshot"
)

func snap(pairs ...any) *snapshot.Snapshot {
	var syms []index.SymbolRecord
	for i := 0; i < len(pairs); i += 2 {
		syms = append(syms, index.SymbolRecord{Name: pairs[i].(string), RVA: uint64(pairs[i+1].(int))})
	}
	return snapshot.FromSymbols("test.pdb", syms...)
}

func TestCompare_AddedAndRemoved(t *testing.T) {
	entries := Compare(snap("A", 0x100, "B", 0x200), snap("B", 0x200, "C", 0x300))

	assert.Equal(t, []Entry{
		{Kind: Removed, Name: "A", OldRVA: 0x100},
		{Kind: Added, Name: "C", NewRVA: 0x300},
	}, entries)
}

func TestCompare_Changed(t *testing.T) {
	entries := Compare(snap("A", 0x100), snap("A", 0x150))

	require.Len(t, entries, 1)
	assert.Equal(t, Entry{Kind: Changed, Name: "A", OldRVA: 0x100, NewRVA: 0x150}, entries[0])
}

func TestCompare_Identical(t *testing.T) {
	assert.Empty(t, Compare(snap("A", 1, "B", 2), snap("B", 2, "A", 1)))
}

func TestCompare_DuplicatesFirstSeenWins(t *testing.T) {
	entries := Compare(snap("A", 0x10, "A", 0x20), snap("A", 0x10, "A", 0x30))
	assert.Empty(t, entries)

	entries = Compare(snap("A", 0x10), snap("A", 0x20, "A", 0x10))
	require.Len(t, entries, 1)
	assert.Equal(t, Changed, entries[0].Kind)
	assert.Equal(t, uint64(0x20), entries[0].NewRVA)
}

func TestSortByNameAndSummarize(t *testing.T) {
	entries := Compare(snap("Zeta", 1, "Alpha", 2, "Mid", 3), snap("Mid", 4, "Beta", 5))
	SortByName(entries)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Mid", "Zeta"}, names)
	assert.Equal(t, Summary{Added: 1, Removed: 2, Changed: 1}, Summarize(entries))
}

func TestPrint(t *testing.T) {
	entries := []Entry{
		{Kind: Added, Name: "New", NewRVA: 0x300},
		{Kind: Removed, Name: "Old", OldRVA: 0x100},
		{Kind: Changed, Name: "Moved", OldRVA: 0x10, NewRVA: 0x20},
	}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, entries, false))

	assert.Equal(t, "[+] ADDED: New at 0x300\n"+
		"[-] REMOVED: Old (was at 0x100)\n"+
		"[~] CHANGED: Moved 0x10 -> 0x20\n"+
		"\nSummary: 1 added, 1 removed, 1 changed\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []Entry{
		{Kind: Removed, Name: `a"b`, OldRVA: 0xff},
	}))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Differences, 1)
	assert.Equal(t, Difference{Name: `a"b`, OldRVA: "0xff", NewRVA: "0x0", Status: "removed"}, doc.Differences[0])
}

func TestWriteJSON_NoDifferences(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, `{"differences": []}`, buf.String())
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "diff.json")
	require.True(t, Export([]Entry{{Kind: Added, Name: "X", NewRVA: 1}}, out, zerolog.Nop()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "added"`)

	assert.False(t, Export(nil, filepath.Join(dir, "nope", "diff.json"), zerolog.Nop()))
}
