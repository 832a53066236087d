package snapshot

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
	"github.com/jtang613/pdbscope/pkg/provider"
	"github.com/jtang613/pdbscope/pkg/provider/memprov"
)

func sampleDB() *memprov.Database {
	return &memprov.Database{
		Machine: provider.MachineX64,
		Symbols: []memprov.Symbol{
			memprov.Sym("NtCreateFile", 0x2000),
			memprov.Sym(`Weird"Name\Path`, 0x1000),
			memprov.Sym("KiSystemCall64", 0x3000),
		},
		Types: []*memprov.Type{
			{
				TypeName: "_UNICODE_STRING",
				TypeSize: 16,
				Fields: []memprov.Member{
					memprov.Field("Buffer", 8, 8),
					memprov.Field("Length", 0, 2),
					memprov.Field("MaximumLength", 2, 2),
				},
			},
			{TypeName: "_EMPTY"},
		},
	}
}

func TestCaptureSession(t *testing.T) {
	s := memprov.NewSession("nt.pdb", sampleDB())

	snap := CaptureSession(s)
	assert.Equal(t, "nt.pdb", snap.Path)
	assert.Equal(t, provider.MachineX64, snap.Machine)
	require.Len(t, snap.Symbols, 3)
	assert.Equal(t, uint64(0x1000), snap.Symbols[0].RVA)
	require.Len(t, snap.Structures, 2)
	assert.Equal(t, "_UNICODE_STRING", snap.Structures[0].Name)
	assert.Equal(t, "Length", snap.Structures[0].Members[0].Name)
}

func TestWriteJSON_Document(t *testing.T) {
	snap := CaptureSession(memprov.NewSession("nt.pdb", sampleDB()))

	var buf bytes.Buffer
	require.NoError(t, snap.WriteJSON(&buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc), "document must be well-formed JSON")

	info := doc["pdb_info"].(map[string]any)
	assert.Equal(t, "nt.pdb", info["path"])
	assert.Equal(t, float64(0x8664), info["machine_type"])

	symbols := doc["symbols"].([]any)
	stats := doc["statistics"].(map[string]any)
	assert.Equal(t, float64(len(symbols)), stats["total_symbols"])
	assert.Equal(t, float64(len(doc["structures"].([]any))), stats["total_structures"])

	first := symbols[0].(map[string]any)
	assert.Equal(t, `Weird"Name\Path`, first["name"])
	assert.Equal(t, "0x1000", first["rva"])
	assert.Contains(t, buf.String(), `"Weird\"Name\\Path"`)
}

func TestWriteJSON_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FromSymbols("empty.pdb").WriteJSON(&buf))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NotNil(t, doc.Symbols)
	assert.Zero(t, doc.Statistics.TotalSymbols)
	assert.Contains(t, buf.String(), `"symbols": []`)
}

func TestExport_WritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	snap := FromSymbols("a.pdb", index.SymbolRecord{Name: "A", RVA: 0xabc})

	require.True(t, snap.Export(out, zerolog.Nop()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rva": "0xabc"`)
}

func TestExport_UnwritableDestination(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing-dir", "out.json")
	var logs bytes.Buffer

	ok := FromSymbols("a.pdb").Export(out, zerolog.New(&logs))
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "snapshot export failed")
}

func TestSymbolRVAs_FirstSeenWins(t *testing.T) {
	snap := FromSymbols("a.pdb",
		index.SymbolRecord{Name: "Dup", RVA: 1},
		index.SymbolRecord{Name: "Dup", RVA: 2},
	)
	assert.Equal(t, map[string]uint64{"Dup": 1}, snap.SymbolRVAs())
}

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenDiskCache(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	db := filepath.Join(dir, "nt.pdb")
	require.NoError(t, os.WriteFile(db, []byte("not really a pdb"), 0o644))

	key, err := Key(db, index.DefaultLimits())
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, ok, err := cache.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := CaptureSession(memprov.NewSession(db, sampleDB()))
	require.NoError(t, cache.Put(key, snap))

	got, ok, err := cache.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Path, got.Path)
	assert.Equal(t, snap.Machine, got.Machine)
	assert.Equal(t, snap.Symbols, got.Symbols)
	assert.Equal(t, snap.Structures[0], got.Structures[0])

	require.NoError(t, cache.DropAll())
	_, ok, err = cache.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKey_DependsOnLimits(t *testing.T) {
	db := filepath.Join(t.TempDir(), "x.pdb")
	require.NoError(t, os.WriteFile(db, []byte("abc"), 0o644))

	k1, err := Key(db, index.DefaultLimits())
	require.NoError(t, err)
	k2, err := Key(db, index.Limits{MaxSymbols: 10, MaxMatches: 1, MaxStructNames: 1, MaxMembers: 1})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestBuilder_UsesCache(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "nt.pdb")
	require.NoError(t, os.WriteFile(db, []byte("content"), 0o644))

	cache, err := OpenDiskCache(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	prov := &memprov.Provider{Databases: map[string]*memprov.Database{db: sampleDB()}}
	b := &Builder{Provider: prov, Limits: index.DefaultLimits(), Cache: cache, Logger: zerolog.Nop()}

	first, err := b.Build(db)
	require.NoError(t, err)

	delete(prov.Databases, db)
	second, err := b.Build(db)
	require.NoError(t, err, "second build must be served from the cache")
	assert.Equal(t, first.Symbols, second.Symbols)
}

func TestBuilder_ProviderUnavailable(t *testing.T) {
	b := &Builder{Provider: &memprov.Provider{}, Limits: index.DefaultLimits(), Logger: zerolog.Nop()}

	_, err := b.Build("missing.pdb")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}
