package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbscope/pkg/provider"
	"github.com/jtang613/pdbscope/pkg/provider/memprov"
)

func structSession(types ...*memprov.Type) *memprov.Session {
	return memprov.NewSession("types.pdb", &memprov.Database{Types: types})
}

func TestStructIndex_MembersSortedByOffset(t *testing.T) {
	s := structSession(&memprov.Type{
		TypeName: "_POINT3",
		TypeSize: 12,
		Fields: []memprov.Member{
			memprov.Field("z", 8, 4),
			memprov.Field("x", 0, 4),
			memprov.Field("y", 4, 4),
		},
	})
	idx := NewStructIndex(s)

	rec, ok := idx.GetStruct("_POINT3")
	require.True(t, ok)
	assert.Equal(t, uint64(12), rec.Size)

	offsets := make([]uint64, 0, len(rec.Members))
	for _, m := range rec.Members {
		offsets = append(offsets, m.Offset)
	}
	assert.Equal(t, []uint64{0, 4, 8}, offsets)
	assert.Equal(t, "x", rec.Members[0].Name)
}

func TestStructIndex_GetStructCaches(t *testing.T) {
	s := structSession(&memprov.Type{TypeName: "A", TypeSize: 4, Fields: []memprov.Member{memprov.Field("f", 0, 4)}})
	idx := NewStructIndex(s)

	_, ok := idx.GetStruct("A")
	require.True(t, ok)
	_, ok = idx.GetStruct("A")
	require.True(t, ok)
	assert.Equal(t, 1, s.TypeScans)

	idx.ClearCaches()
	assert.Zero(t, idx.CacheLen())
}

func TestStructIndex_MissingStruct(t *testing.T) {
	idx := NewStructIndex(structSession())

	_, ok := idx.GetStruct("_NOPE")
	assert.False(t, ok)
}

func TestStructIndex_GetMemberOffset(t *testing.T) {
	idx := NewStructIndex(structSession(&memprov.Type{
		TypeName: "_LIST_ENTRY",
		TypeSize: 16,
		Fields: []memprov.Member{
			memprov.Field("Flink", 0, 8),
			memprov.Field("Blink", 8, 8),
		},
	}))

	off, ok := idx.GetMemberOffset("_LIST_ENTRY", "Blink")
	require.True(t, ok)
	assert.Equal(t, uint64(8), off)

	_, ok = idx.GetMemberOffset("_LIST_ENTRY", "Missing")
	assert.False(t, ok)

	_, ok = idx.GetMemberOffset("_NOPE", "Flink")
	assert.False(t, ok)
}

func TestStructIndex_FirstSeenWins(t *testing.T) {
	idx := NewStructIndex(structSession(
		&memprov.Type{TypeName: "Dup", TypeSize: 4, Fields: []memprov.Member{memprov.Field("first", 0, 4)}},
		&memprov.Type{TypeName: "Dup", TypeSize: 8, Fields: []memprov.Member{memprov.Field("second", 0, 8)}},
	))

	rec, ok := idx.GetStruct("Dup")
	require.True(t, ok)
	assert.Equal(t, uint64(4), rec.Size)
	assert.Equal(t, "first", rec.Members[0].Name)
}

func TestStructIndex_MemberCap(t *testing.T) {
	fields := make([]memprov.Member, 0, 150)
	for i := range 150 {
		fields = append(fields, memprov.Field("f", int64(i), 1))
	}
	idx := NewStructIndex(structSession(&memprov.Type{TypeName: "Big", TypeSize: 150, Fields: fields}))

	rec, ok := idx.GetStruct("Big")
	require.True(t, ok)
	assert.Len(t, rec.Members, DefaultMaxMembers)
}

func TestStructIndex_SkipsMalformedMembers(t *testing.T) {
	idx := NewStructIndex(structSession(&memprov.Type{
		TypeName: "S",
		TypeSize: 8,
		Fields: []memprov.Member{
			memprov.Field("ok", 0, 4),
			{RawMember: provider.RawMember{Name: "broken", Offset: 4}, Bad: true},
			memprov.Field("", 4, 4),
			memprov.Field("outside", 64, 4),
			memprov.Field("negative", -4, 4),
		},
	}))

	rec, ok := idx.GetStruct("S")
	require.True(t, ok)
	require.Len(t, rec.Members, 2)
	assert.Equal(t, "ok", rec.Members[0].Name)
	assert.Equal(t, "negative", rec.Members[1].Name)
	assert.Zero(t, rec.Members[1].Offset)
}

func TestStructIndex_NamesDistinctAndCapped(t *testing.T) {
	idx := NewStructIndex(structSession(
		&memprov.Type{TypeName: "A"},
		&memprov.Type{TypeName: "B"},
		&memprov.Type{Bad: true},
		&memprov.Type{TypeName: "A"},
		&memprov.Type{TypeName: "C"},
	), WithLimits(Limits{MaxStructNames: 2}))

	assert.Equal(t, []string{"A", "B"}, idx.Names())
}

func TestStructIndex_Preload(t *testing.T) {
	s := structSession(
		&memprov.Type{TypeName: "A", TypeSize: 4, Fields: []memprov.Member{memprov.Field("a", 0, 4)}},
		&memprov.Type{TypeName: "B", TypeSize: 4, Fields: []memprov.Member{memprov.Field("b", 0, 4)}},
	)
	idx := NewStructIndex(s)

	idx.Preload()
	assert.Equal(t, 2, idx.CacheLen())
	scans := s.TypeScans

	off, ok := idx.GetMemberOffset("B", "b")
	require.True(t, ok)
	assert.Zero(t, off)
	assert.Equal(t, scans, s.TypeScans)
}
