package index

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/jtang613/pdbscope/pkg/provider"
)

// StructIndex resolves user-defined type names to member layouts for one
// session.
type StructIndex struct {
	session provider.Session
	limits  Limits
	logger  zerolog.Logger
	cache   *Cache[string, StructRecord]
}

// NewStructIndex creates an empty index over session.
func NewStructIndex(session provider.Session, opts ...Option) *StructIndex {
	o := buildOptions(opts)
	return &StructIndex{
		session: session,
		limits:  o.limits,
		logger:  o.logger,
		cache:   NewCache[string, StructRecord](structCacheName),
	}
}

// GetStruct returns the layout of the first type named name.
func (x *StructIndex) GetStruct(name string) (StructRecord, bool) {
	return x.cache.GetOrCompute(name, x.parse)
}

// GetMemberOffset returns the offset of memberName inside structName.
func (x *StructIndex) GetMemberOffset(structName, memberName string) (uint64, bool) {
	rec, ok := x.GetStruct(structName)
	if !ok {
		return 0, false
	}
	m, ok := rec.Member(memberName)
	if !ok {
		return 0, false
	}
	return m.Offset, true
}

func (x *StructIndex) parse(name string) (StructRecord, bool) {
	for udt, err := range x.session.UserDefinedTypes() {
		if err != nil || udt == nil {
			continue
		}
		if udt.Name() != name {
			continue
		}
		return x.layout(udt), true
	}
	return StructRecord{}, false
}

// layout enumerates the members of udt, capped at MaxMembers, and sorts them
// by offset. Members with no name, a decode error, or an offset outside a
// known struct size are dropped.
func (x *StructIndex) layout(udt provider.UDT) StructRecord {
	rec := StructRecord{
		Name:    udt.Name(),
		Size:    udt.Size(),
		Members: make([]StructMember, 0, 8),
	}
	skipped := 0

	for raw, err := range udt.Members() {
		if len(rec.Members) >= x.limits.MaxMembers {
			x.logger.Debug().
				Str("struct", rec.Name).
				Int("limit", x.limits.MaxMembers).
				Msg("member enumeration truncated")
			break
		}
		if err != nil || raw.Name == "" {
			skipped++
			continue
		}
		offset := uint64(max(raw.Offset, 0))
		if rec.Size > 0 && offset >= rec.Size {
			skipped++
			continue
		}
		rec.Members = append(rec.Members, StructMember{
			Name:   raw.Name,
			Offset: offset,
			Size:   raw.Size,
			TypeID: raw.TypeID,
		})
	}

	if skipped > 0 {
		recordsSkipped.WithLabelValues("member").Add(float64(skipped))
		x.logger.Debug().Str("struct", rec.Name).Int("skipped", skipped).Msg("skipped malformed members")
	}

	sort.SliceStable(rec.Members, func(i, j int) bool {
		return rec.Members[i].Offset < rec.Members[j].Offset
	})
	return rec
}

// Names returns the distinct type names in provider order, capped at
// MaxStructNames.
func (x *StructIndex) Names() []string {
	names := make([]string, 0, min(x.limits.MaxStructNames, 500))
	seen := make(map[string]struct{})

	for udt, err := range x.session.UserDefinedTypes() {
		if err != nil || udt == nil {
			continue
		}
		name := udt.Name()
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
		if len(names) >= x.limits.MaxStructNames {
			break
		}
	}
	return names
}

// Preload parses every type listed by Names in a single provider walk.
// Duplicate names keep the first record in provider order.
func (x *StructIndex) Preload() {
	wanted := make(map[string]struct{})
	for _, name := range x.Names() {
		if _, ok := x.cache.Get(name); !ok {
			wanted[name] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return
	}

	for udt, err := range x.session.UserDefinedTypes() {
		if err != nil || udt == nil {
			continue
		}
		name := udt.Name()
		if _, ok := wanted[name]; !ok {
			continue
		}
		delete(wanted, name)
		x.cache.Add(name, x.layout(udt))
		if len(wanted) == 0 {
			return
		}
	}
}

// CacheLen returns the number of cached layouts.
func (x *StructIndex) CacheLen() int {
	return x.cache.Len()
}

// ClearCaches drops all cached layouts.
func (x *StructIndex) ClearCaches() {
	x.cache.Clear()
}
