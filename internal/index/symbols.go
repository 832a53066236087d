package index

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/jtang613/pdbscope/pkg/provider"
)

// SymbolIndex resolves public symbol names to RVAs for one session.
type SymbolIndex struct {
	session provider.Session
	limits  Limits
	logger  zerolog.Logger
	cache   *Cache[string, uint64]
}

// NewSymbolIndex creates an empty index over session.
func NewSymbolIndex(session provider.Session, opts ...Option) *SymbolIndex {
	o := buildOptions(opts)
	return &SymbolIndex{
		session: session,
		limits:  o.limits,
		logger:  o.logger,
		cache:   NewCache[string, uint64](symbolCacheName),
	}
}

// Limits returns the caps in effect.
func (x *SymbolIndex) Limits() Limits {
	return x.limits
}

// collect enumerates well-formed public symbols in provider order, stopping
// once MaxSymbols records have been retained.
func (x *SymbolIndex) collect() []SymbolRecord {
	symbols := make([]SymbolRecord, 0, min(x.limits.MaxSymbols, 2000))
	skipped := 0

	for raw, err := range x.session.PublicSymbols() {
		if err != nil || raw.Name == "" {
			skipped++
			continue
		}
		symbols = append(symbols, SymbolRecord{
			Name:   raw.Name,
			RVA:    raw.RVA,
			Size:   raw.Size,
			TypeID: raw.TypeID,
		})
		if len(symbols) >= x.limits.MaxSymbols {
			x.logger.Debug().
				Int("limit", x.limits.MaxSymbols).
				Str("path", x.session.Path()).
				Msg("symbol enumeration truncated")
			break
		}
	}

	if skipped > 0 {
		recordsSkipped.WithLabelValues("symbol").Add(float64(skipped))
		x.logger.Debug().Int("skipped", skipped).Msg("skipped malformed symbol records")
	}
	return symbols
}

// BuildFull returns the public symbols sorted by ascending RVA, truncated at
// MaxSymbols. Malformed records are skipped.
func (x *SymbolIndex) BuildFull() []SymbolRecord {
	symbols := x.collect()
	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].RVA < symbols[j].RVA
	})
	return symbols
}

// Lookup returns the RVA of the first symbol named name.
func (x *SymbolIndex) Lookup(name string) (uint64, bool) {
	return x.cache.GetOrCompute(name, x.scan)
}

func (x *SymbolIndex) scan(name string) (uint64, bool) {
	for raw, err := range x.session.PublicSymbols() {
		if err != nil || raw.Name == "" {
			continue
		}
		if raw.Name == name {
			return raw.RVA, true
		}
	}
	return 0, false
}

// Preload fills the lookup cache from a full enumeration. Duplicate names keep
// the first record in provider order.
func (x *SymbolIndex) Preload() {
	for _, sym := range x.collect() {
		x.cache.Add(sym.Name, sym.RVA)
	}
}

// CacheLen returns the number of cached names.
func (x *SymbolIndex) CacheLen() int {
	return x.cache.Len()
}

// ClearCaches drops all cached lookups.
func (x *SymbolIndex) ClearCaches() {
	x.cache.Clear()
}

// Search runs SearchByPattern against this index's session with its
// MaxMatches cap. The lookup cache is neither read nor written.
func (x *SymbolIndex) Search(pattern string) (*SearchResult, error) {
	return SearchByPattern(x.session, pattern, x.limits.MaxMatches)
}
