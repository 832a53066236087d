package snapshot

import (
	"github.com/rs/zerolog"

	"github.com/jtang613/pdbscope/internal/index"
	"github.com/jtang613/pdbscope/internal/safe"
	"github.com/jtang613/pdbscope/pkg/provider"
)

// Builder opens databases and captures their snapshots, consulting an
// optional disk cache first.
type Builder struct {
	Provider provider.Provider
	Limits   index.Limits
	Cache    *DiskCache
	Logger   zerolog.Logger
}

// Build returns the snapshot of the database at path. Only a provider open
// failure is returned as an error; cache problems are logged and bypassed.
func (b *Builder) Build(path string) (*Snapshot, error) {
	key := ""
	if b.Cache != nil {
		k, err := Key(path, b.Limits)
		if err != nil {
			b.Logger.Warn().Err(err).Str("path", path).Msg("cannot fingerprint database; cache bypassed")
		} else {
			key = k
			snap, ok, err := b.Cache.Get(key)
			if err != nil {
				b.Logger.Warn().Err(err).Str("path", path).Msg("cached snapshot unreadable")
			}
			if ok {
				b.Logger.Debug().Str("path", path).Str("key", key).Msg("snapshot cache hit")
				// identical content may have been cached under another path
				snap.Path = path
				return snap, nil
			}
		}
	}

	session, err := b.Provider.Open(path)
	if err != nil {
		return nil, err
	}
	defer safe.Close(session, b.Logger.With().Str("path", path).Logger(), "failed to close session")

	opts := []index.Option{index.WithLimits(b.Limits), index.WithLogger(b.Logger)}
	snap := CaptureSession(session, opts...)

	if key != "" {
		if err := b.Cache.Put(key, snap); err != nil {
			b.Logger.Warn().Err(err).Str("path", path).Msg("failed to store snapshot in cache")
		}
	}
	return snap, nil
}
