package snapshot

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/xxh3"

	"github.com/jtang613/pdbscope/internal/index"
)

// Current schema version - increment when diskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// DiskCache stores encoded snapshots keyed by database content, so unchanged
// databases are not enumerated again. A nil *DiskCache is a disabled cache.
type DiskCache struct {
	dir string
}

type diskPayload struct {
	Schema   uint16    `msgpack:"schema"`
	Snapshot *Snapshot `msgpack:"snapshot"`
}

// OpenDiskCache returns a cache rooted at dir, creating it if needed.
func OpenDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Key fingerprints the database at path together with the limits that shape
// its snapshot.
func Key(path string, limits index.Limits) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	fmt.Fprintf(h, "|%d|%d|%d|%d", limits.MaxSymbols, limits.MaxMatches, limits.MaxStructNames, limits.MaxMembers)

	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

func (c *DiskCache) pathFor(key string) string {
	return filepath.Join(c.dir, "snapshots", key+".mp")
}

// Get loads the snapshot stored under key. A missing entry or one written by
// another schema version reports false with no error.
func (c *DiskCache) Get(key string) (*Snapshot, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload diskPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached snapshot: %w", err)
	}
	if payload.Schema != diskCacheSchemaVersion || payload.Snapshot == nil {
		return nil, false, nil
	}
	return payload.Snapshot, true, nil
}

// Put stores snap under key, replacing any previous entry atomically.
func (c *DiskCache) Put(key string, snap *Snapshot) error {
	if c == nil {
		return nil
	}

	p := c.pathFor(key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(&diskPayload{Schema: diskCacheSchemaVersion, Snapshot: snap}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// DropAll removes every cached snapshot.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	dir := filepath.Join(c.dir, "snapshots")
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
