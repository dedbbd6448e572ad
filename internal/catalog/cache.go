package catalog

import (
	"compress/gzip"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"beacon/internal/logging"
)

// snapshotFormat invalidates every cache file when the on-disk layout
// changes.
const snapshotFormat = 1

// snapshotFile is the envelope around a provider's serialized items.
type snapshotFile struct {
	Format  int             `json:"format"`
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotStore persists one gzip-compressed snapshot file per
// non-dynamic provider, named by a hash of (id, name, version). A
// mismatch in any of those against a fresh instance discards the file
// silently; the cache is an optimization, never a source of truth.
type SnapshotStore struct {
	dir string
	log *logging.Logger
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir, log: logging.For("catalog")}
}

func (s *SnapshotStore) filename(p Provider) string {
	// Name participates so that a display-language change breaks the
	// cache too.
	key := fmt.Sprintf("%s%s%d", p.ID(), p.Name(), p.Version())
	sum := md5.Sum([]byte(key))
	return filepath.Join(s.dir, fmt.Sprintf("p%x-v%d.json.gz", sum, snapshotFormat))
}

// Save writes p's current items as a snapshot. Dynamic providers are
// skipped.
func (s *SnapshotStore) Save(p Cacheable) error {
	if p.Dynamic() {
		return nil
	}
	payload, err := p.MarshalItems()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", p.ID(), err)
	}
	env := snapshotFile{
		Format:  snapshotFormat,
		ID:      p.ID(),
		Name:    p.Name(),
		Version: p.Version(),
		Payload: payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", p.ID(), err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := s.filename(p)
	tmp := fmt.Sprintf("%s.%d", path, os.Getpid())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	zw, _ := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if _, err := zw.Write(raw); err == nil {
		err = zw.Close()
	} else {
		zw.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot %s: %w", p.ID(), err)
	}
	return os.Rename(tmp, path)
}

// Restore seeds p from its snapshot file, reporting whether it
// succeeded. Any defect (missing file, bad gzip, format or identity
// mismatch) just means "no cache".
func (s *SnapshotStore) Restore(p Cacheable) bool {
	if p.Dynamic() {
		return false
	}
	f, err := os.Open(s.filename(p))
	if err != nil {
		return false
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return false
	}
	var env snapshotFile
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	if env.Format != snapshotFormat || env.ID != p.ID() ||
		env.Name != p.Name() || env.Version != p.Version() {
		s.log.Debugw("snapshot mismatch, discarding",
			"provider", p.ID(), "cached_version", env.Version)
		return false
	}
	if err := p.UnmarshalItems(env.Payload); err != nil {
		s.log.Debugw("snapshot payload unreadable, discarding",
			"provider", p.ID(), "error", err)
		return false
	}
	return true
}

// PruneObsolete deletes cache files from earlier snapshot formats.
func (s *SnapshotStore) PruneObsolete() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	suffix := fmt.Sprintf("-v%d.json.gz", snapshotFormat)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "p") || !strings.HasSuffix(name, ".json.gz") {
			continue
		}
		if strings.HasSuffix(name, suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			s.log.Debugw("removed obsolete snapshot", "file", name)
		}
	}
}
