package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir)

	t.Run("roundtrip", func(t *testing.T) {
		p := newStub("p1")
		p.snapshot = []byte(`["a","b"]`)
		require.NoError(t, store.Save(p))

		fresh := newStub("p1")
		assert.True(t, store.Restore(fresh))
		assert.JSONEq(t, `["a","b"]`, string(fresh.restored))
	})

	t.Run("dynamic providers are skipped", func(t *testing.T) {
		p := newStub("dyn")
		p.dynamic = true
		require.NoError(t, store.Save(p))
		assert.False(t, store.Restore(p))
	})

	t.Run("name change misses the file", func(t *testing.T) {
		p := newStub("p1")
		p.name = "renamed"
		assert.False(t, store.Restore(p))
	})

	t.Run("corrupt file is just a miss", func(t *testing.T) {
		p := newStub("p2")
		p.snapshot = []byte(`[]`)
		require.NoError(t, store.Save(p))
		require.NoError(t, os.WriteFile(store.filename(p), []byte("not gzip"), 0o644))
		assert.False(t, store.Restore(p))
	})
}

func TestPruneObsolete(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir)

	p := newStub("p1")
	p.snapshot = []byte(`[]`)
	require.NoError(t, store.Save(p))

	old := filepath.Join(dir, "pdeadbeef-v0.json.gz")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))

	store.PruneObsolete()

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "old-format file removed")
	assert.True(t, store.Restore(newStub("p1")), "current file kept")
}
