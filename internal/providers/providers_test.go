package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"beacon/internal/catalog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func itemNames(items []catalog.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name()
	}
	return out
}

func TestDirectoryProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	p := NewDirectoryProvider(dir, false)
	require.NoError(t, p.Initialize())
	defer p.Finalize()

	items, err := p.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, itemNames(items))

	t.Run("hidden entries shown on request", func(t *testing.T) {
		all := NewDirectoryProvider(dir, true)
		items, err := all.Fetch(context.Background(), false)
		require.NoError(t, err)
		assert.Contains(t, itemNames(items), ".hidden")
	})

	t.Run("directories browse, files do not", func(t *testing.T) {
		byName := map[string]catalog.Item{}
		for _, it := range items {
			byName[it.Name()] = it
		}
		assert.NotNil(t, byName["sub"].Content())
		assert.Nil(t, byName["a.txt"].Content())
	})

	t.Run("watch invalidates the listing", func(t *testing.T) {
		changed := make(chan struct{}, 1)
		p.OnChange = func(*DirectoryProvider) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), nil, 0o644))

		select {
		case <-changed:
		case <-time.After(2 * time.Second):
			t.Skip("no filesystem events on this system")
		}

		items, err := p.Fetch(context.Background(), false)
		require.NoError(t, err)
		assert.Contains(t, itemNames(items), "c.txt")
	})

	t.Run("snapshot roundtrip", func(t *testing.T) {
		raw, err := p.MarshalItems()
		require.NoError(t, err)

		fresh := NewDirectoryProvider(dir, false)
		require.NoError(t, fresh.UnmarshalItems(raw))
		items, err := fresh.Fetch(context.Background(), false)
		require.NoError(t, err)
		assert.Contains(t, itemNames(items), "a.txt")
	})

	t.Run("parent walks upward", func(t *testing.T) {
		parent := p.Parent().(*DirectoryProvider)
		assert.Equal(t, filepath.Dir(dir), parent.path)

		root := NewDirectoryProvider("/", false)
		assert.Nil(t, root.Parent())
	})
}

func TestFileItemValidity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	it := NewFileItem(path)
	assert.True(t, it.Valid())

	require.NoError(t, os.Remove(path))
	assert.False(t, it.Valid())
}

func TestFileItemDotfileAlias(t *testing.T) {
	it := NewFileItem("/home/u/.bashrc")
	assert.Equal(t, []string{"bashrc"}, it.Aliases())
}

func TestBookmarksProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookmarks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bookmarks:
  - title: Go docs
    url: https://go.dev/doc
    tags: [golang, docs]
  - url: https://example.com
  - title: broken
`), 0o644))

	p := NewBookmarksProvider(path)
	require.NoError(t, p.Initialize())
	defer p.Finalize()

	items, err := p.Fetch(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2, "entries without a url are dropped")

	assert.Equal(t, "Go docs", items[0].Name())
	assert.Equal(t, []string{"golang", "docs"}, items[0].Aliases())
	assert.Equal(t, "https://example.com", items[1].Name())

	t.Run("missing file is empty, not an error", func(t *testing.T) {
		empty := NewBookmarksProvider(filepath.Join(dir, "nope.yaml"))
		items, err := empty.Fetch(context.Background(), false)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestURLTextProvider(t *testing.T) {
	var p URLTextProvider

	t.Run("recognizes schemes", func(t *testing.T) {
		items := p.Items("https://go.dev")
		require.Len(t, items, 1)
		assert.Equal(t, catalog.TypeURL, items[0].Type())
	})

	t.Run("upgrades www forms", func(t *testing.T) {
		items := p.Items("www.example.co.uk")
		require.Len(t, items, 1)
		assert.Equal(t, "https://www.example.co.uk", items[0].(*URLItem).URL)
	})

	t.Run("rejects plain words", func(t *testing.T) {
		assert.Empty(t, p.Items("notebook"))
	})
}

func TestPathTextProvider(t *testing.T) {
	var p PathTextProvider
	dir := t.TempDir()

	items := p.Items(dir)
	require.Len(t, items, 1)
	assert.Equal(t, catalog.TypeFile, items[0].Type())

	assert.Empty(t, p.Items(filepath.Join(dir, "missing")))
	assert.Empty(t, p.Items("relative/path"))
}

func TestFreeTextProvider(t *testing.T) {
	var p FreeTextProvider
	assert.Empty(t, p.Items(""))

	items := p.Items("anything at all")
	require.Len(t, items, 1)
	assert.Equal(t, "anything at all", items[0].Name())
}

func TestCopyToDirCommand(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	path := filepath.Join(src, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	var cmd CopyToDirCommand
	assert.True(t, cmd.AppliesTo(NewFileItem(path)))
	assert.False(t, cmd.AppliesTo(NewFileItem(src)), "directories are not copy subjects")

	res, err := cmd.Run(context.Background(), NewFileItem(path), NewFileItem(dst))
	require.NoError(t, err)

	copied := res.Item.(*FileItem)
	assert.Equal(t, filepath.Join(dst, "doc.txt"), copied.Path)
	data, err := os.ReadFile(copied.Path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := cmd.Run(context.Background(), NewFileItem(path), NewFileItem(dst))
		assert.Error(t, err)
	})
}
