// Package providers holds the stock catalog collaborators: the
// watched directory provider, the bookmarks provider, the free-text
// providers and the builtin commands.
package providers

import (
	"os"
	"path/filepath"
	"strings"

	"beacon/internal/catalog"
)

// FileItem is a catalog item backed by a filesystem path.
type FileItem struct {
	Path string
}

func NewFileItem(path string) *FileItem {
	return &FileItem{Path: filepath.Clean(path)}
}

func (f *FileItem) ID() string   { return "file://" + f.Path }
func (f *FileItem) Name() string { return filepath.Base(f.Path) }

func (f *FileItem) Type() catalog.Type { return catalog.TypeFile }

// Aliases lets dotfiles match without the leading dot.
func (f *FileItem) Aliases() []string {
	base := filepath.Base(f.Path)
	if strings.HasPrefix(base, ".") && len(base) > 1 {
		return []string{base[1:]}
	}
	return nil
}

func (f *FileItem) Description() string { return f.Path }

// Valid checks that the path still exists.
func (f *FileItem) Valid() bool {
	_, err := os.Lstat(f.Path)
	return err == nil
}

// Content makes directories browsable.
func (f *FileItem) Content() catalog.Provider {
	if info, err := os.Stat(f.Path); err == nil && info.IsDir() {
		return NewDirectoryProvider(f.Path, false)
	}
	return nil
}

func (f *FileItem) IsDir() bool {
	info, err := os.Stat(f.Path)
	return err == nil && info.IsDir()
}
