package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"beacon/internal/catalog"
	"beacon/internal/logging"
)

const directoryProviderVersion = 1

// DirectoryProvider lists one directory's entries as file items. A
// filesystem watch marks the listing dirty, so the next fetch re-reads
// without waiting for the rescan campaign; OnChange, when set, lets
// the owner force that fetch immediately.
type DirectoryProvider struct {
	path       string
	showHidden bool

	cache     catalog.ItemCache
	watcher   *fsnotify.Watcher
	watchDone chan struct{}

	// OnChange fires from the watch goroutine after the listing goes
	// dirty. Typically wired to Manager.RescanNow.
	OnChange func(p *DirectoryProvider)

	log *logging.Logger
}

func NewDirectoryProvider(path string, showHidden bool) *DirectoryProvider {
	return &DirectoryProvider{
		path:       filepath.Clean(path),
		showHidden: showHidden,
		log:        logging.For("providers"),
	}
}

func (d *DirectoryProvider) ID() string {
	return "dir://" + d.path
}

func (d *DirectoryProvider) Name() string {
	if base := filepath.Base(d.path); base != "/" {
		return base
	}
	return d.path
}

func (d *DirectoryProvider) Version() int             { return directoryProviderVersion }
func (d *DirectoryProvider) Dynamic() bool            { return false }
func (d *DirectoryProvider) Provides() []catalog.Type { return []catalog.Type{catalog.TypeFile} }

// Initialize starts the filesystem watch. A directory that cannot be
// watched still works, it just relies on periodic rescans.
func (d *DirectoryProvider) Initialize() error {
	if _, err := os.Stat(d.path); err != nil {
		return fmt.Errorf("directory provider %s: %w", d.path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warnw("watch unavailable, relying on rescans",
			"path", d.path, "error", err)
		return nil
	}
	if err := w.Add(d.path); err != nil {
		w.Close()
		d.log.Warnw("watch unavailable, relying on rescans",
			"path", d.path, "error", err)
		return nil
	}
	d.watcher = w
	d.watchDone = make(chan struct{})
	go d.watch()
	return nil
}

func (d *DirectoryProvider) watch() {
	defer close(d.watchDone)
	for {
		select {
		case _, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.cache.Invalidate()
			if d.OnChange != nil {
				d.OnChange(d)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Debugw("watch error", "path", d.path, "error", err)
		}
	}
}

// Finalize stops the watch.
func (d *DirectoryProvider) Finalize() {
	if d.watcher != nil {
		d.watcher.Close()
		<-d.watchDone
		d.watcher = nil
	}
}

func (d *DirectoryProvider) Fetch(ctx context.Context, refresh bool) ([]catalog.Item, error) {
	return d.cache.Get(refresh, d.list)
}

func (d *DirectoryProvider) list() ([]catalog.Item, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !d.showHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	items := make([]catalog.Item, 0, len(names))
	for _, name := range names {
		items = append(items, NewFileItem(filepath.Join(d.path, name)))
	}
	return items, nil
}

// Parent makes browse-up from a directory land in its parent.
func (d *DirectoryProvider) Parent() catalog.Provider {
	parent := filepath.Dir(d.path)
	if parent == d.path {
		return nil
	}
	return NewDirectoryProvider(parent, d.showHidden)
}

// Leaf represents this provider in the catalog index as the directory
// itself, so browsing into it works from there too.
func (d *DirectoryProvider) Leaf() catalog.Item {
	return NewFileItem(d.path)
}

// MarshalItems snapshots the listed paths.
func (d *DirectoryProvider) MarshalItems() ([]byte, error) {
	items, err := d.cache.Get(false, d.list)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.(*FileItem).Path
	}
	return json.Marshal(paths)
}

// UnmarshalItems seeds the listing from a snapshot.
func (d *DirectoryProvider) UnmarshalItems(data []byte) error {
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return err
	}
	items := make([]catalog.Item, len(paths))
	for i, p := range paths {
		items[i] = NewFileItem(p)
	}
	d.cache.Seed(items)
	return nil
}
