package providers

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"beacon/internal/catalog"
)

const bookmarksProviderVersion = 2

// URLItem is a catalog item backed by a URL.
type URLItem struct {
	URL   string
	Title string
	Tags  []string
}

func (u *URLItem) ID() string { return "url://" + u.URL }

func (u *URLItem) Name() string {
	if u.Title != "" {
		return u.Title
	}
	return u.URL
}

func (u *URLItem) Type() catalog.Type        { return catalog.TypeURL }
func (u *URLItem) Aliases() []string         { return u.Tags }
func (u *URLItem) Description() string       { return u.URL }
func (u *URLItem) Valid() bool               { return true }
func (u *URLItem) Content() catalog.Provider { return nil }

// bookmarksFile is the YAML document a BookmarksProvider reads.
type bookmarksFile struct {
	Bookmarks []struct {
		Title string   `yaml:"title"`
		URL   string   `yaml:"url"`
		Tags  []string `yaml:"tags"`
	} `yaml:"bookmarks"`
}

// BookmarksProvider serves URL items from a YAML bookmarks file.
type BookmarksProvider struct {
	path  string
	cache catalog.ItemCache
}

func NewBookmarksProvider(path string) *BookmarksProvider {
	return &BookmarksProvider{path: path}
}

func (b *BookmarksProvider) ID() string               { return "bookmarks://" + b.path }
func (b *BookmarksProvider) Name() string             { return "Bookmarks" }
func (b *BookmarksProvider) Version() int             { return bookmarksProviderVersion }
func (b *BookmarksProvider) Dynamic() bool            { return false }
func (b *BookmarksProvider) Provides() []catalog.Type { return []catalog.Type{catalog.TypeURL} }
func (b *BookmarksProvider) Initialize() error        { return nil }
func (b *BookmarksProvider) Finalize()                {}

func (b *BookmarksProvider) Fetch(ctx context.Context, refresh bool) ([]catalog.Item, error) {
	return b.cache.Get(refresh, b.load)
}

func (b *BookmarksProvider) load() ([]catalog.Item, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bookmarks: %w", err)
	}
	var file bookmarksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse bookmarks: %w", err)
	}
	items := make([]catalog.Item, 0, len(file.Bookmarks))
	for _, bm := range file.Bookmarks {
		if bm.URL == "" {
			continue
		}
		items = append(items, &URLItem{URL: bm.URL, Title: bm.Title, Tags: bm.Tags})
	}
	return items, nil
}
