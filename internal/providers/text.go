package providers

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"beacon/internal/catalog"
)

// TextItem is a catalog item carrying the literal query text.
type TextItem struct {
	Text string
}

func (t *TextItem) ID() string                { return "text:" + t.Text }
func (t *TextItem) Name() string              { return t.Text }
func (t *TextItem) Type() catalog.Type        { return catalog.TypeText }
func (t *TextItem) Aliases() []string         { return nil }
func (t *TextItem) Description() string       { return "Text" }
func (t *TextItem) Valid() bool               { return true }
func (t *TextItem) Content() catalog.Provider { return nil }

// FreeTextProvider turns any typed query into a text item, ranked low
// so real catalog matches win unless nothing else does.
type FreeTextProvider struct{}

func (FreeTextProvider) ID() string               { return "beacon.text" }
func (FreeTextProvider) Name() string             { return "Text" }
func (FreeTextProvider) Rank() int                { return 10 }
func (FreeTextProvider) Provides() []catalog.Type { return []catalog.Type{catalog.TypeText} }

func (FreeTextProvider) Items(text string) []catalog.Item {
	if text == "" {
		return nil
	}
	return []catalog.Item{&TextItem{Text: text}}
}

// URLTextProvider recognizes typed URLs and ranks them high.
type URLTextProvider struct{}

func (URLTextProvider) ID() string               { return "beacon.text-url" }
func (URLTextProvider) Name() string             { return "URLs" }
func (URLTextProvider) Rank() int                { return 75 }
func (URLTextProvider) Provides() []catalog.Type { return []catalog.Type{catalog.TypeURL} }

func (URLTextProvider) Items(text string) []catalog.Item {
	text = strings.TrimSpace(text)
	candidate := text
	switch {
	case strings.Contains(text, "://"):
	case strings.HasPrefix(text, "www.") && strings.Count(text, ".") >= 2:
		candidate = "https://" + text
	default:
		return nil
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return nil
	}
	return []catalog.Item{&URLItem{URL: candidate, Title: text}}
}

// PathTextProvider recognizes absolute and home-relative paths that
// exist on disk.
type PathTextProvider struct{}

func (PathTextProvider) ID() string               { return "beacon.text-path" }
func (PathTextProvider) Name() string             { return "File Paths" }
func (PathTextProvider) Rank() int                { return 80 }
func (PathTextProvider) Provides() []catalog.Type { return []catalog.Type{catalog.TypeFile} }

func (PathTextProvider) Items(text string) []catalog.Item {
	path := strings.TrimSpace(text)
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, path[1:])
	}
	if !filepath.IsAbs(path) {
		return nil
	}
	if _, err := os.Lstat(path); err != nil {
		return nil
	}
	return []catalog.Item{NewFileItem(path)}
}
