package providers

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/atotto/clipboard"

	"beacon/internal/catalog"
)

// OpenCommand opens files and URLs with the desktop's default handler.
// Runs async since the handler may block on startup.
type OpenCommand struct{}

func (OpenCommand) ID() string                  { return "builtin.open" }
func (OpenCommand) Name() string                { return "Open" }
func (OpenCommand) Accel() rune                 { return 'o' }
func (OpenCommand) RankBias() int               { return 5 }
func (OpenCommand) ObjectTypes() []catalog.Type { return nil }
func (OpenCommand) Async() bool                 { return true }

func (OpenCommand) AppliesTo(subject catalog.Item) bool {
	switch subject.Type() {
	case catalog.TypeFile, catalog.TypeURL:
		return true
	}
	return false
}

func (OpenCommand) Run(ctx context.Context, subject, object catalog.Item) (catalog.Result, error) {
	target, err := subjectTarget(subject)
	if err != nil {
		return catalog.Result{}, err
	}
	if err := exec.CommandContext(ctx, "xdg-open", target).Run(); err != nil {
		return catalog.Result{}, fmt.Errorf("open %s: %w", target, err)
	}
	return catalog.Result{}, nil
}

// CopyTextCommand puts the subject's textual value on the clipboard.
type CopyTextCommand struct{}

func (CopyTextCommand) ID() string                  { return "builtin.copy-text" }
func (CopyTextCommand) Name() string                { return "Copy" }
func (CopyTextCommand) Accel() rune                 { return 'c' }
func (CopyTextCommand) RankBias() int               { return 0 }
func (CopyTextCommand) ObjectTypes() []catalog.Type { return nil }
func (CopyTextCommand) Async() bool                 { return false }

func (CopyTextCommand) AppliesTo(subject catalog.Item) bool { return true }

func (CopyTextCommand) Run(ctx context.Context, subject, object catalog.Item) (catalog.Result, error) {
	text, err := subjectTarget(subject)
	if err != nil {
		text = subject.Name()
	}
	if err := clipboard.WriteAll(text); err != nil {
		return catalog.Result{}, fmt.Errorf("clipboard: %w", err)
	}
	return catalog.Result{}, nil
}

// CopyToDirCommand copies a file into a chosen directory. The
// secondary object pane supplies the destination.
type CopyToDirCommand struct{}

func (CopyToDirCommand) ID() string                  { return "builtin.copy-to" }
func (CopyToDirCommand) Name() string                { return "Copy To..." }
func (CopyToDirCommand) Accel() rune                 { return 0 }
func (CopyToDirCommand) RankBias() int               { return -5 }
func (CopyToDirCommand) ObjectTypes() []catalog.Type { return []catalog.Type{catalog.TypeFile} }
func (CopyToDirCommand) Async() bool                 { return true }

func (CopyToDirCommand) AppliesTo(subject catalog.Item) bool {
	f, ok := subject.(*FileItem)
	return ok && !f.IsDir()
}

func (CopyToDirCommand) Run(ctx context.Context, subject, object catalog.Item) (catalog.Result, error) {
	src, ok := subject.(*FileItem)
	if !ok {
		return catalog.Result{}, fmt.Errorf("copy-to: subject is not a file")
	}
	dst, ok := object.(*FileItem)
	if !ok || !dst.IsDir() {
		return catalog.Result{}, fmt.Errorf("copy-to: destination is not a directory")
	}

	target := filepath.Join(dst.Path, filepath.Base(src.Path))
	if err := copyFile(src.Path, target); err != nil {
		return catalog.Result{}, fmt.Errorf("copy-to: %w", err)
	}
	return catalog.Result{Item: NewFileItem(target)}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func subjectTarget(subject catalog.Item) (string, error) {
	switch it := subject.(type) {
	case *FileItem:
		return it.Path, nil
	case *URLItem:
		return it.URL, nil
	case *TextItem:
		return it.Text, nil
	}
	return "", fmt.Errorf("no target for %s", subject.ID())
}

// BuiltinCommands returns the stock command set.
func BuiltinCommands() []catalog.Command {
	return []catalog.Command{OpenCommand{}, CopyTextCommand{}, CopyToDirCommand{}}
}

// BuiltinTextProviders returns the stock text provider set.
func BuiltinTextProviders() []catalog.TextProvider {
	return []catalog.TextProvider{FreeTextProvider{}, URLTextProvider{}, PathTextProvider{}}
}
