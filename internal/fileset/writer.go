package fileset

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/spf13/afero"
)

// Writer writes files beneath a root directory.
type Writer struct {
	fs   afero.Fs
	root string
}

// NewWriter returns a Writer rooted at root on fs.
func NewWriter(fs afero.Fs, root string) *Writer {
	if root == "" {
		root = "."
	}
	return &Writer{fs: fs, root: root}
}

// NewOSWriter returns a Writer on the real filesystem.
func NewOSWriter(root string) *Writer {
	return NewWriter(afero.NewOsFs(), root)
}

// Resolve maps a relative path to its location under the root, following
// symlinks without leaving it.
func (w *Writer) Resolve(path string) (string, error) {
	full, err := securejoin.SecureJoinVFS(w.root, path, aferoVFS{w.fs})
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return full, nil
}

// Write creates parent directories as needed and replaces the file with
// content exactly as given.
func (w *Writer) Write(path, content string) error {
	full, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if err := w.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(w.fs, full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteAll writes files in order and stops at the first failure. It returns
// the paths written before that point.
func (w *Writer) WriteAll(files []File) ([]string, error) {
	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := w.Write(f.Path, f.Content); err != nil {
			return written, err
		}
		written = append(written, f.Path)
	}
	return written, nil
}

// aferoVFS exposes an afero.Fs to securejoin.
type aferoVFS struct {
	fs afero.Fs
}

func (v aferoVFS) Lstat(name string) (os.FileInfo, error) {
	if l, ok := v.fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(name)
		return fi, err
	}
	return v.fs.Stat(name)
}

func (v aferoVFS) Readlink(name string) (string, error) {
	if r, ok := v.fs.(afero.LinkReader); ok {
		return r.ReadlinkIfPossible(name)
	}
	return "", &os.PathError{Op: "readlink", Path: name, Err: afero.ErrNoReadlink}
}
