package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"jobqueue/internal/payload"
	"jobqueue/internal/store"
)

// ErrPathEscapesRoot is returned for paths that resolve outside the root.
var ErrPathEscapesRoot = errors.New("path escapes work directory")

// Files creates and deletes files under a root directory.
type Files struct {
	Root string
}

// NewFiles returns a Files rooted at root. An empty root defaults to a
// jobqueue directory under the OS temp dir.
func NewFiles(root string) *Files {
	if root == "" {
		root = filepath.Join(os.TempDir(), "jobqueue", "work")
	}
	return &Files{Root: root}
}

// resolve maps a relative job path onto the root.
func (f *Files) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is absolute", ErrPathEscapesRoot, rel)
	}
	full := filepath.Join(f.Root, rel)
	back, err := filepath.Rel(f.Root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, rel)
	}
	if back == "." {
		return "", fmt.Errorf("%w: %s names the root itself", ErrPathEscapesRoot, rel)
	}
	return full, nil
}

// Create writes a create_file payload. Without Overwrite an existing file is
// an error.
func (f *Files) Create(ctx context.Context, job *store.Job, p payload.Payload) error {
	cf, ok := p.(*payload.CreateFile)
	if !ok {
		return unexpected(payload.TypeCreateFile, p)
	}

	path, err := f.resolve(cf.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !cf.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("file %s already exists", cf.Path)
		}
		return fmt.Errorf("failed to open %s: %w", cf.Path, err)
	}

	if _, err := file.WriteString(cf.Content); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", cf.Path, err)
	}
	return file.Close()
}

// Delete removes the file named by a delete_file payload. A missing file is
// only an error when RequireExists is set.
func (f *Files) Delete(ctx context.Context, job *store.Job, p payload.Payload) error {
	df, ok := p.(*payload.DeleteFile)
	if !ok {
		return unexpected(payload.TypeDeleteFile, p)
	}

	path, err := f.resolve(df.Path)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !df.RequireExists {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", df.Path, err)
	}
	return nil
}
