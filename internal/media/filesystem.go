package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore stores media as files under a root directory. Paths
// returned are relative ("images/<name>") so the dashboard can serve them.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a filesystem media store rooted at the given
// directory, creating it if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Put writes the content to <root>/<name> using an atomic temp-file-and-rename.
// If the file already exists it is left untouched.
func (s *FileSystemStore) Put(_ context.Context, name string, r io.Reader) (string, error) {
	destPath := filepath.Join(s.root, name)
	relPath := "images/" + name

	if _, err := os.Stat(destPath); err == nil {
		return relPath, nil
	}

	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write media: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return relPath, nil
}

// Compile-time check that FileSystemStore implements MediaStore.
var _ MediaStore = (*FileSystemStore)(nil)
