package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store defines the interface for photo storage backends. Every account owns
// one root (a directory or key prefix); all of its files live under it.
// This allows swapping the local filesystem for S3 or other backends.
type Store interface {
	EnsureRoot(root string) error
	Save(root, name string, data io.Reader) (int64, error)
	Open(root, name string) (io.ReadCloser, error)
	List(root string) ([]string, error)
	Delete(root, name string) error
	RemoveRoot(root string) error
}

// FileSystemStore stores photos on the local filesystem, one directory per
// account root under basePath.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureBase creates the base storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureBase() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// EnsureRoot creates an account's storage root if it doesn't exist.
func (fs *FileSystemStore) EnsureRoot(root string) error {
	dir := filepath.Join(fs.basePath, root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage root %s: %w", dir, err)
	}
	return nil
}

// Save writes data from a reader to a file under the account root.
// Returns the number of bytes written. A partially written file is removed
// when the copy fails.
func (fs *FileSystemStore) Save(root, name string, data io.Reader) (int64, error) {
	filePath := fs.filePath(root, name)

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	n, err := io.Copy(file, data)
	if err != nil {
		file.Close()
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	return n, nil
}

// Open returns a reader for a stored file.
func (fs *FileSystemStore) Open(root, name string) (io.ReadCloser, error) {
	file, err := os.Open(fs.filePath(root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s not found in root %s", name, root)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// List returns the names of all files stored under an account root.
func (fs *FileSystemStore) List(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.basePath, root))
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Delete removes a stored file.
func (fs *FileSystemStore) Delete(root, name string) error {
	filePath := fs.filePath(root, name)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// RemoveRoot recursively removes an account's storage root and everything in it.
func (fs *FileSystemStore) RemoveRoot(root string) error {
	dir := filepath.Join(fs.basePath, root)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove storage root %s: %w", dir, err)
	}
	return nil
}

func (fs *FileSystemStore) filePath(root, name string) string {
	return filepath.Join(fs.basePath, root, name)
}
