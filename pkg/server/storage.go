package server

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore resolves requested filenames to readable files
type FileStore interface {
	// Open returns an open file and its size
	Open(name string) (*os.File, int64, error)
}

// DiskStore serves files from a directory. Names are joined to Root as given;
// there is no check that the result stays inside Root.
type DiskStore struct {
	Root string
}

// NewDiskStore creates a store rooted at root
func NewDiskStore(root string) *DiskStore {
	return &DiskStore{Root: root}
}

// Open opens name under the store root
func (d *DiskStore) Open(name string) (*os.File, int64, error) {
	path := filepath.Join(d.Root, name)

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}

	return f, info.Size(), nil
}
