package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// CropStore writes enrollment audit crops as JPEG files. Crops are never
// removed when an embedding is deleted.
type CropStore struct {
	dir string
}

// NewCropStore creates the crop directory if needed.
func NewCropStore(dir string) (*CropStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create crops directory: %v", ErrStorageAccess, err)
	}
	return &CropStore{dir: dir}, nil
}

// Save writes a JPEG crop for identity key under a fresh name and returns
// its path. The write goes through a temp file so readers never see a
// partial image.
func (c *CropStore) Save(key int64, jpegData []byte) (string, error) {
	name := fmt.Sprintf("%d_%s.jpg", key, uuid.NewString())
	path := filepath.Join(c.dir, name)

	tmp, err := os.CreateTemp(c.dir, ".crop-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(jpegData); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: write crop: %v", ErrStorageAccess, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: close crop: %v", ErrStorageAccess, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename crop: %v", ErrStorageAccess, err)
	}

	return path, nil
}

// Remove deletes a crop written by Save. It is used to roll back a crop
// whose embedding could not be stored.
func (c *CropStore) Remove(path string) error {
	if filepath.Dir(path) != filepath.Clean(c.dir) {
		return fmt.Errorf("crop %s is outside %s", path, c.dir)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Writable reports whether the crop directory accepts writes.
func (c *CropStore) Writable() error {
	return probeWritable(c.dir)
}
