package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/MrCodeEU/attendface/pkg/logging"
)

// FileStore keeps one file per identity, optionally sealed with secretbox.
// The directory is the source of truth; an in-memory index mirrors it so
// full scans do not hit the disk.
type FileStore struct {
	dir               string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte

	mu    sync.RWMutex
	index map[int64]Embedding
}

// NewFileStore opens (and creates) a file store rooted at dir.
func NewFileStore(dir string, encryptionEnabled bool) (*FileStore, error) {
	fs := &FileStore{
		dir:               dir,
		encryptionEnabled: encryptionEnabled,
		index:             make(map[int64]Embedding),
	}

	// Derive encryption key from machine-specific information
	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create faces directory: %v", ErrStorageAccess, err)
	}

	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) extension() string {
	if fs.encryptionEnabled {
		return ".enc"
	}
	return ".json"
}

func (fs *FileStore) path(key int64) string {
	return filepath.Join(fs.dir, strconv.FormatInt(key, 10)+fs.extension())
}

// reload rebuilds the index from disk. Unreadable files, and files whose
// content names a different identity than the file name, are skipped. A
// skipped file still occupies its key: Put reports ErrExists until Delete
// removes it.
func (fs *FileStore) reload() error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return fmt.Errorf("%w: list faces: %v", ErrStorageAccess, err)
	}

	log := logging.Component("storage")
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fs.extension()) {
			continue
		}
		key, err := strconv.ParseInt(strings.TrimSuffix(name, fs.extension()), 10, 64)
		if err != nil {
			continue
		}

		e, err := fs.readFile(filepath.Join(fs.dir, name))
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable face file %s", name)
			continue
		}
		if e.IdentityKey != key {
			log.Warnf("Skipping face file %s: it holds identity %d", name, e.IdentityKey)
			continue
		}
		fs.index[key] = *e
	}

	log.Debugf("Loaded %d face embedding(s) from %s", len(fs.index), fs.dir)
	return nil
}

func (fs *FileStore) readFile(path string) (*Embedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt face data: %w", err)
		}
	}

	var e Embedding
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal face data: %w", err)
	}
	return &e, nil
}

// Get returns the embedding stored for key.
func (fs *FileStore) Get(ctx context.Context, key int64) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	e, ok := fs.index[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := e.Clone()
	return &clone, nil
}

// GetAll returns every embedding ordered by identity key.
func (fs *FileStore) GetAll(ctx context.Context) ([]Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	all := make([]Embedding, 0, len(fs.index))
	for _, e := range fs.index {
		all = append(all, e.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].IdentityKey < all[j].IdentityKey })
	return all, nil
}

// Put writes a new embedding file. The file is created exclusively so a
// concurrent writer from another process also sees ErrExists.
func (fs *FileStore) Put(ctx context.Context, e Embedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal face data: %w", err)
	}
	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt face data: %w", err)
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.index[e.IdentityKey]; ok {
		return ErrExists
	}

	path := fs.path(e.IdentityKey)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return ErrExists
		}
		return fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: write face data: %v", ErrStorageAccess, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: close face data: %v", ErrStorageAccess, err)
	}

	fs.index[e.IdentityKey] = e.Clone()
	logging.Debugf("Saved face data for identity %d", e.IdentityKey)
	return nil
}

// Delete removes the embedding file for key.
func (fs *FileStore) Delete(ctx context.Context, key int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path(key)); err != nil {
		if os.IsNotExist(err) {
			delete(fs.index, key)
			return false, nil
		}
		return false, fmt.Errorf("%w: delete face data: %v", ErrStorageAccess, err)
	}

	delete(fs.index, key)
	logging.Infof("Deleted face data for identity %d", key)
	return true, nil
}

// Writable reports whether the store directory accepts writes.
func (fs *FileStore) Writable() error {
	return probeWritable(fs.dir)
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
