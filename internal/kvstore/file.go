package kvstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/constants"
)

// On-disk representation
type storeFile struct {
	Values  map[string]string `json:"values"`
	Updated string            `json:"updated,omitempty"`
}

// FileStore is a JSON file of named slots, rewritten atomically on every
// change.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// NewFileStore loads path. Missing file = empty store (first run).
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path must not be empty")
	}
	fs := &FileStore{
		path:   path,
		values: make(map[string]string),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	b, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read store file")
	}

	var sf storeFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return errors.Wrap(err, "parse store file")
	}
	if sf.Values != nil {
		fs.values = sf.Values
	}
	return nil
}

func (fs *FileStore) Get(key string) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	v, ok := fs.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (fs *FileStore) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, had := fs.values[key]
	fs.values[key] = value
	if err := fs.save(); err != nil {
		if had {
			fs.values[key] = prev
		} else {
			delete(fs.values, key)
		}
		return err
	}
	return nil
}

func (fs *FileStore) Delete(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, had := fs.values[key]
	if !had {
		return nil
	}
	delete(fs.values, key)
	if err := fs.save(); err != nil {
		fs.values[key] = prev
		return err
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }

// save must be called with fs.mu held.
func (fs *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(fs.path), constants.DirectoryPerm); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(fs.path))
	}

	b, err := json.MarshalIndent(storeFile{
		Values:  fs.values,
		Updated: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal store file")
	}
	return atomicWriteFile(fs.path, b, constants.FilePerm)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"

	// Best effort cleanup if something already exists.
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(err, "write tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename")
	}
	return nil
}
