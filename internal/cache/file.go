package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStore keeps one JSON file per key under a base directory. Keys
// are namespaced paths ("listings/page-3"), mapped directly onto the
// directory tree. Writes go to a temp file first and are renamed into
// place so a concurrent reader never sees a partial entry.
type FileStore struct {
	dir    string
	logger *logrus.Logger
}

func NewFileStore(dir string, logger *logrus.Logger) *FileStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(sanitizeKey(key))+".json")
}

// sanitizeKey strips path traversal out of cache keys.
func sanitizeKey(key string) string {
	parts := strings.Split(key, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}

func (s *FileStore) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to read cache file")
		}
		return nil, false
	}
	return data, true
}

func (s *FileStore) Put(key string, data []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(prefix string) error {
	target := filepath.Join(s.dir, filepath.FromSlash(sanitizeKey(prefix)))
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to clear cache prefix %q: %w", prefix, err)
	}
	return nil
}
