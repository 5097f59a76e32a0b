package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that would escape the base directory.
var ErrOutsideRoot = errors.New("path escapes storage root")

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./submissions"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// WriteAtomic replaces the file at rel with data. The content is written to a
// temporary file in the same directory and renamed into place, so readers see
// either the previous version or the new one, never a partial write.
func (s *LocalStorage) WriteAtomic(rel string, data []byte) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

// ReadFile returns the content stored at rel.
func (s *LocalStorage) ReadFile(rel string) ([]byte, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Stat describes the file stored at rel.
func (s *LocalStorage) Stat(rel string) (os.FileInfo, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// ReadDir lists the entries of the directory at rel.
func (s *LocalStorage) ReadDir(rel string) ([]os.DirEntry, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(path)
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(rel string) string {
	path, err := s.resolve(rel)
	if err != nil {
		return ""
	}
	return path
}

func (s *LocalStorage) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", ErrOutsideRoot
	}
	path := filepath.Join(s.baseDir, rel)
	if path != s.baseDir && !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return path, nil
}
