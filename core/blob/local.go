package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSignedURLs marks backends that hand out plain file paths instead of
// expiring URLs.
var ErrNoSignedURLs = errors.New("backend does not support signed urls")

// LocalStore writes attachments under a directory on disk. It is the
// degraded mode used when no bucket is configured.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("storage dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(storedName string) string {
	return filepath.Join(s.dir, filepath.Base(storedName))
}

func (s *LocalStore) Upload(ctx context.Context, storedName string, r io.Reader, contentType string, metadata map[string]string) (string, error) {
	path := s.path(storedName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *LocalStore) SignedURL(ctx context.Context, storedName string, ttl time.Duration) (string, error) {
	return "", ErrNoSignedURLs
}

func (s *LocalStore) Exists(ctx context.Context, storedName string) (bool, error) {
	_, err := os.Stat(s.path(storedName))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStore) Delete(ctx context.Context, storedName string) (bool, error) {
	err := os.Remove(s.path(storedName))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStore) Kind() string { return "local" }
