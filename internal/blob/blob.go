//go:generate go run go.uber.org/mock/mockgen -source=blob.go -destination=../mocks/mock_blob_store.go -package=mocks

// Package blob stores files attached to messages and derives the names they
// are stored under.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidName = errors.New("invalid blob name")
	ErrInvalidData = errors.New("invalid file data")
)

// Store is the durable destination for decoded attachments.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// DiskStore keeps blobs as plain files in a single directory.
type DiskStore struct {
	dir string
	log *slog.Logger
}

func NewDiskStore(dir string, log *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, log: log}, nil
}

// Put writes data under name. Existing blobs are never overwritten. The
// context is checked before and after the write; a blob whose context ended
// meanwhile is removed again.
func (s *DiskStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	s.log.Info("File saved", "path", path, "size", len(data))
	return nil
}

func (s *DiskStore) Delete(_ context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DiskStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}
