package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
	"github.com/itchan-dev/imagehost/internal/service"
)

const tempPrefix = ".tmp-"

type Storage struct {
	rootPath string
}

// Ensure Storage struct implements the interface at compile time.
var _ service.ArtifactStore = (*Storage)(nil)

func New(rootPath string) (*Storage, error) {
	p := filepath.Clean(rootPath)

	if err := os.MkdirAll(p, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage directory %s: %w", p, err)
	}

	return &Storage{rootPath: p}, nil
}

func (s *Storage) Root() string {
	return s.rootPath
}

// fullPath resolves key below the root and refuses anything that escapes it.
func (s *Storage) fullPath(key domain.ArtifactKey) (string, error) {
	full := filepath.Join(s.rootPath, filepath.FromSlash(key.Path()))
	rel, err := filepath.Rel(s.rootPath, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: invalid artifact path %q", errors.ErrNotFound, key.Path())
	}
	return full, nil
}

// Put writes content to a temp file in the destination directory and renames
// it into place, so a crash never leaves a truncated artifact behind.
func (s *Storage) Put(ctx context.Context, key domain.ArtifactKey, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}

	// Lazily create the class subdirectory.
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create subdirectories: %w", errors.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", errors.ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to copy file data: %w", errors.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close temp file: %w", errors.ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to set permissions: %w", errors.ErrStorage, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to move file into place: %w", errors.ErrStorage, err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key domain.ArtifactKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, key.Path())
		}
		return nil, fmt.Errorf("%w: failed to open file: %w", errors.ErrStorage, err)
	}
	return file, nil
}

func (s *Storage) Delete(ctx context.Context, key domain.ArtifactKey) error {
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}

	err = os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to delete file: %w", errors.ErrStorage, err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	info, err := os.Stat(s.rootPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", errors.ErrStorage, s.rootPath)
	}
	return nil
}
