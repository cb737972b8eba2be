package fs

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, stderrors.New("disk on fire") }

func originalKey() domain.ArtifactKey {
	return domain.ArtifactKey{ID: domain.NewImageID(), Class: domain.ClassOriginal}
}

func TestNew(t *testing.T) {
	t.Run("creates storage with valid path", func(t *testing.T) {
		tmpDir := t.TempDir()
		storage, err := New(tmpDir)

		require.NoError(t, err)
		assert.Equal(t, tmpDir, storage.Root())
		_, err = os.Stat(tmpDir)
		assert.NoError(t, err)
	})

	t.Run("creates nested directories", func(t *testing.T) {
		nestedPath := filepath.Join(t.TempDir(), "a", "b", "c")

		_, err := New(nestedPath)
		require.NoError(t, err)

		_, err = os.Stat(nestedPath)
		assert.NoError(t, err)
	})

	t.Run("cleans path", func(t *testing.T) {
		tmpDir := t.TempDir()
		storage, err := New(filepath.Join(tmpDir, "uploads", "..", "uploads"))

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "uploads"), storage.Root())
	})
}

func TestPut(t *testing.T) {
	ctx := context.Background()

	t.Run("writes artifact under class directory", func(t *testing.T) {
		storage, err := New(t.TempDir())
		require.NoError(t, err)

		key := originalKey()
		require.NoError(t, storage.Put(ctx, key, strings.NewReader("webp bytes")))

		content, err := os.ReadFile(filepath.Join(storage.Root(), "original", key.ID.String()+".webp"))
		require.NoError(t, err)
		assert.Equal(t, "webp bytes", string(content))
	})

	t.Run("metadata uses json extension", func(t *testing.T) {
		storage, err := New(t.TempDir())
		require.NoError(t, err)

		key := domain.ArtifactKey{ID: domain.NewImageID(), Class: domain.ClassMetadata}
		require.NoError(t, storage.Put(ctx, key, strings.NewReader("{}")))

		_, err = os.Stat(filepath.Join(storage.Root(), "metadata", key.ID.String()+".json"))
		assert.NoError(t, err)
	})

	t.Run("overwrites existing artifact", func(t *testing.T) {
		storage, err := New(t.TempDir())
		require.NoError(t, err)

		key := originalKey()
		require.NoError(t, storage.Put(ctx, key, strings.NewReader("first")))
		require.NoError(t, storage.Put(ctx, key, strings.NewReader("second")))

		rc, err := storage.Open(ctx, key)
		require.NoError(t, err)
		defer rc.Close()
		content, _ := io.ReadAll(rc)
		assert.Equal(t, "second", string(content))
	})

	t.Run("failed copy leaves nothing behind", func(t *testing.T) {
		storage, err := New(t.TempDir())
		require.NoError(t, err)

		key := originalKey()
		err = storage.Put(ctx, key, failingReader{})
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrStorage))

		entries, err := os.ReadDir(filepath.Join(storage.Root(), "original"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("cancelled context", func(t *testing.T) {
		storage, err := New(t.TempDir())
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, storage.Put(cctx, originalKey(), strings.NewReader("x")), context.Canceled)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	t.Run("reads stored content", func(t *testing.T) {
		key := domain.ArtifactKey{ID: domain.NewImageID(), Class: domain.Resized(domain.Size{Name: "Small", Width: 320})}
		payload := bytes.Repeat([]byte{0xAB}, 4096)
		require.NoError(t, storage.Put(ctx, key, bytes.NewReader(payload)))

		rc, err := storage.Open(ctx, key)
		require.NoError(t, err)
		defer rc.Close()
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, content)
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := storage.Open(ctx, originalKey())
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	})

	t.Run("traversal rejected", func(t *testing.T) {
		key := domain.ArtifactKey{ID: domain.ImageID("../../etc/passwd"), Class: domain.ClassOriginal}
		_, err := storage.Open(ctx, key)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	key := originalKey()
	require.NoError(t, storage.Put(ctx, key, strings.NewReader("x")))
	require.NoError(t, storage.Delete(ctx, key))

	_, err = storage.Open(ctx, key)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	// already gone
	assert.NoError(t, storage.Delete(ctx, key))
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "uploads")
	storage, err := New(root)
	require.NoError(t, err)

	assert.NoError(t, storage.Ping(ctx))

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, storage.Ping(ctx))
}

func TestSweep(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	dir := filepath.Join(storage.Root(), "original")
	require.NoError(t, os.MkdirAll(dir, 0755))

	stale := filepath.Join(dir, tempPrefix+"stale")
	fresh := filepath.Join(dir, tempPrefix+"fresh")
	kept := filepath.Join(dir, "keep.webp")
	for _, p := range []string{stale, fresh, kept} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(kept, old, old))

	sw := NewSweeper(storage, time.Hour)
	require.NoError(t, sw.Sweep())

	stats := sw.LastStats()
	assert.Equal(t, 2, stats.FilesScanned)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.Empty(t, stats.Errors)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(kept)
	assert.NoError(t, err)
}
