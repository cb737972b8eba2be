package main

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itchan-dev/imagehost/internal/config"
)

// executeCommand is a helper to run a cobra command and capture its output
func executeCommand(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSizesCmd(t *testing.T) {
	t.Run("built-in table without config", func(t *testing.T) {
		out, err := executeCommand("sizes", "--config_folder", t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "/api/images/download/{id}/thumbnail")
		assert.Contains(t, out, "1024")
	})

	t.Run("configured table", func(t *testing.T) {
		dir := t.TempDir()
		public := "sizes:\n  - {name: Hero, width: 1920}\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "public.yaml"), []byte(public), 0o600))

		out, err := executeCommand("sizes", "--config_folder", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "Hero")
		assert.Contains(t, out, "/api/images/download/{id}/hero")
		assert.NotContains(t, out, "thumbnail")
	})
}

func TestInspectCmd(t *testing.T) {
	t.Run("prints metadata document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shot.jpg")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, jpeg.Encode(f, image.NewGray(image.Rect(0, 0, 30, 20)), nil))
		require.NoError(t, f.Close())

		out, err := executeCommand("inspect", path)
		require.NoError(t, err)
		assert.Contains(t, out, `"Image Width": "30 pixels"`)
		assert.Contains(t, out, `"File Name": "shot.jpg"`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := executeCommand("inspect", filepath.Join(t.TempDir(), "none.jpg"))
		assert.Error(t, err)
	})
}

func TestServeCmdBadConfig(t *testing.T) {
	_, err := executeCommand("serve", "--config_folder", t.TempDir())
	assert.ErrorContains(t, err, "read config file")
}

func TestServeShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Public.HTTP.Addr = "127.0.0.1:0"
	cfg.Public.Storage.Root = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, &cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
