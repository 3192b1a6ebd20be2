package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, path, backend string) {
	t.Helper()
	data := "model_path: model.onnx\nlabels_path: labels.txt\nbackend: " + backend + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func TestReadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "cuda")

	cfg, err := readBackend(path)
	require.NoError(t, err)
	assert.Equal(t, providers.CUDAProviderBackend, cfg.Backend.Backend)

	writeConfig(t, path, "abacus")
	_, err = readBackend(path)
	assert.Error(t, err)

	_, err = readBackend(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchConfig_ReportsBackendChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "cpu")

	changes := make(chan detector.Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchConfig(ctx, path, zaptest.NewLogger(t), func(cfg detector.Config) {
			changes <- cfg
		})
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "openvino")

	select {
	case cfg := <-changes:
		assert.Equal(t, providers.OpenVINOProviderBackend, cfg.Backend.Backend)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
