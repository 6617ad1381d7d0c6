package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "localhost:50061", *grpcListen)
	assert.Equal(t, "physiotrack.db", *dbPath)
	assert.Empty(t, *backend)
	assert.False(t, *traceLog)
}

func TestNewApp_Simulated(t *testing.T) {
	cfg := config.DefaultTuningConfig()
	sim := config.BackendSimulated
	cfg.Backend = &sim

	a, err := newApp(appOptions{cfg: cfg})
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.handle)
	_, ok := a.analyzer.(*pipeline.Simulated)
	assert.True(t, ok)
	require.NoError(t, a.initialize(context.Background()))

	w := httptest.NewRecorder()
	a.server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/model", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewApp_BiLSTMPersistsFreshModel(t *testing.T) {
	cfg := config.DefaultTuningConfig()
	key := "cmd-test-" + t.Name()
	cfg.ModelKey = &key
	path := filepath.Join(t.TempDir(), "physiotrack.db")

	a, err := newApp(appOptions{cfg: cfg, dbPath: path})
	require.NoError(t, err)
	require.NoError(t, a.initialize(context.Background()))

	info := a.handle.Info()
	assert.True(t, info.Ready)
	assert.True(t, info.Fresh)
	assert.Equal(t, 130254, info.ParamCount)

	w := httptest.NewRecorder()
	a.server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/training/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	a.close()

	// a second process loads the persisted weights instead of a fresh model
	b, err := newApp(appOptions{cfg: cfg, dbPath: path})
	require.NoError(t, err)
	defer b.close()
	require.NoError(t, b.initialize(context.Background()))
	assert.False(t, b.handle.Info().Fresh)
}
