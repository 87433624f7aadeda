package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnistock/internal/config"
	"omnistock/internal/events"
	"omnistock/internal/lock"
	"omnistock/internal/storage"
)

func TestNewWiresLocalDefaults(t *testing.T) {
	cfg := config.Config{
		DBDriver:               "sqlite",
		DBPath:                 filepath.Join(t.TempDir(), "app.db"),
		LogLevel:               "error",
		StockUpdateConcurrency: 2,
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.SQLite{}, a.Store)
	assert.IsType(t, &lock.Memory{}, a.Locker)
	assert.IsType(t, events.Noop{}, a.Publisher)
	require.NoError(t, a.Store.Ping(context.Background()))
	assert.NotNil(t, a.Ingest)
	assert.NotNil(t, a.Listener)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.Config{DBDriver: "oracle"})
	var ude *storage.UnknownDriverError
	require.ErrorAs(t, err, &ude)
}
