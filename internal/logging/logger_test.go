package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}

func TestNewRunLogger_WritesRunFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runStart := time.Date(2021, 3, 3, 9, 15, 30, 0, time.UTC)

	logger, path, closeFn, err := NewRunLogger(false, dir, runStart)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "2021-03-03-09-15-30-run.log"), path)

	logger.Info("harvest started", zap.String("day", "2021-03-01"))
	// Sync on a stderr-backed core can fail on some platforms; only the
	// file close matters here.
	_ = logger.Sync()
	require.NoError(t, closeFn())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(content), "harvest started"))
	require.True(t, strings.Contains(string(content), `"day":"2021-03-01"`))
}

func TestNewRunLogger_NoDirDisablesFile(t *testing.T) {
	t.Parallel()

	logger, path, closeFn, err := NewRunLogger(false, "", time.Now())
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.Empty(t, path)
	require.NoError(t, closeFn())
}
