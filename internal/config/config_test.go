package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://www.clinicaltrialsregister.eu/", cfg.Register.BaseURL)
	require.Equal(t, 10*time.Second, cfg.RequestDelay())
	require.Equal(t, 300*time.Second, cfg.MaxBackoff())
	require.Equal(t, 8, cfg.HTTP.MaxAttempts)
	require.Equal(t, 60*time.Second, cfg.RequestTimeout())
	require.Equal(t, "data", cfg.Output.DataDir)
	require.Equal(t, "logs", cfg.Output.LogsDir)
	require.Empty(t, cfg.Storage.Provider)
	require.Empty(t, cfg.Server.Addr)
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
http:
  request_delay_seconds: 2
  max_backoff_seconds: 30
  max_attempts: 4
storage:
  provider: local
  local_dir: /tmp/exports
server:
  addr: ":9102"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.RequestDelay())
	require.Equal(t, 30*time.Second, cfg.MaxBackoff())
	require.Equal(t, 4, cfg.HTTP.MaxAttempts)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, ":9102", cfg.Server.Addr)
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.HTTP.RequestDelaySeconds = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.HTTP.MaxBackoffSeconds = cfg.HTTP.RequestDelaySeconds - 1
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.HTTP.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Provider = "ftp"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Provider = "gcs"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Provider = "s3"
	cfg.Storage.Bucket = "b"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Provider = "local"
	require.Error(t, cfg.Validate())
}
