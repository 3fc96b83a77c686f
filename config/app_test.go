package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(15), cfg.Upload.MaxFileSizeMB)
	assert.Equal(t, int64(15*1024*1024), cfg.MaxFileSize())
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "layout", cfg.Extraction.TableFinder)
}

func TestLoadAppConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  addr: ":9000"
  shutdownTimeout: 10s
upload:
  maxFileSizeMB: 20
storage:
  backend: minio
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("UPLOAD_MAX_SIZE_MB", "5")
	t.Setenv("DATABASE_URL", "postgres://localhost/docs")

	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(5), cfg.Upload.MaxFileSizeMB)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/docs", cfg.Database.URL)
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	_, err := LoadAppConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultAppConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY")

	cfg.Database.URL = "postgres://localhost/docs"
	cfg.Auth.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "ftp"
	cfg.Extraction.TableFinder = "ocr"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp")
	assert.Contains(t, err.Error(), "ocr")
}
