package config

import (
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmercier/keepsake/pkg/storage"
)

func testSaltEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEEPSAKE_SALT", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef")))
}

func TestLoadConfig_Defaults(t *testing.T) {
	testSaltEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "auth_login", cfg.Auth.CookieName)
	assert.Equal(t, "username", cfg.Auth.Field)
	assert.Equal(t, 72*time.Hour, cfg.Auth.Lifetime)
	assert.Equal(t, "sha256", cfg.Auth.Algorithm)
	assert.Equal(t, storage.TypeMemory, cfg.Storage.Type)
	assert.True(t, cfg.Auth.SlideWindow)
}

func TestLoadConfig_MissingSalt(t *testing.T) {
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salt is required")
}

func TestLoadConfig_BadSalt(t *testing.T) {
	t.Setenv("KEEPSAKE_SALT", "not base64!!!")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_UnsupportedAlgorithm(t *testing.T) {
	testSaltEnv(t)
	t.Setenv("KEEPSAKE_ALGORITHM", "md5")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported HMAC algorithm")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	testSaltEnv(t)
	t.Setenv("KEEPSAKE_PORT", "9999")
	t.Setenv("KEEPSAKE_STORAGE_TYPE", "sqlite")
	t.Setenv("KEEPSAKE_SQLITE_PATH", "/tmp/sessions.db")
	t.Setenv("KEEPSAKE_SESSION_LIFETIME", "24h")
	t.Setenv("KEEPSAKE_COOKIE_SAMESITE", "strict")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, storage.TypeSQLite, cfg.Storage.Type)
	assert.Equal(t, 24*time.Hour, cfg.Auth.Lifetime)
	assert.Equal(t, http.SameSiteStrictMode, cfg.AuthOptions().SameSite)
}

func TestLoadConfig_StorageValidation(t *testing.T) {
	testSaltEnv(t)
	t.Setenv("KEEPSAKE_STORAGE_TYPE", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres storage requires")
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	testSaltEnv(t)

	path := filepath.Join(t.TempDir(), "keepsake.yaml")
	content := `
server:
  port: "7070"
auth:
  field: email
  lifetime: 48h
storage:
  type: sqlite
  sqlite_path: /var/lib/keepsake/sessions.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("KEEPSAKE_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "email", cfg.Auth.Field)
	assert.Equal(t, 48*time.Hour, cfg.Auth.Lifetime)
	assert.Equal(t, "/var/lib/keepsake/sessions.db", cfg.Storage.SQLitePath)

	// Environment still wins over the file.
	t.Setenv("KEEPSAKE_PORT", "6060")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "6060", cfg.Server.Port)
}

func TestSaltBytes(t *testing.T) {
	testSaltEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	salt, err := cfg.SaltBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), salt)
}
