package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	c, err := Load("", env(map[string]string{
		"PORT":               "8080",
		"UPLOAD_DIR":         "/srv/up",
		"PHOTO_ROOT":         "/srv/photos",
		"SESSION_SECRET":     "s",
		"DEFAULT_FOLDERS":    "a, b ,,c",
		"RATE_LIMIT_LOCKOUT": "30m",
		"TRUST_PROXY":        "true",
		"BCRYPT_COST":        "12",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "/srv/photos", c.Root, "PHOTO_ROOT wins over UPLOAD_DIR")
	assert.Equal(t, []string{"a", "b", "c"}, c.DefaultFolders)
	assert.Equal(t, 30*time.Minute, c.RateLimit.Lockout.Std())
	assert.Equal(t, 5*time.Minute, c.RateLimit.Window.Std())
	assert.True(t, c.TrustProxy)
	assert.Equal(t, 12, c.BcryptCost)
	require.NoError(t, c.Validate())
}

func TestLoad_BadEnv(t *testing.T) {
	_, err := Load("", env(map[string]string{"MAX_FILE_SIZE": "huge", "SESSION_MAX_AGE": "forever"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_FILE_SIZE")
	assert.Contains(t, err.Error(), "SESSION_MAX_AGE")
}

func TestLoadFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	y := filepath.Join(dir, "photoframe.yaml")
	require.NoError(t, os.WriteFile(y, []byte(`
addr: "127.0.0.1:9000"
root: /photos
session_secret: from-file
rate_limit:
  max_attempts: 3
  window: 2m
log:
  level: debug
  json: true
`), 0o600))

	c, err := Load(y, env(map[string]string{"SESSION_SECRET": "from-env"}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", c.Addr)
	assert.Equal(t, 3, c.RateLimit.MaxAttempts)
	assert.Equal(t, 2*time.Minute, c.RateLimit.Window.Std())
	assert.Equal(t, 15*time.Minute, c.RateLimit.Lockout.Std(), "untouched default")
	assert.Equal(t, "from-env", c.SessionSecret, "env overrides file")
	assert.True(t, c.Log.JSON)

	j := filepath.Join(dir, "photoframe.json")
	require.NoError(t, os.WriteFile(j, []byte(`{"root":"/j","sessionMaxAge":"1h"}`), 0o600))
	c, err = Load(j, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "/j", c.Root)
	assert.Equal(t, time.Hour, c.SessionMaxAge.Std())

	bad := filepath.Join(dir, "photoframe.toml")
	require.NoError(t, os.WriteFile(bad, []byte(""), 0o600))
	_, err = Load(bad, env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	assert.Error(t, c.Validate(), "session secret is required")

	c.SessionSecret = "s"
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultAdminPassword, c.AdminPassword)
	assert.True(t, c.AdminPasswordDefaulted)

	c = Default()
	c.SessionSecret = "s"
	c.AdminPassword = "pw"
	require.NoError(t, c.Validate())
	assert.False(t, c.AdminPasswordDefaulted)

	c.BcryptCost = 99
	assert.Error(t, c.Validate())

	c = Default()
	c.SessionSecret = "s"
	c.RateLimit.MaxAttempts = 0
	assert.Error(t, c.Validate())
}
