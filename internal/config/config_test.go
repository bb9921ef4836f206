package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: dev
port: 9090
secret: s3cret
authz:
  cache_ttl: 2s
identity:
  backend: cookie
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Authz.CacheTTL)
	assert.Equal(t, 4096, cfg.Authz.CacheSize)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 8*time.Second, cfg.Typing.TTL)
	assert.Equal(t, "session_token", cfg.Identity.CookieName)
	assert.Equal(t, 16, cfg.DiagramDropBudget)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "secret: s3cret\n")
	t.Setenv("PRESENCE_PORT", "7070")
	t.Setenv("PRESENCE_CHAT_RATE_LIMIT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 3, cfg.Chat.RateLimit)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Config{
		Port:       0,
		ReadLimit:  1,
		SendBuffer: 0,
		PingPeriod: time.Minute,
		PongWait:   time.Second,
		WriteWait:  time.Second,
		Identity:   IdentityConfig{Backend: "ldap"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}
