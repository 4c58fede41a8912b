package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Onboarding.CompletionDelay.Std())
	assert.Equal(t, "@every 2m", cfg.Onboarding.SweepSpec)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadConfigFileThenEnvOverride(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 9090},
		"auth": {"jwt_secret": "from-file", "token_ttl": "1h"},
		"onboarding": {"completion_delay": "3s", "portal_url": "/dashboard"}
	}`)
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ONBOARDING_DATA_TTL", "45s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL.Std())
	assert.Equal(t, 3*time.Second, cfg.Onboarding.CompletionDelay.Std())
	assert.Equal(t, 45*time.Second, cfg.Onboarding.DataTTL.Std())
	assert.Equal(t, "/dashboard", cfg.Onboarding.PortalURL)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "jwt_secret")
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "x")
		t.Setenv("SERVER_PORT", "eighty")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "SERVER_PORT")
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `{"server":`))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("unknown email provider", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "x")
		t.Setenv("EMAIL_PROVIDER", "pigeon")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "pigeon")
	})
}

func TestGetDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", db.GetDatabaseURL())
}
