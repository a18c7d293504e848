package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRead_DefaultsAndRequiredSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	t.Setenv("SESSION_SECRET", "s3cret")
	c, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "qid", c.CookieName)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, "5432", c.DBPort)
	assert.Equal(t, "http://localhost:3000", c.FrontendURL)
	assert.Equal(t, []string{"http://localhost:3000"}, c.AllowedOrigins)
	assert.False(t, c.IsProd())
}

func TestRead_JSONThenEnvironment(t *testing.T) {
	p := writeJSON(t, `{
		"app": {"SessionSecret": "from-file", "AppPort": "9000", "AppEnv": "production"},
		"database": {"Driver": "mysql"},
		"redis": {"Port": 6380},
		"log": {"Compress": true}
	}`)
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("APP_PORT", "9100")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	c, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.SessionSecret)
	assert.Equal(t, "9100", c.AppPort)
	assert.Equal(t, "3306", c.DBPort)
	assert.Equal(t, "root", c.DBUser)
	assert.Equal(t, 6380, c.RedisPort)
	assert.True(t, c.LogCompress)
	assert.True(t, c.IsProd())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
}

func TestRead_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("SESSION_SECRET", "x")
	t.Setenv("DB_DRIVER", "sqlite")
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestRead_InvalidJSON(t *testing.T) {
	p := writeJSON(t, `{"app": `)
	_, err := Read(p)
	require.Error(t, err)
}
