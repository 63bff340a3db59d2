package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url      string
		addr     string
		password string
		db       int
	}{
		{"redis://localhost:6379", "localhost:6379", "", 0},
		{"redis://:secret@cache:6380/2", "cache:6380", "secret", 2},
		{"redis://user:pw@host:6379/0", "host:6379", "pw", 0},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c := DefaultConfig()
			c.parseRedisURL(tt.url)
			assert.Equal(t, tt.addr, c.Redis.Addr)
			assert.Equal(t, tt.password, c.Redis.Password)
			assert.Equal(t, tt.db, c.Redis.DB)
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AI_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Server.SSEHeartbeatSeconds)
	assert.Equal(t, 0, cfg.AI.TimeoutSeconds)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "database:\n  driver: postgres\n  dsn: host=db\nai:\n  base_url: https://llm.example/v1\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	t.Setenv("AI_API_KEY", "sk-env")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "https://llm.example/v1", cfg.AI.BaseURL)
	assert.Equal(t, "sk-env", cfg.AI.APIKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	// untouched sections keep their defaults
	assert.Equal(t, 24, cfg.JWT.ExpireHour)
}
