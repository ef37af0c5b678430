package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOOKMARKS_JWT_SECRET", "a-very-long-test-secret")
	t.Setenv("BOOKMARKS_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("BOOKMARKS_GOOGLE_CLIENT_SECRET", "client-secret")
}

func TestLoadServer_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	setRequired(t)

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "bookmarks.db", cfg.DBPath)
	assert.Equal(t, 168*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "https://accounts.google.com", cfg.GoogleIssuer)
	assert.Equal(t, "http://localhost:8080/auth/v1/callback", cfg.CallbackURL())
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadServer_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("BOOKMARKS_PORT", "9090")
	t.Setenv("BOOKMARKS_PUBLIC_URL", "https://marks.example.com/")
	t.Setenv("BOOKMARKS_DB_DRIVER", "postgres")
	t.Setenv("BOOKMARKS_DATABASE_URL", "postgres://u:p@localhost/marks")
	t.Setenv("BOOKMARKS_SESSION_TTL", "2h")
	t.Setenv("BOOKMARKS_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "https://marks.example.com/auth/v1/callback", cfg.CallbackURL())
}

func TestLoadServer_MissingRequired(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOOKMARKS_JWT_SECRET", "")
	t.Setenv("BOOKMARKS_GOOGLE_CLIENT_ID", "")
	t.Setenv("BOOKMARKS_GOOGLE_CLIENT_SECRET", "")

	_, err := LoadServer()
	assert.Error(t, err)
}

func TestServerValidate(t *testing.T) {
	base := Server{
		DBDriver:      "sqlite",
		DBPath:        "x.db",
		JWTSecret:     "a-very-long-test-secret",
		SessionTTL:    time.Hour,
		SweepInterval: time.Minute,
	}
	require.NoError(t, base.Validate())

	tests := map[string]func(c *Server){
		"unknown driver":    func(c *Server) { c.DBDriver = "mysql" },
		"postgres no url":   func(c *Server) { c.DBDriver = "postgres" },
		"sqlite no path":    func(c *Server) { c.DBPath = "" },
		"short secret":      func(c *Server) { c.JWTSecret = "short" },
		"zero ttl":          func(c *Server) { c.SessionTTL = 0 },
		"zero sweep period": func(c *Server) { c.SweepInterval = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadCLI(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOOKMARKS_SERVER_URL", "http://127.0.0.1:9999")
	t.Setenv("BOOKMARKS_SESSION_FILE", "/tmp/s.yaml")
	t.Setenv("BOOKMARKS_LOG_FILE", "/tmp/b.log")

	cfg, err := LoadCLI()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.ServerURL)
	assert.Equal(t, "/tmp/s.yaml", cfg.SessionFile)
	assert.Equal(t, "/tmp/b.log", cfg.LogFile)
	assert.Equal(t, "info", cfg.LogLevel)
}
