// Package config loads runtime settings from the environment.
//
// Values come from BOOKMARKS_* environment variables; a .env file in the
// working directory, if present, is loaded first and overrides them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix for every setting.
const Prefix = "bookmarks"

// Server configures the Backend Service (cmd/server).
type Server struct {
	Port      int    `envconfig:"PORT" default:"8080"`
	PublicURL string `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath      string `envconfig:"DB_PATH" default:"bookmarks.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	JWTSecret          string        `envconfig:"JWT_SECRET" required:"true"`
	GoogleClientID     string        `envconfig:"GOOGLE_CLIENT_ID" required:"true"`
	GoogleClientSecret string        `envconfig:"GOOGLE_CLIENT_SECRET" required:"true"`
	GoogleIssuer       string        `envconfig:"GOOGLE_ISSUER" default:"https://accounts.google.com"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	SweepInterval      time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	CookieSecure       bool          `envconfig:"COOKIE_SECURE" default:"false"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// CallbackURL is the OAuth redirect URI registered with Google.
func (c *Server) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/auth/v1/callback"
}

// Validate checks combinations envconfig cannot express.
func (c *Server) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("config: BOOKMARKS_DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: BOOKMARKS_DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown BOOKMARKS_DB_DRIVER %q (want sqlite or postgres)", c.DBDriver)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("config: BOOKMARKS_JWT_SECRET must be at least 16 characters")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: BOOKMARKS_SESSION_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("config: BOOKMARKS_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// CLI configures the terminal client (cmd/bookmarks).
type CLI struct {
	ServerURL   string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	SessionFile string `envconfig:"SESSION_FILE"`
	LogFile     string `envconfig:"LOG_FILE"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadServer loads the server configuration using environment variables and
// an optional .env file.
func LoadServer() (*Server, error) {
	_ = godotenv.Overload()

	cfg := new(Server)
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCLI loads the client configuration. Unset file locations default to
// the user's config directory.
func LoadCLI() (*CLI, error) {
	_ = godotenv.Overload()

	cfg := new(CLI)
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.SessionFile == "" || cfg.LogFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: locating config directory: %w", err)
		}
		dir = filepath.Join(dir, "smart-bookmarks")
		if cfg.SessionFile == "" {
			cfg.SessionFile = filepath.Join(dir, "session.yaml")
		}
		if cfg.LogFile == "" {
			cfg.LogFile = filepath.Join(dir, "bookmarks.log")
		}
	}
	return cfg, nil
}
