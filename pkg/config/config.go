// Package config reads the process configuration from the environment.
// It is read once at startup and passed by value to the components that
// need it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var ErrMissingToken = errors.New("HOME_ASSISTANT_TOKEN environment variable is required")

// HubConnection describes how to reach the Home Assistant hub.
type HubConnection struct {
	BaseURL   string        `env:"HOME_ASSISTANT_URL" envDefault:"http://localhost:8123"`
	Token     string        `env:"HOME_ASSISTANT_TOKEN"`
	VerifyTLS bool          `env:"VERIFY_SSL" envDefault:"true"`
	Timeout   time.Duration `env:"HOME_ASSISTANT_TIMEOUT" envDefault:"10s"`
}

// MarshalZerologObject logs the connection without the token.
func (h HubConnection) MarshalZerologObject(e *zerolog.Event) {
	e.Str("url", h.BaseURL).
		Bool("verify_ssl", h.VerifyTLS).
		Dur("timeout", h.Timeout).
		Bool("token_configured", h.Token != "")
}

// Config represents the complete runtime configuration.
type Config struct {
	Hub      HubConnection
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load parses the configuration from environ. When envFile is not empty
// the dotenv file is read first; variables already present in environ win.
func Load(environ []string, envFile string) (Config, error) {
	vars := env.ToMap(environ)

	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read env file: %w", err)
		}
		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Hub.BaseURL = strings.TrimRight(cfg.Hub.BaseURL, "/")
	return cfg, nil
}

// LoadFromOS is Load over the process environment.
func LoadFromOS(envFile string) (Config, error) {
	return Load(os.Environ(), envFile)
}

// Validate checks the hub connection. A missing token is fatal.
func (h HubConnection) Validate() error {
	if h.Token == "" {
		return ErrMissingToken
	}

	u, err := url.Parse(h.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("HOME_ASSISTANT_URL must be an absolute http(s) URL, got %q", h.BaseURL)
	}

	if h.Timeout <= 0 {
		return fmt.Errorf("HOME_ASSISTANT_TIMEOUT must be positive, got %s", h.Timeout)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
