package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig configures the session client used by challengectl.
type ClientConfig struct {
	BaseURL     string        `env:"CHALLENGE_API_URL"      envDefault:"http://localhost:8080"`
	HTTPTimeout time.Duration `env:"CHALLENGE_HTTP_TIMEOUT" envDefault:"15s"`
	CookieFile  string        `env:"CHALLENGE_COOKIE_FILE"  envDefault:""`
}

// LoadClientConfig reads ClientConfig from the environment.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	return cfg, nil
}
