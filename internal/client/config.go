package client

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from the environment only.
type Config struct {
	BaseURL   string        `env:"STOREFRONT_API_URL" env-default:"http://localhost:3001/api" env-description:"base API origin including the /api prefix"`
	Timeout   time.Duration `env:"STOREFRONT_API_TIMEOUT" env-default:"15s" env-description:"per-request timeout"`
	AuthToken string        `env:"STOREFRONT_API_TOKEN" env-description:"optional bearer token"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("client config: %w", err)
	}
	return cfg, nil
}

// Usage renders the environment variables understood by LoadConfig.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
