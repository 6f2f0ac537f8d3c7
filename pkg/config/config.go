package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the settings every binary in the module needs.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"storefront"`
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (Config, error) {
	var cfg Config
	if err := Process(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Process fills any envconfig tagged struct from the environment.
func Process(spec any) error {
	if err := envconfig.Process("", spec); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}
