// Package config loads engine configuration from a YAML file with
// environment overrides. A .env file, when present, is folded into the
// environment first.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DataDir     string `yaml:"dataDir"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	Directions struct {
		BaseURL    string `yaml:"baseUrl"`
		APIKey     string `yaml:"apiKey"`
		TimeoutSec int    `yaml:"timeoutSec"`
	} `yaml:"directions"`

	Cities struct {
		BaseURL string `yaml:"baseUrl"`
	} `yaml:"cities"`

	// Anchor used when the start location cannot be resolved.
	DefaultStart struct {
		Address string  `yaml:"address"`
		Lat     float64 `yaml:"lat"`
		Lng     float64 `yaml:"lng"`
	} `yaml:"defaultStart"`
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Port = "8080"
	cfg.LogLevel = "info"
	cfg.DataDir = "data/fieldroute"
	cfg.Directions.TimeoutSec = 15

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	override(&cfg.Port, "PORT")
	override(&cfg.LogLevel, "LOG_LEVEL")
	override(&cfg.DataDir, "DATA_DIR")
	override(&cfg.DatabaseURL, "DATABASE_URL")
	override(&cfg.RedisURL, "REDIS_URL")
	override(&cfg.Directions.BaseURL, "DIRECTIONS_URL")
	override(&cfg.Directions.APIKey, "DIRECTIONS_API_KEY")
	override(&cfg.Cities.BaseURL, "CITIES_URL")
	override(&cfg.DefaultStart.Address, "DEFAULT_START_ADDRESS")

	return cfg, nil
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
