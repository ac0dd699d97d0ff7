// Package config loads the service configuration from the environment and an
// optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
)

const DefaultEnvFile = ".env"

// Config is the full service configuration.
type Config struct {
	APIKey             string        `env:"API_KEY,required,notEmpty"`
	TimeZone           string        `env:"TIMEZONE,required,notEmpty"`
	ListenAddress      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	DataFile           string        `env:"DATA_FILE" envDefault:"data/data.json"`
	LockTimeout        time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	CorsAllowOrigin    string        `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
	RejectReplays      bool          `env:"REJECT_REPLAYS" envDefault:"false"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads envFile (if it exists) without overriding variables already set,
// then parses and validates the environment. Any failure is a CodeConfig error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if dotenvError := godotenv.Load(envFile); dotenvError != nil && !errors.Is(dotenvError, fs.ErrNotExist) {
			return Config{}, apperr.Wrap(apperr.CodeConfig, "load "+envFile, dotenvError)
		}
	}

	var serviceConfig Config
	if parseError := env.Parse(&serviceConfig); parseError != nil {
		return Config{}, apperr.Wrap(apperr.CodeConfig, "parse env", parseError)
	}
	if validateError := serviceConfig.validate(); validateError != nil {
		return Config{}, apperr.Wrap(apperr.CodeConfig, "invalid config", validateError)
	}
	return serviceConfig, nil
}

func (serviceConfig *Config) validate() error {
	serviceConfig.APIKey = strings.TrimSpace(serviceConfig.APIKey)
	if serviceConfig.APIKey == "" {
		return fmt.Errorf("API_KEY is blank")
	}

	serviceConfig.TimeZone = strings.TrimSpace(serviceConfig.TimeZone)
	if serviceConfig.TimeZone == "" {
		return fmt.Errorf("TIMEZONE is blank")
	}
	if _, locationError := time.LoadLocation(serviceConfig.TimeZone); locationError != nil {
		return fmt.Errorf("bad TIMEZONE %q: %w", serviceConfig.TimeZone, locationError)
	}

	if serviceConfig.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", serviceConfig.LockTimeout)
	}
	if serviceConfig.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", serviceConfig.RateLimitPerMinute)
	}
	if strings.TrimSpace(serviceConfig.DataFile) == "" {
		return fmt.Errorf("DATA_FILE is blank")
	}
	switch serviceConfig.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", serviceConfig.LogFormat)
	}
	return nil
}

// Location returns the configured time zone. Load has already validated it.
func (serviceConfig Config) Location() *time.Location {
	location, locationError := time.LoadLocation(serviceConfig.TimeZone)
	if locationError != nil {
		return time.UTC
	}
	return location
}
