package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "DICELEDGER"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "postgres"
	defaultDatabasePath   = "diceledger.db"
	defaultLogLevel       = "info"
	defaultRequestTimeout = 5 * time.Second
	defaultRetryBackoff   = 200 * time.Millisecond
)

// DotenvFiles are loaded in order when present; earlier files win.
var DotenvFiles = []string{".env.local", ".env"}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabaseDriver string
	DatabaseURL    string
	DatabasePath   string
	LogLevel       string
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()
	_ = configViper.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("rolls.request_timeout", defaultRequestTimeout)
	configViper.SetDefault("rolls.retry_backoff", defaultRetryBackoff)
}

// LoadDotenv loads the given env files into the process environment,
// skipping files that do not exist. Variables already set are preserved.
func LoadDotenv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseURL:    strings.TrimSpace(configViper.GetString("database.url")),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:       configViper.GetString("log.level"),
		RequestTimeout: configViper.GetDuration("rolls.request_timeout"),
		RetryBackoff:   configViper.GetDuration("rolls.retry_backoff"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database.url (DATABASE_URL) is required for the postgres driver")
		}
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("rolls.request_timeout must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("rolls.retry_backoff must not be negative")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("http.allowed_origins is required")
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
