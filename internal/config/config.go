package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the location of the optional YAML config file.
const PathEnvVar = "CONFIG_PATH"

const defaultPath = "config.yaml"

type Config struct {
	AppPort   string `koanf:"app_port" validate:"required,numeric"`
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error disabled"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`

	GoogleClientID     string `koanf:"google_client_id"`
	GoogleClientSecret string `koanf:"google_client_secret"`
	GoogleRedirectURL  string `koanf:"google_redirect_url"`

	KeycloakIssuer        string `koanf:"keycloak_issuer"`
	KeycloakClientID      string `koanf:"keycloak_client_id"`
	KeycloakRedirectURL   string `koanf:"keycloak_redirect_url"`
	KeycloakPublicBaseURL string `koanf:"keycloak_public_base_url"`

	RedisAddr     string `koanf:"redis_addr" validate:"required"`
	RedisPassword string `koanf:"redis_password"`

	DatabaseDSN string `koanf:"database_dsn" validate:"required"`

	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIBaseURL string `koanf:"openai_base_url"`
	OpenAIModel   string `koanf:"openai_model" validate:"required"`

	CacheBackend string `koanf:"cache_backend" validate:"oneof=redis badger memory"`
	BadgerPath   string `koanf:"badger_path" validate:"required_if=CacheBackend badger"`

	AuthInitTimeout time.Duration `koanf:"auth_init_timeout" validate:"gt=0"`
	SessionTTL      time.Duration `koanf:"session_ttl" validate:"gt=0"`
	// SessionSweepInterval is how often auth contexts of vanished sessions
	// are dropped.
	SessionSweepInterval time.Duration `koanf:"session_sweep_interval" validate:"gt=0"`
	RecommendationCount  int           `koanf:"recommendation_count" validate:"min=1,max=50"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	EventRelay bool `koanf:"event_relay"`
}

// GoogleEnabled reports whether all Google OAuth settings are present.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// KeycloakEnabled reports whether all Keycloak settings are present.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != "" && c.KeycloakClientID != "" &&
		c.KeycloakRedirectURL != "" && c.KeycloakPublicBaseURL != ""
}

func defaults() Config {
	return Config{
		AppPort:              "8080",
		LogLevel:             "info",
		LogFormat:            "json",
		RedisAddr:            "localhost:6379",
		OpenAIModel:          "gpt-4o-mini",
		CacheBackend:         "redis",
		BadgerPath:           "./data/reccache",
		AuthInitTimeout:      5 * time.Second,
		SessionTTL:           24 * time.Hour,
		SessionSweepInterval: 5 * time.Minute,
		RecommendationCount:  10,
		RateLimitRequests:    100,
		RateLimitWindow:      time.Minute,
	}
}

// sliceKeys are parsed from comma-separated strings when they come from env.
var sliceKeys = []string{"cors_origins"}

// Load layers defaults, the optional YAML file and environment variables,
// in increasing priority, and validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	if err := splitSlices(k); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}
	return ""
}

func splitSlices(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return nil
}
