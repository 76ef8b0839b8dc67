package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Issuer            string `yaml:"issuer"`              // Optional: shown by authenticator apps (default: gatekeep)
	DatabaseFile      string `yaml:"database_file"`       // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile        string `yaml:"pepper_file"`         // Optional: path to file containing pepper for password hashing (default: ./pepper)
	EncryptionKeyFile string `yaml:"encryption_key_file"` // Optional: base64 AES key for TOTP keys and recovery codes

	RedisAddr    string `yaml:"redis_addr"`    // Optional: redis URL or host:port; codes are only logged when unset
	NotifyStream string `yaml:"notify_stream"` // Optional: redis stream for notifications

	BreachCheck    bool    `yaml:"breach_check"`     // Check new passwords against the breach corpus (default: true)
	PwnedURL       string  `yaml:"pwned_url"`        // Optional: range API base URL
	PwnedPerSecond float64 `yaml:"pwned_per_second"` // Outbound range API request rate (default: 10)

	CookieSecure bool   `yaml:"cookie_secure"` // Mark cookies Secure (default: true)
	CookieDomain string `yaml:"cookie_domain"` // Optional

	Env                  string        `yaml:"env"`                   // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        `yaml:"log_level"`             // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        `yaml:"log_format"`            // Log format (json, text) (default: json)
	Port                 int           `yaml:"port"`                  // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"` // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // Housekeeping interval (default: 1h)

	GlobalLimit httpx.RateLimitConfig `yaml:"-"` // Per-IP request budget, RATELIMIT_GLOBAL_* overrides
}

func defaultConfig() Config {
	return Config{
		Issuer:               "gatekeep",
		DatabaseFile:         "auth.db",
		PepperFile:           "pepper",
		BreachCheck:          true,
		PwnedPerSecond:       10,
		CookieSecure:         true,
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: 1 * time.Hour,
		GlobalLimit:          httpx.GlobalLimit,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by AUTH_CONFIG_FILE if any, then environment variables.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.Issuer)
	cfg.DatabaseFile = getEnvOrDefault("AUTH_DATABASE_FILE", cfg.DatabaseFile)
	cfg.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", cfg.PepperFile)
	cfg.EncryptionKeyFile = getEnvOrDefault("AUTH_ENCRYPTION_KEY_FILE", cfg.EncryptionKeyFile)
	cfg.RedisAddr = getEnvOrDefault("AUTH_REDIS_ADDR", cfg.RedisAddr)
	cfg.NotifyStream = getEnvOrDefault("AUTH_NOTIFY_STREAM", cfg.NotifyStream)
	cfg.BreachCheck = getEnvBoolOrDefault("AUTH_BREACH_CHECK", cfg.BreachCheck)
	cfg.PwnedURL = getEnvOrDefault("AUTH_PWNED_URL", cfg.PwnedURL)
	cfg.PwnedPerSecond = getEnvFloatOrDefault("AUTH_PWNED_PER_SECOND", cfg.PwnedPerSecond)
	cfg.CookieSecure = getEnvBoolOrDefault("AUTH_COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieDomain = getEnvOrDefault("AUTH_COOKIE_DOMAIN", cfg.CookieDomain)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)
	cfg.GlobalLimit = httpx.ParseRateLimitFromEnv("GLOBAL", cfg.GlobalLimit)

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
