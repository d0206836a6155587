package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration values.
type Config struct {
	Environment        string
	HTTPPort           string
	DatabaseURL        string
	RedisURL           string
	ServiceName        string
	RateLimitRPM       int
	TelemetryEndpoint  string
	TelemetryInsecure  bool
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string

	// Hosted identity provider (credential verification, sessions, emails).
	IdentityBaseURL   string
	IdentityAPIKey    string
	IdentityJWTSecret string
	IdentityTimeout   time.Duration

	// Where the provider redirects browsers after email confirmation,
	// OAuth consent, and password recovery.
	AppBaseURL string

	// Account lockout policy applied around password sign-in.
	LockoutMaxAttempts int

	OAuthStateTTL time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           getEnv("REDIS_URL", "localhost:6379"),
		ServiceName:        getEnv("SERVICE_NAME", "gideon-auth"),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods: getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders: getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		IdentityBaseURL:    os.Getenv("IDENTITY_BASE_URL"),
		IdentityAPIKey:     os.Getenv("IDENTITY_API_KEY"),
		IdentityJWTSecret:  os.Getenv("IDENTITY_JWT_SECRET"),
		IdentityTimeout:    getDuration("IDENTITY_TIMEOUT", 10*time.Second),
		AppBaseURL:         getEnv("APP_BASE_URL", "http://localhost:3000"),
		LockoutMaxAttempts: getInt("LOCKOUT_MAX_ATTEMPTS", 5),
		OAuthStateTTL:      getDuration("OAUTH_STATE_TTL", 5*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IdentityBaseURL == "" {
		return Config{}, fmt.Errorf("IDENTITY_BASE_URL is required")
	}
	if cfg.IdentityAPIKey == "" {
		return Config{}, fmt.Errorf("IDENTITY_API_KEY is required")
	}

	if cfg.LockoutMaxAttempts < 1 {
		cfg.LockoutMaxAttempts = 5
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
