package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL    string
	RedisAddr      string
	HTTPListenAddr string
	// PublicBaseURL is the externally reachable URL of the gateway, used to
	// build the OIDC redirect URI round-tripped through the identity provider.
	PublicBaseURL string
	// SecretKey encrypts container credentials and provider client secrets at
	// rest. Base64 of 32 random bytes in the SECRET_KEY env var.
	SecretKey []byte
	// UIDRangeStart/UIDRangeEnd bound the arena of sandbox UIDs handed to
	// backend containers.
	UIDRangeStart int
	UIDRangeEnd   int
	ServiceName   string
	LogLevel      string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8070"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8070"),
		ServiceName:    getEnv("SERVICE_NAME", "llmgate"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	cfg.UIDRangeStart, err = getEnvInt("UID_RANGE_START", 20000)
	if err != nil {
		return nil, err
	}
	cfg.UIDRangeEnd, err = getEnvInt("UID_RANGE_END", 20999)
	if err != nil {
		return nil, err
	}

	if raw := os.Getenv("SECRET_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode SECRET_KEY: %w", err)
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}

// Validate checks that the config is complete for the named component.
func (c *Config) Validate(component string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s: DATABASE_URL is required", component)
	}
	if len(c.SecretKey) != 32 {
		return fmt.Errorf("%s: SECRET_KEY must be base64 of 32 bytes", component)
	}
	if c.UIDRangeStart <= 0 || c.UIDRangeEnd < c.UIDRangeStart {
		return fmt.Errorf("%s: invalid UID range [%d, %d]", component, c.UIDRangeStart, c.UIDRangeEnd)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
