package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	EnvFile          string
	SessionSecret    string
	PasswordHash     string
	AccessPassword   string
	JobDBPath        string
	StoragePath      string
	StaticDir        string
	GeoIPDBPath      string
	CacheGeneration  string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	WebhookTimeout   time.Duration
	LoginMaxAttempts int
	LoginWindow      time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "3010"),
		EnvFile:          getEnv("ENV_FILE", ".env"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		PasswordHash:     os.Getenv("PASSWORD_HASH"),
		AccessPassword:   os.Getenv("ACCESS_PASSWORD"),
		JobDBPath:        getEnv("JOB_DB_PATH", "./data/jobs.db"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StaticDir:        getEnv("STATIC_DIR", "./web"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		CacheGeneration:  getEnv("CACHE_GENERATION", "ai-media-gen-v1"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		WebhookTimeout:   time.Second * time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 300)),
		LoginMaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:      time.Minute * time.Duration(getEnvInt("LOGIN_WINDOW_MINUTES", 15)),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

// Production reports whether the server runs with production hardening (secure cookies).
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
