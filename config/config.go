package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration, loaded from .env and the environment.
type Config struct {
	Port           string
	Environment    string
	DatabaseURL    string
	GatewayToken   string
	AllowedOrigins []string

	LogLevel      string
	LogFormat     string
	SlowQueryTime time.Duration

	UnlockBaseXP               int64
	LeaderboardSize            int
	LeaderboardRefreshInterval time.Duration

	R2 R2Config

	IdentitySyncURL      string
	IdentitySyncPath     string
	IdentitySyncInterval time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	PublicBaseURL   string
}

// Enabled reports whether badge uploads can be served.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:                       getenv("PORT", "5200"),
		Environment:                getenv("ENVIRONMENT", "development"),
		DatabaseURL:                strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GatewayToken:               strings.TrimSpace(os.Getenv("GAME_SERVICE_TOKEN")),
		AllowedOrigins:             splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:                   getenv("LOG_LEVEL", "info"),
		LogFormat:                  getenv("LOG_FORMAT", "json"),
		SlowQueryTime:              time.Duration(getenvInt64("DB_SLOW_QUERY_MS", 200)) * time.Millisecond,
		UnlockBaseXP:               getenvInt64("UNLOCK_BASE_XP", 100),
		LeaderboardSize:            int(getenvInt64("LEADERBOARD_SIZE", 10)),
		LeaderboardRefreshInterval: getenvDuration("LEADERBOARD_REFRESH_INTERVAL", time.Minute),
		R2: R2Config{
			AccountID:       strings.TrimSpace(os.Getenv("CLOUDFLARE_ACCOUNT_ID")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_ID")),
			AccessKeySecret: strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_SECRET")),
			Bucket:          strings.TrimSpace(os.Getenv("R2_BUCKET_NAME")),
			PublicBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("CDN_BASE_URL")), "/"),
		},
		IdentitySyncURL:      strings.TrimSpace(os.Getenv("IDENTITY_SYNC_URL")),
		IdentitySyncPath:     getenv("IDENTITY_SYNC_PATH", "/api/v1/public/profiles"),
		IdentitySyncInterval: getenvDuration("IDENTITY_SYNC_INTERVAL", time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL environment variable not set")
	}
	if cfg.GatewayToken == "" {
		return cfg, errors.New("GAME_SERVICE_TOKEN environment variable not set")
	}
	if cfg.UnlockBaseXP < 0 {
		return cfg, errors.New("UNLOCK_BASE_XP must not be negative")
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 10
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
