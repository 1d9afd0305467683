package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	HTTPAddr      string
	SessionSecret string

	AllowedOrigins []string

	RateLimitPerMinute int

	// Object storage for uploaded source specification documents.
	OSSProvider           string // "aliyun" | "local" | ""
	OSSEndpoint           string
	OSSRegion             string
	OSSBucket             string
	OSSBasePrefix         string
	OSSAccessKeyID        string
	OSSAccessKeySecret    string
	OSSSTSRoleARN         string
	OSSSTSDurationSeconds int
	OSSLocalDir           string
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	rateLimit := getenvIntDefault("ACTIONCHAT_RATE_LIMIT_PER_MINUTE", 240)
	if rateLimit < 10 {
		rateLimit = 10
	}

	stsDuration := getenvIntDefault("ACTIONCHAT_OSS_STS_DURATION_SECONDS", 900) // 15 minutes
	if stsDuration < 60 {
		stsDuration = 60
	}
	if stsDuration > 3600 {
		stsDuration = 3600
	}

	cfg := Config{
		DatabaseURL:   os.Getenv("ACTIONCHAT_DATABASE_URL"),
		HTTPAddr:      getenvDefault("ACTIONCHAT_HTTP_ADDR", ":8080"),
		SessionSecret: os.Getenv("ACTIONCHAT_SESSION_SECRET"),

		AllowedOrigins: getenvCSV("ACTIONCHAT_ALLOWED_ORIGINS"),

		RateLimitPerMinute: rateLimit,

		OSSProvider:           strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_PROVIDER")),
		OSSEndpoint:           strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_ENDPOINT")),
		OSSRegion:             strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_REGION")),
		OSSBucket:             strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_BUCKET")),
		OSSBasePrefix:         strings.Trim(strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_BASE_PREFIX")), "/"),
		OSSAccessKeyID:        strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_ACCESS_KEY_ID")),
		OSSAccessKeySecret:    strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_ACCESS_KEY_SECRET")),
		OSSSTSRoleARN:         strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_STS_ROLE_ARN")),
		OSSSTSDurationSeconds: stsDuration,
		OSSLocalDir:           strings.TrimSpace(os.Getenv("ACTIONCHAT_OSS_LOCAL_DIR")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("ACTIONCHAT_DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("ACTIONCHAT_SESSION_SECRET is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvCSV(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
