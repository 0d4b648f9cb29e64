package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port           int
	LogLevel       string
	SiteURL        string
	AllowedOrigins []string
	SecureCookie   bool

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	AvatarBucket       string
	MediaBucket        string
	LogoBucket         string

	// Client key-value store; empty RedisAddr keeps it in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ClientDataTTL time.Duration

	// Auth pipeline
	FetchMaxAttempts int
	FetchRetryBase   time.Duration
	OAuthWaitTimeout time.Duration
	StoreIdleTTL     time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	siteURL := getEnv("SITE_URL", "http://localhost:5173")
	return &Config{
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SiteURL:        siteURL,
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{siteURL}),
		SecureCookie:   getEnvBool("SECURE_COOKIE", strings.HasPrefix(siteURL, "https://")),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),
		AvatarBucket:       getEnv("AVATAR_BUCKET", "avatars"),
		MediaBucket:        getEnv("MEDIA_BUCKET", "profile-videos"),
		LogoBucket:         getEnv("LOGO_BUCKET", "company-logos"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ClientDataTTL: getEnvDuration("CLIENT_DATA_TTL", 30*24*time.Hour),

		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 3),
		FetchRetryBase:   getEnvDuration("FETCH_RETRY_BASE", time.Second),
		OAuthWaitTimeout: getEnvDuration("OAUTH_WAIT_TIMEOUT", 8*time.Second),
		StoreIdleTTL:     getEnvDuration("STORE_IDLE_TTL", 30*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
