package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// Upstream GPS service behind /api/track
	FastAPIBase  string        `validate:"required,url"`
	FallbackMode string        `validate:"oneof=mock strict"`
	ProxyTimeout time.Duration `validate:"gt=0"`

	// Where the poller fetches snapshots, normally this server's own proxy
	TrackSourceURL string        `validate:"required,url"`
	DeviceID       string        `validate:"required"`
	PollInterval   time.Duration `validate:"gte=500ms,lte=30s"`
	PollRetries    int           `validate:"gte=0,lte=10"`
	PollRetryDelay time.Duration `validate:"gt=0"`
	SyntheticSpeed bool

	GeocodeURL       string        `validate:"required,url"`
	GeocodeUserAgent string        `validate:"required"`
	GeocodeDebounce  time.Duration `validate:"gte=0"`

	RedisEnabled    bool
	RedisAddr       string `validate:"required_if=RedisEnabled true"`
	RedisPassword   string
	RedisDB         int           `validate:"gte=0"`
	CacheTTL        time.Duration `validate:"gt=0"`
	CacheMaxEntries int           `validate:"gt=0"`

	RateLimitPerWindow int           `validate:"gt=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string

	StreamURL      string `validate:"omitempty,url"`
	MapContainer   string `validate:"required"`
	ViewportWidth  int    `validate:"gt=0"`
	ViewportHeight int    `validate:"gt=0"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first; variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		FastAPIBase:  getEnv("FASTAPI_BASE", "http://3.7.100.109:55575"),
		FallbackMode: strings.ToLower(getEnv("FALLBACK_MODE", "mock")),
		ProxyTimeout: getDurationEnv("PROXY_TIMEOUT", 8*time.Second),

		TrackSourceURL: getEnv("TRACK_SOURCE_URL", "http://localhost:8080"),
		DeviceID:       getEnv("DEVICE_ID", "car01"),
		PollInterval:   getDurationEnv("POLL_INTERVAL", 2*time.Second),
		PollRetries:    getIntEnv("POLL_RETRIES", 3),
		PollRetryDelay: getDurationEnv("POLL_RETRY_DELAY", time.Second),
		SyntheticSpeed: getBoolEnv("SYNTHETIC_SPEED", true),

		GeocodeURL:       getEnv("GEOCODE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeUserAgent: getEnv("GEOCODE_USER_AGENT", "GPS-Tracker-App/1.0"),
		GeocodeDebounce:  getDurationEnv("GEOCODE_DEBOUNCE", time.Second),

		RedisEnabled:    getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		CacheTTL:        getDurationEnv("CACHE_TTL", 24*time.Hour),
		CacheMaxEntries: getIntEnv("CACHE_MAX_ENTRIES", 1000),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 300),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),

		StreamURL:      getEnv("STREAM_URL", "rtmp://localhost:1935/live"),
		MapContainer:   getEnv("MAP_CONTAINER", "map"),
		ViewportWidth:  getIntEnv("VIEWPORT_WIDTH", 1280),
		ViewportHeight: getIntEnv("VIEWPORT_HEIGHT", 720),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}
