package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	JWT      JWTConfig
	Presence PresenceConfig
	Geo      GeoConfig
	Ingest   IngestConfig
	Watch    WatchConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// PresenceConfig controls the liveness lifecycle: an entry with no report
// within TTL becomes EXPIRED; it is purged GracePeriod after expiry.
type PresenceConfig struct {
	TTL           time.Duration
	GracePeriod   time.Duration
	SweepInterval time.Duration
}

type GeoConfig struct {
	CellSizeMeters float64
	DefaultRadiusM float64
	MaxRadiusM     float64
	DefaultLimit   int
	MaxLimit       int
}

type IngestConfig struct {
	MinReportInterval time.Duration
}

type WatchConfig struct {
	Debounce    time.Duration
	SendBuffer  int
	MaxWatchers int
}

func Load() *Config {
	ttl := envDuration("PRESENCE_TTL", 30*time.Second)
	return &Config{
		Server: ServerConfig{
			Port:         envStr("PORT", "8099"),
			Env:          envStr("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		JWT: JWTConfig{
			Secret: envStr("JWT_SECRET", "change-me-in-production"),
			Expiry: envDuration("JWT_EXPIRY", 24*time.Hour),
			Issuer: "neargo",
		},
		Presence: PresenceConfig{
			TTL:           ttl,
			GracePeriod:   envDuration("PRESENCE_GRACE", 2*ttl),
			SweepInterval: ttl / 2,
		},
		Geo: GeoConfig{
			CellSizeMeters: envFloat("GEO_CELL_SIZE_M", 500),
			DefaultRadiusM: envFloat("GEO_DEFAULT_RADIUS_M", 1000),
			MaxRadiusM:     envFloat("GEO_MAX_RADIUS_M", 5000),
			DefaultLimit:   envInt("GEO_DEFAULT_LIMIT", 50),
			MaxLimit:       envInt("GEO_MAX_LIMIT", 200),
		},
		Ingest: IngestConfig{
			MinReportInterval: envDuration("INGEST_MIN_INTERVAL", time.Second),
		},
		Watch: WatchConfig{
			Debounce:    envDuration("WATCH_DEBOUNCE", 2*time.Second),
			SendBuffer:  envInt("WATCH_SEND_BUFFER", 256),
			MaxWatchers: envInt("WATCH_MAX", 10000),
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
