package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ViewLens analytics service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Geo       GeoConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// AuthConfig configures API-key authentication for query endpoints.
// Keys map callers to organizations as "key:organizationID" pairs;
// SkipPaths are matched exactly, so the public ingest endpoint can be
// excluded without also excluding its query siblings.
type AuthConfig struct {
	Enabled   bool
	Keys      []string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled     bool
	IngestRPS   float64
	IngestBurst int
	QueryRPS    float64
	QueryBurst  int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// GeoConfig configures GeoIP lookup.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
	Prefix  string
}

// AnalyticsConfig holds aggregation defaults and clamps.
type AnalyticsConfig struct {
	DefaultBucketSize  int
	InsightsBucketSize int
	DefaultTopDropOffs int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("VIEWLENS_HTTP_ADDR", ":8080"),
			Env:             getEnv("VIEWLENS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("VIEWLENS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("VIEWLENS_DB_ENABLED", false),
			Host:     getEnv("VIEWLENS_DB_HOST", "localhost"),
			Port:     getIntEnv("VIEWLENS_DB_PORT", 5432),
			User:     getEnv("VIEWLENS_DB_USER", "viewlens"),
			Password: getEnv("VIEWLENS_DB_PASSWORD", "viewlens_secret"),
			DBName:   getEnv("VIEWLENS_DB_NAME", "viewlens"),
			SSLMode:  getEnv("VIEWLENS_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("VIEWLENS_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("VIEWLENS_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("VIEWLENS_REDIS_ENABLED", false),
			Addr:     getEnv("VIEWLENS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("VIEWLENS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("VIEWLENS_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("VIEWLENS_AUTH_ENABLED", true),
			Keys:      getSliceEnv("VIEWLENS_API_KEYS", nil),
			SkipPaths: getSliceEnv("VIEWLENS_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/api/analytics/events"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("VIEWLENS_RATE_LIMIT_ENABLED", true),
			IngestRPS:   getFloatEnv("VIEWLENS_RATE_LIMIT_INGEST_RPS", 2000),
			IngestBurst: getIntEnv("VIEWLENS_RATE_LIMIT_INGEST_BURST", 200),
			QueryRPS:    getFloatEnv("VIEWLENS_RATE_LIMIT_QUERY_RPS", 100),
			QueryBurst:  getIntEnv("VIEWLENS_RATE_LIMIT_QUERY_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("VIEWLENS_LOG_LEVEL", "info"),
			Format: getEnv("VIEWLENS_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("VIEWLENS_METRICS_ENABLED", true),
			Path:      getEnv("VIEWLENS_METRICS_PATH", "/metrics"),
			Namespace: getEnv("VIEWLENS_METRICS_NAMESPACE", "viewlens"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("VIEWLENS_GEO_ENABLED", false),
			DatabasePath: getEnv("VIEWLENS_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
			CacheSize:    getIntEnv("VIEWLENS_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("VIEWLENS_GEO_CACHE_TTL", 1*time.Hour),
		},
		Cache: CacheConfig{
			Enabled: getBoolEnv("VIEWLENS_CACHE_ENABLED", true),
			TTL:     getDurationEnv("VIEWLENS_CACHE_TTL", 5*time.Minute),
			MaxSize: getIntEnv("VIEWLENS_CACHE_MAX_SIZE", 10000),
			Prefix:  getEnv("VIEWLENS_CACHE_PREFIX", "viewlens:analytics:"),
		},
		Analytics: AnalyticsConfig{
			DefaultBucketSize:  getIntEnv("VIEWLENS_ANALYTICS_BUCKET_SIZE", 10),
			InsightsBucketSize: getIntEnv("VIEWLENS_ANALYTICS_INSIGHTS_BUCKET_SIZE", 5),
			DefaultTopDropOffs: getIntEnv("VIEWLENS_ANALYTICS_TOP_DROP_OFFS", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && len(c.Auth.Keys) == 0 {
		return fmt.Errorf("VIEWLENS_API_KEYS is required when auth is enabled")
	}
	for _, k := range c.Auth.Keys {
		if !strings.Contains(k, ":") {
			return fmt.Errorf("malformed API key entry %q, want key:organizationID", k)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
