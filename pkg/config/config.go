package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Reports  ReportsConfig
	Breaker  BreakerConfig
	Sweep    SweepConfig
	Tracing  TracingConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReportsConfig governs report caching.
type ReportsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// BreakerConfig tunes the circuit breaker guarding the cache.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// SweepConfig toggles the periodic overdue/missed sweeps.
type SweepConfig struct {
	Enabled    bool
	Interval   time.Duration
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64
}

// ExportsConfig locates exports written by the CLI.
type ExportsConfig struct {
	Dir       string
	Retention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USERNAME"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Reports = ReportsConfig{
		CacheEnabled: v.GetBool("ENABLE_REPORT_CACHE"),
		CacheTTL:     parseDuration(v.GetString("REPORT_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Breaker = BreakerConfig{
		MaxRequests:      uint32(v.GetInt("CACHE_BREAKER_MAX_REQUESTS")),
		Interval:         parseDuration(v.GetString("CACHE_BREAKER_INTERVAL"), time.Minute),
		Timeout:          parseDuration(v.GetString("CACHE_BREAKER_TIMEOUT"), 30*time.Second),
		FailureThreshold: uint32(v.GetInt("CACHE_BREAKER_FAILURES")),
	}

	cfg.Sweep = SweepConfig{
		Enabled:    v.GetBool("ENABLE_SWEEP_SCHEDULER"),
		Interval:   parseDuration(v.GetString("SWEEP_INTERVAL"), time.Hour),
		Workers:    v.GetInt("SWEEP_WORKERS"),
		MaxRetries: v.GetInt("SWEEP_WORKER_RETRIES"),
		RetryDelay: parseDuration(v.GetString("SWEEP_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("OTEL_ENABLED"),
		ServiceName: v.GetString("OTEL_SERVICE_NAME"),
		Endpoint:    v.GetString("OTEL_ENDPOINT"),
		SampleRate:  v.GetFloat64("OTEL_SAMPLE_RATE"),
	}

	cfg.Exports = ExportsConfig{
		Dir:       v.GetString("EXPORT_DIR"),
		Retention: parseDuration(v.GetString("EXPORT_RETENTION"), 30*24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3001)
	v.SetDefault("API_PREFIX", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USERNAME", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "health_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "carepath-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_REPORT_CACHE", false)
	v.SetDefault("REPORT_CACHE_TTL", "5m")

	v.SetDefault("CACHE_BREAKER_MAX_REQUESTS", 3)
	v.SetDefault("CACHE_BREAKER_INTERVAL", "60s")
	v.SetDefault("CACHE_BREAKER_TIMEOUT", "30s")
	v.SetDefault("CACHE_BREAKER_FAILURES", 5)

	v.SetDefault("ENABLE_SWEEP_SCHEDULER", false)
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_WORKERS", 1)
	v.SetDefault("SWEEP_WORKER_RETRIES", 3)
	v.SetDefault("SWEEP_RETRY_DELAY", "5s")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "carepath-api")
	v.SetDefault("OTEL_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATE", 1.0)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_RETENTION", "720h")
}

// isMissingFile reports whether viper failed only because .env is absent.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
