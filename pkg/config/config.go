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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	SLA           SLAConfig
	Sweeper       SweeperConfig
	Escalation    EscalationConfig
	Notifications NotificationsConfig
	Cache         CacheConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SLAConfig fixes the auto-approval window granted at submission time,
// keyed by application priority.
type SLAConfig struct {
	HighPriority   time.Duration
	MediumPriority time.Duration
	NormalPriority time.Duration
}

// SweeperConfig drives the background deadline evaluator.
type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// EscalationConfig controls the feedback-driven reopen loop.
type EscalationConfig struct {
	AlertThreshold int
}

// NotificationsConfig tunes async delivery of notification records.
type NotificationsConfig struct {
	DispatchWorkers int
	DispatchRetries int
	RetryDelay      time.Duration
}

// CacheConfig governs Redis-backed read caches.
type CacheConfig struct {
	TrackingTTL    time.Duration
	UnreadCountTTL time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SLA = SLAConfig{
		HighPriority:   parseDuration(v.GetString("SLA_HIGH_PRIORITY"), 72*time.Hour),
		MediumPriority: parseDuration(v.GetString("SLA_MEDIUM_PRIORITY"), 5*24*time.Hour),
		NormalPriority: parseDuration(v.GetString("SLA_NORMAL_PRIORITY"), 7*24*time.Hour),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:   v.GetBool("ENABLE_DEADLINE_SWEEPER"),
		Interval:  parseDuration(v.GetString("SWEEPER_INTERVAL"), 5*time.Minute),
		BatchSize: v.GetInt("SWEEPER_BATCH_SIZE"),
	}

	cfg.Escalation = EscalationConfig{
		AlertThreshold: v.GetInt("ESCALATION_ALERT_THRESHOLD"),
	}

	cfg.Notifications = NotificationsConfig{
		DispatchWorkers: v.GetInt("NOTIFICATION_DISPATCH_WORKERS"),
		DispatchRetries: v.GetInt("NOTIFICATION_DISPATCH_RETRIES"),
		RetryDelay:      parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Cache = CacheConfig{
		TrackingTTL:    parseDuration(v.GetString("CACHE_TRACKING_TTL"), 2*time.Minute),
		UnreadCountTTL: parseDuration(v.GetString("CACHE_UNREAD_COUNT_TTL"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "civicseva")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SLA_HIGH_PRIORITY", "72h")
	v.SetDefault("SLA_MEDIUM_PRIORITY", "120h")
	v.SetDefault("SLA_NORMAL_PRIORITY", "168h")

	v.SetDefault("ENABLE_DEADLINE_SWEEPER", true)
	v.SetDefault("SWEEPER_INTERVAL", "5m")
	v.SetDefault("SWEEPER_BATCH_SIZE", 100)

	v.SetDefault("ESCALATION_ALERT_THRESHOLD", 2)

	v.SetDefault("NOTIFICATION_DISPATCH_WORKERS", 2)
	v.SetDefault("NOTIFICATION_DISPATCH_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "5s")

	v.SetDefault("CACHE_TRACKING_TTL", "2m")
	v.SetDefault("CACHE_UNREAD_COUNT_TTL", "30s")
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
