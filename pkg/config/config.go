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
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database DatabaseConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	JWT      JWTConfig
	Autosave AutosaveConfig
	Locks    LockConfig
	Staging  StagingConfig
	Sessions SessionConfig
	Review   ReviewConfig
	Exports  ExportConfig
	Events   EventConfig
	Audit    AuditConfig
	Cache    CacheConfig
	CORS     CORSConfig
	Log      LogConfig
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

// UpstreamConfig points the gateway at the LIMS core services. MediaURL
// is the origin that serves confirmed photos; records store paths
// relative to it.
type UpstreamConfig struct {
	BaseURL      string
	MediaURL     string
	ServiceToken string
	Timeout      time.Duration
}

type JWTConfig struct {
	StaffSecret   string
	ReviewSecret  string
	ReviewLinkTTL time.Duration
}

// AutosaveConfig tunes the draft autosave engine shared by all sessions.
type AutosaveConfig struct {
	DebounceDelay time.Duration
	RetryDelay    time.Duration
}

// LockConfig controls how record lock state is observed.
type LockConfig struct {
	Source       string
	PollInterval time.Duration
}

// StagingConfig controls local storage for photos staged before submission.
type StagingConfig struct {
	Dir              string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	CleanupInterval  time.Duration
	MaxAge           time.Duration
}

// SessionConfig bounds the in-memory intake session registry.
type SessionConfig struct {
	IdleTTL time.Duration
}

// ReviewConfig gates the customer review portal endpoints.
type ReviewConfig struct {
	Enabled bool
}

// ExportConfig gates inward register exports and controls where rendered
// files are kept until their signed download links expire.
type ExportConfig struct {
	Enabled    bool
	Dir        string
	SignSecret string
	ResultTTL  time.Duration
}

// EventConfig gates the websocket session event feed.
type EventConfig struct {
	Enabled bool
}

// AuditConfig tunes the asynchronous audit trail writer.
type AuditConfig struct {
	QueueSize         int
	WorkerConcurrency int
	WorkerRetries     int
}

// CacheConfig tunes read caching for committed inward records.
type CacheConfig struct {
	RecordTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
	cfg.PublicBaseURL = v.GetString("PUBLIC_BASE_URL")

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

	cfg.Upstream = UpstreamConfig{
		BaseURL:      v.GetString("UPSTREAM_BASE_URL"),
		MediaURL:     v.GetString("UPSTREAM_MEDIA_URL"),
		ServiceToken: v.GetString("UPSTREAM_SERVICE_TOKEN"),
		Timeout:      parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 15*time.Second),
	}

	cfg.JWT = JWTConfig{
		StaffSecret:   v.GetString("JWT_STAFF_SECRET"),
		ReviewSecret:  v.GetString("JWT_REVIEW_SECRET"),
		ReviewLinkTTL: parseDuration(v.GetString("REVIEW_LINK_TTL"), 7*24*time.Hour),
	}

	cfg.Autosave = AutosaveConfig{
		DebounceDelay: parseDuration(v.GetString("AUTOSAVE_DEBOUNCE_DELAY"), 2*time.Second),
		RetryDelay:    parseDuration(v.GetString("AUTOSAVE_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Locks = LockConfig{
		Source:       v.GetString("LOCK_SOURCE"),
		PollInterval: parseDuration(v.GetString("LOCK_POLL_INTERVAL"), 5*time.Second),
	}

	maxPhotoSize := v.GetInt64("STAGING_MAX_FILE_SIZE")
	if maxPhotoSize <= 0 {
		maxPhotoSize = 10 * 1024 * 1024
	}
	cfg.Staging = StagingConfig{
		Dir:              v.GetString("STAGING_DIR"),
		MaxFileSizeBytes: maxPhotoSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("STAGING_ALLOWED_MIME_TYPES")),
		CleanupInterval:  parseDuration(v.GetString("STAGING_CLEANUP_INTERVAL"), time.Hour),
		MaxAge:           parseDuration(v.GetString("STAGING_MAX_AGE"), 48*time.Hour),
	}

	cfg.Sessions = SessionConfig{
		IdleTTL: parseDuration(v.GetString("SESSION_IDLE_TTL"), 12*time.Hour),
	}

	cfg.Review = ReviewConfig{Enabled: v.GetBool("ENABLE_REVIEW_PORTAL")}
	cfg.Exports = ExportConfig{
		Enabled:    v.GetBool("ENABLE_EXPORTS"),
		Dir:        v.GetString("EXPORT_DIR"),
		SignSecret: v.GetString("EXPORT_SIGN_SECRET"),
		ResultTTL:  parseDuration(v.GetString("EXPORT_RESULT_TTL"), 24*time.Hour),
	}
	cfg.Events = EventConfig{Enabled: v.GetBool("ENABLE_SESSION_EVENTS")}

	cfg.Audit = AuditConfig{
		QueueSize:         v.GetInt("AUDIT_QUEUE_SIZE"),
		WorkerConcurrency: v.GetInt("AUDIT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("AUDIT_WORKER_RETRIES"),
	}

	cfg.Cache = CacheConfig{
		RecordTTL: parseDuration(v.GetString("RECORD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lims_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("UPSTREAM_BASE_URL", "http://localhost:9000/api")
	v.SetDefault("UPSTREAM_MEDIA_URL", "http://localhost:9000")
	v.SetDefault("UPSTREAM_SERVICE_TOKEN", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")

	v.SetDefault("JWT_STAFF_SECRET", "dev_staff_secret")
	v.SetDefault("JWT_REVIEW_SECRET", "dev_review_secret")
	v.SetDefault("REVIEW_LINK_TTL", "168h")

	v.SetDefault("AUTOSAVE_DEBOUNCE_DELAY", "2s")
	v.SetDefault("AUTOSAVE_RETRY_DELAY", "5s")

	v.SetDefault("LOCK_SOURCE", "redis")
	v.SetDefault("LOCK_POLL_INTERVAL", "5s")

	v.SetDefault("STAGING_DIR", "./staging")
	v.SetDefault("STAGING_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("STAGING_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp")
	v.SetDefault("STAGING_CLEANUP_INTERVAL", "1h")
	v.SetDefault("STAGING_MAX_AGE", "48h")

	v.SetDefault("SESSION_IDLE_TTL", "12h")

	v.SetDefault("ENABLE_REVIEW_PORTAL", true)
	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_SIGN_SECRET", "dev_export_secret_change_me")
	v.SetDefault("EXPORT_RESULT_TTL", "24h")
	v.SetDefault("ENABLE_SESSION_EVENTS", true)

	v.SetDefault("AUDIT_QUEUE_SIZE", 256)
	v.SetDefault("AUDIT_WORKER_CONCURRENCY", 1)
	v.SetDefault("AUDIT_WORKER_RETRIES", 3)

	v.SetDefault("RECORD_CACHE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
