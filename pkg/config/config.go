package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// RefreshTokenTTL is fixed; the refresh cookie Max-Age mirrors it.
const RefreshTokenTTL = 7 * 24 * time.Hour

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Cookie    CookieConfig
	CORS      CORSConfig
	Log       LogConfig
	Uploads   UploadsConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
	Notify    NotifyConfig
	Incidents IncidentsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	RefreshSecret     string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Domain string
	Secure bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig governs incident evidence storage.
type UploadsConfig struct {
	Dir               string
	MaxFileSizeBytes  int64
	MaxFiles          int
	AllowedExtensions []string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
}

// RateLimitConfig throttles the auth and general API surfaces.
type RateLimitConfig struct {
	Enabled       bool
	AuthPerMinute int
	APIPerMinute  int
}

// RealtimeConfig toggles the websocket push channel.
type RealtimeConfig struct {
	Enabled      bool
	RedisChannel string
}

// NotifyConfig sizes the notification delivery queue.
type NotifyConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// IncidentsConfig tunes incident reporting and exports.
type IncidentsConfig struct {
	StatsCacheTTL  time.Duration
	ExportCSVLimit int
	ExportPDFLimit int
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
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
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	refreshSecret := v.GetString("JWT_REFRESH_SECRET")
	if refreshSecret == "" {
		refreshSecret = v.GetString("JWT_SECRET") + "_refresh"
	}
	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		RefreshSecret:     refreshSecret,
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 15*time.Minute),
		RefreshExpiration: RefreshTokenTTL,
	}

	cfg.Cookie = CookieConfig{
		Domain: v.GetString("COOKIE_DOMAIN"),
		Secure: v.GetBool("COOKIE_SECURE") || cfg.Env == EnvProduction,
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	maxFiles := v.GetInt("UPLOADS_MAX_FILES")
	if maxFiles <= 0 {
		maxFiles = 5
	}
	cfg.Uploads = UploadsConfig{
		Dir:               v.GetString("UPLOADS_DIR"),
		MaxFileSizeBytes:  maxUpload,
		MaxFiles:          maxFiles,
		AllowedExtensions: splitAndTrim(strings.ToLower(v.GetString("UPLOADS_ALLOWED_EXTENSIONS"))),
		SignedURLSecret:   v.GetString("EVIDENCE_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EVIDENCE_SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:       v.GetBool("RATE_LIMIT_ENABLED") || cfg.Env == EnvProduction,
		AuthPerMinute: v.GetInt("RATE_LIMIT_AUTH_PER_MINUTE"),
		APIPerMinute:  v.GetInt("RATE_LIMIT_API_PER_MINUTE"),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:      v.GetBool("ENABLE_REALTIME"),
		RedisChannel: v.GetString("REALTIME_REDIS_CHANNEL"),
	}

	cfg.Notify = NotifyConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		Retries:    v.GetInt("NOTIFY_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Incidents = IncidentsConfig{
		StatsCacheTTL:  parseDuration(v.GetString("STATS_CACHE_TTL"), time.Minute),
		ExportCSVLimit: v.GetInt("EXPORT_CSV_LIMIT"),
		ExportPDFLimit: v.GetInt("EXPORT_PDF_LIMIT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "incident_desk")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_EXPIRATION", "15m")

	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("UPLOADS_MAX_FILES", 5)
	v.SetDefault("UPLOADS_ALLOWED_EXTENSIONS", ".jpg,.jpeg,.png,.pdf")
	v.SetDefault("EVIDENCE_SIGNED_URL_SECRET", "dev_evidence_secret")
	v.SetDefault("EVIDENCE_SIGNED_URL_TTL", "15m")

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_AUTH_PER_MINUTE", 10)
	v.SetDefault("RATE_LIMIT_API_PER_MINUTE", 100)

	v.SetDefault("ENABLE_REALTIME", true)
	v.SetDefault("REALTIME_REDIS_CHANNEL", "incident-desk:events")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("STATS_CACHE_TTL", "1m")
	v.SetDefault("EXPORT_CSV_LIMIT", 5000)
	v.SetDefault("EXPORT_PDF_LIMIT", 1000)
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
