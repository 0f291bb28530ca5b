package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mail     MailConfig     `mapstructure:"mail"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	CookieDomain   string `mapstructure:"cookie_domain"`
	InternalSecret string `mapstructure:"internal_secret"`
	MaxUploadMB    int    `mapstructure:"max_upload_mb"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	// AllowedOrigins 限制 WebSocket 握手来源，逗号分隔；为空时只接受同源请求。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// StorageConfig selects where uploaded resumes are kept.
type StorageConfig struct {
	Driver        string        `mapstructure:"driver"`
	LocalDir      string        `mapstructure:"local_dir"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	URLTTL        time.Duration `mapstructure:"url_ttl"`
}

// ClamdConfig points at a clamd daemon; an empty address disables scanning.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// AuthConfig 包含令牌与登录保护相关配置。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	OTPTTL                time.Duration `mapstructure:"otp_ttl"`
	OTPRequestsPerHour    int           `mapstructure:"otp_requests_per_hour"`
	OTPVerifyAttempts     int           `mapstructure:"otp_verify_attempts"`
}

// MailConfig contains the SMTP transport and the dispatcher pacing knobs.
type MailConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	FromName    string        `mapstructure:"from_name"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Stagger     time.Duration `mapstructure:"stagger"`
	Attempts    int           `mapstructure:"attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
}

// NotifyConfig 描述通知邮件中使用的链接与品牌信息。
type NotifyConfig struct {
	InviteFormURL     string `mapstructure:"invite_form_url"`
	EvaluationFormURL string `mapstructure:"evaluation_form_url"`
	LogoURL           string `mapstructure:"logo_url"`
	Brand             string `mapstructure:"brand"`
}

// WorkerConfig contains asynq server settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DSN builds a PostgreSQL keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns host:port for go-redis and asynq.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration from an optional .env file, an optional config file (CONFIG_FILE)
// and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.max_upload_mb", 10)
	v.SetDefault("api.log_level", "info")
	v.SetDefault("api.log_format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "talentcorner")
	v.SetDefault("database.user", "talentcorner")
	v.SetDefault("database.password", "talentcorner")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "resumes")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("storage.public_base_url", "/api/files")
	v.SetDefault("storage.url_ttl", 15*time.Minute)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("auth.otp_ttl", 10*time.Minute)
	v.SetDefault("auth.otp_requests_per_hour", 5)
	v.SetDefault("auth.otp_verify_attempts", 5)
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@talentcorner.local")
	v.SetDefault("mail.from_name", "Talent Corner")
	v.SetDefault("mail.timeout", 15*time.Second)
	v.SetDefault("mail.stagger", time.Second)
	v.SetDefault("mail.attempts", 3)
	v.SetDefault("mail.backoff", 2*time.Second)
	v.SetDefault("mail.max_in_flight", 8)
	v.SetDefault("notify.invite_form_url", "http://localhost:5173/candidate-form")
	v.SetDefault("notify.evaluation_form_url", "http://localhost:5173/domain-form")
	v.SetDefault("notify.brand", "Talent Corner")
	v.SetDefault("worker.concurrency", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.cookie_domain":              "API_COOKIE_DOMAIN",
		"api.internal_secret":            "INTERNAL_API_SECRET",
		"api.max_upload_mb":              "API_MAX_UPLOAD_MB",
		"api.log_level":                  "LOG_LEVEL",
		"api.log_format":                 "LOG_FORMAT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"redis.password":                 "REDIS_PASSWORD",
		"redis.db":                       "REDIS_DB",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"storage.driver":                 "STORAGE_DRIVER",
		"storage.local_dir":              "STORAGE_LOCAL_DIR",
		"storage.public_base_url":        "STORAGE_PUBLIC_BASE_URL",
		"storage.url_ttl":                "STORAGE_URL_TTL",
		"clamd.addr":                     "CLAMD_ADDR",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"auth.otp_ttl":                   "OTP_TTL",
		"auth.otp_requests_per_hour":     "OTP_REQUESTS_PER_HOUR",
		"auth.otp_verify_attempts":       "OTP_VERIFY_ATTEMPTS",
		"mail.host":                      "SMTP_HOST",
		"mail.port":                      "SMTP_PORT",
		"mail.username":                  "SMTP_USERNAME",
		"mail.password":                  "SMTP_PASSWORD",
		"mail.from":                      "MAIL_FROM",
		"mail.from_name":                 "MAIL_FROM_NAME",
		"mail.timeout":                   "SMTP_TIMEOUT",
		"mail.stagger":                   "MAIL_STAGGER",
		"mail.attempts":                  "MAIL_RETRY_ATTEMPTS",
		"mail.backoff":                   "MAIL_RETRY_BACKOFF",
		"mail.max_in_flight":             "MAIL_MAX_IN_FLIGHT",
		"notify.invite_form_url":         "INVITE_FORM_URL",
		"notify.evaluation_form_url":     "EVALUATION_FORM_URL",
		"notify.logo_url":                "MAIL_LOGO_URL",
		"notify.brand":                   "MAIL_BRAND",
		"worker.concurrency":             "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.MaxUploadMB <= 0 {
		return errors.New("api max upload size must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}

	switch strings.ToLower(cfg.Storage.Driver) {
	case "local":
		if strings.TrimSpace(cfg.Storage.LocalDir) == "" {
			return errors.New("storage local dir is required")
		}
	case "minio":
		if cfg.MinIO.Endpoint == "" {
			return errors.New("minio endpoint is required")
		}
		if cfg.MinIO.AccessKeyID == "" {
			return errors.New("minio access key id is required")
		}
		if cfg.MinIO.SecretAccessKey == "" {
			return errors.New("minio secret access key is required")
		}
		if cfg.MinIO.Bucket == "" {
			return errors.New("minio bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Mail.Host == "" {
		return errors.New("mail host is required")
	}
	if cfg.Mail.Port <= 0 {
		return errors.New("mail port must be positive")
	}
	if cfg.Mail.From == "" {
		return errors.New("mail from address is required")
	}
	if cfg.Mail.Attempts < 1 {
		return errors.New("mail attempts must be at least 1")
	}
	if cfg.Mail.Stagger < 0 || cfg.Mail.Backoff < 0 {
		return errors.New("mail stagger and backoff must not be negative")
	}
	if cfg.Mail.MaxInFlight < 1 {
		return errors.New("mail max in flight must be at least 1")
	}
	if cfg.Worker.Concurrency < 1 {
		return errors.New("worker concurrency must be at least 1")
	}
	return nil
}
