package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Uploads   UploadsConfig
	Antivirus AntivirusConfig
	Retention RetentionConfig
	Reconcile ReconcileConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// Timeout bounds dialing and each command so a slow Redis cannot stall
	// the upload gateway.
	Timeout time.Duration
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig describes the quarantine/clean storage layout and upload token signing.
type UploadsConfig struct {
	BasePath             string
	QuarantineSubdir     string
	CleanSubdir          string
	MaxSizeMB            int64
	AllowedExtensions    []string
	TokenSigningKey      string
	TokenTTL             time.Duration
	GatewayPublicBaseURL string
}

// MaxSizeBytes converts the configured megabyte cap to bytes.
func (c UploadsConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// AntivirusConfig controls the quarantine scan worker.
type AntivirusConfig struct {
	Enabled      bool
	ScanInterval time.Duration
	BatchSize    int
}

// RetentionConfig holds per-category retention windows in days.
type RetentionConfig struct {
	Enabled             bool
	PiiDays             int
	RecordingsDays      int
	MedicalDays         int
	HighSensitivityDays int
	EnqueueInterval     time.Duration
	ExecuteInterval     time.Duration
}

// ReconcileConfig controls the storage/database consistency report.
type ReconcileConfig struct {
	Enabled  bool
	Interval time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Timeout:  parseDuration(v.GetString("REDIS_TIMEOUT"), 2*time.Second),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Uploads = UploadsConfig{
		BasePath:             v.GetString("UPLOADS_BASE_PATH"),
		QuarantineSubdir:     v.GetString("UPLOADS_QUARANTINE_SUBDIR"),
		CleanSubdir:          v.GetString("UPLOADS_CLEAN_SUBDIR"),
		MaxSizeMB:            v.GetInt64("UPLOADS_MAX_SIZE_MB"),
		AllowedExtensions:    splitAndTrim(strings.ToLower(v.GetString("UPLOADS_ALLOWED_EXTENSIONS"))),
		TokenSigningKey:      v.GetString("UPLOADS_TOKEN_SIGNING_KEY"),
		TokenTTL:             time.Duration(v.GetInt("UPLOADS_TOKEN_TTL_MINUTES")) * time.Minute,
		GatewayPublicBaseURL: strings.TrimRight(v.GetString("UPLOADS_GATEWAY_PUBLIC_BASE_URL"), "/"),
	}

	cfg.Antivirus = AntivirusConfig{
		Enabled:      v.GetBool("ANTIVIRUS_ENABLED"),
		ScanInterval: parseDuration(v.GetString("ANTIVIRUS_SCAN_INTERVAL"), 20*time.Second),
		BatchSize:    v.GetInt("ANTIVIRUS_BATCH_SIZE"),
	}

	cfg.Retention = RetentionConfig{
		Enabled:             v.GetBool("RETENTION_ENABLED"),
		PiiDays:             v.GetInt("RETENTION_PII_DAYS"),
		RecordingsDays:      v.GetInt("RETENTION_RECORDINGS_DAYS"),
		MedicalDays:         v.GetInt("RETENTION_MEDICAL_DAYS"),
		HighSensitivityDays: v.GetInt("RETENTION_HIGH_SENSITIVITY_DAYS"),
		EnqueueInterval:     parseDuration(v.GetString("RETENTION_ENQUEUE_INTERVAL"), 24*time.Hour),
		ExecuteInterval:     parseDuration(v.GetString("RETENTION_EXECUTE_INTERVAL"), time.Hour),
	}

	cfg.Reconcile = ReconcileConfig{
		Enabled:  v.GetBool("RECONCILE_ENABLED"),
		Interval: parseDuration(v.GetString("RECONCILE_INTERVAL"), 6*time.Hour),
	}

	return cfg
}

// Validate rejects configurations the background workers cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Uploads.BasePath) == "" {
		problems = append(problems, "UPLOADS_BASE_PATH is required")
	}
	if strings.TrimSpace(c.Uploads.QuarantineSubdir) == "" || strings.TrimSpace(c.Uploads.CleanSubdir) == "" {
		problems = append(problems, "quarantine and clean subdirectories are required")
	}
	if c.Uploads.QuarantineSubdir == c.Uploads.CleanSubdir {
		problems = append(problems, "quarantine and clean subdirectories must differ")
	}
	if c.Uploads.TokenSigningKey == "" {
		problems = append(problems, "UPLOADS_TOKEN_SIGNING_KEY is required")
	}
	if c.Uploads.TokenTTL <= 0 {
		problems = append(problems, "UPLOADS_TOKEN_TTL_MINUTES must be positive")
	}
	if c.Uploads.MaxSizeMB <= 0 {
		problems = append(problems, "UPLOADS_MAX_SIZE_MB must be positive")
	}
	windows := []struct {
		key  string
		days int
	}{
		{"RETENTION_PII_DAYS", c.Retention.PiiDays},
		{"RETENTION_RECORDINGS_DAYS", c.Retention.RecordingsDays},
		{"RETENTION_MEDICAL_DAYS", c.Retention.MedicalDays},
		{"RETENTION_HIGH_SENSITIVITY_DAYS", c.Retention.HighSensitivityDays},
	}
	for _, w := range windows {
		if w.days <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", w.key))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return appErrors.Wrap(errors.New(strings.Join(problems, "; ")), appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, appErrors.ErrConfiguration.Message)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "casevault")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TIMEOUT", "2s")

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_BASE_PATH", "./data/uploads")
	v.SetDefault("UPLOADS_QUARANTINE_SUBDIR", "quarantine")
	v.SetDefault("UPLOADS_CLEAN_SUBDIR", "clean")
	v.SetDefault("UPLOADS_MAX_SIZE_MB", 25)
	v.SetDefault("UPLOADS_ALLOWED_EXTENSIONS", ".pdf,.docx,.doc,.png,.jpg,.jpeg,.tiff,.gif,.heic")
	v.SetDefault("UPLOADS_TOKEN_SIGNING_KEY", "")
	v.SetDefault("UPLOADS_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("UPLOADS_GATEWAY_PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("ANTIVIRUS_ENABLED", true)
	v.SetDefault("ANTIVIRUS_SCAN_INTERVAL", "20s")
	v.SetDefault("ANTIVIRUS_BATCH_SIZE", 10)

	v.SetDefault("RETENTION_ENABLED", true)
	v.SetDefault("RETENTION_PII_DAYS", 365)
	v.SetDefault("RETENTION_RECORDINGS_DAYS", 730)
	v.SetDefault("RETENTION_MEDICAL_DAYS", 60)
	v.SetDefault("RETENTION_HIGH_SENSITIVITY_DAYS", 30)
	v.SetDefault("RETENTION_ENQUEUE_INTERVAL", "24h")
	v.SetDefault("RETENTION_EXECUTE_INTERVAL", "1h")

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_INTERVAL", "6h")
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
