// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"patchdb/internal/featureflags"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
// It is loaded once at start-up and passed by value or pointer to the components that need it.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	DBType                   string `mapstructure:"DB_TYPE"`
	DBPath                   string `mapstructure:"DB_PATH"`
	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBAutoMigrate            bool   `mapstructure:"DB_AUTO_MIGRATE"`

	JWTCertFile string `mapstructure:"JWT_CERT_FILE"`
	JWTKeyFile  string `mapstructure:"JWT_KEY_FILE"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	JWTTTLHours int    `mapstructure:"JWT_TTL_HOURS"`

	StorageDriver        string `mapstructure:"STORAGE_DRIVER"`
	S3Bucket             string `mapstructure:"S3_BUCKET"`
	S3Region             string `mapstructure:"S3_REGION"`
	S3Endpoint           string `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID        string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey    string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle       bool   `mapstructure:"S3_USE_PATH_STYLE"`
	GCSBucket            string `mapstructure:"GCS_BUCKET"`
	GCSCredentialsFile   string `mapstructure:"GCS_CREDENTIALS_FILE"`
	PresignExpiryMinutes int    `mapstructure:"PRESIGN_EXPIRY_MINUTES"`
	UploadMaxSizeMB      int    `mapstructure:"UPLOAD_MAX_SIZE_MB"`

	PatchIndexURL            string `mapstructure:"PATCH_INDEX_URL"`
	PatchIndexTimeoutSeconds int    `mapstructure:"PATCH_INDEX_TIMEOUT_SECONDS"`

	UniversitiesFile string `mapstructure:"UNIVERSITIES_FILE"`

	LinkWorkerEnabled    bool `mapstructure:"LINK_WORKER_ENABLED"`
	LinkWorkerPollMillis int  `mapstructure:"LINK_WORKER_POLL_MILLIS"`
	LinkJobMaxAttempts   int  `mapstructure:"LINK_JOB_MAX_ATTEMPTS"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	DevBootstrapAdmin bool   `mapstructure:"DEV_BOOTSTRAP_ADMIN"`
	DevAdminUsername  string `mapstructure:"DEV_ADMIN_USERNAME"`
	DevAdminPassword  string `mapstructure:"DEV_ADMIN_PASSWORD"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; environment variables alone are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("FEATURE_FLAGS", "upload_similarity_search=on")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REDIS_URL", "")

	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DB_PATH", "patchdb.sqlite")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "patchdb")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "patchdb")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("DB_AUTO_MIGRATE", true)

	viper.SetDefault("JWT_ISSUER", "patchdb-api")
	viper.SetDefault("JWT_AUDIENCE", "patchdb-client")
	viper.SetDefault("JWT_TTL_HOURS", 24*7)

	viper.SetDefault("STORAGE_DRIVER", "memory")
	viper.SetDefault("S3_REGION", "eu-north-1")
	viper.SetDefault("PRESIGN_EXPIRY_MINUTES", 240)
	viper.SetDefault("UPLOAD_MAX_SIZE_MB", 10)

	viper.SetDefault("PATCH_INDEX_URL", "http://localhost:8000")
	viper.SetDefault("PATCH_INDEX_TIMEOUT_SECONDS", 30)

	viper.SetDefault("UNIVERSITIES_FILE", "universities.yml")

	viper.SetDefault("LINK_WORKER_ENABLED", true)
	viper.SetDefault("LINK_WORKER_POLL_MILLIS", 1000)
	viper.SetDefault("LINK_JOB_MAX_ATTEMPTS", 5)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("DEV_BOOTSTRAP_ADMIN", false)
	viper.SetDefault("DEV_ADMIN_USERNAME", "patchdb_admin")

	// Keys without a meaningful default still need registering so that
	// AutomaticEnv values reach Unmarshal.
	for _, key := range []string{
		"JWT_CERT_FILE", "JWT_KEY_FILE",
		"S3_BUCKET", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
		"GCS_BUCKET", "GCS_CREDENTIALS_FILE",
		"OTLP_ENDPOINT", "DEV_ADMIN_PASSWORD",
	} {
		viper.SetDefault(key, "")
	}
	viper.SetDefault("S3_USE_PATH_STYLE", false)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBType = strings.ToLower(strings.TrimSpace(c.DBType))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.PatchIndexURL = strings.TrimRight(strings.TrimSpace(c.PatchIndexURL), "/")
}

// IsProduction reports whether the configuration targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// PresignExpiry returns the lifetime of pre-signed object-store URLs.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.PresignExpiryMinutes) * time.Minute
}

// PatchIndexTimeout returns the timeout applied to similarity service calls.
func (c *Config) PatchIndexTimeout() time.Duration {
	return time.Duration(c.PatchIndexTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued access tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.DBType {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("DB_PATH is required when DB_TYPE is sqlite")
		}
	case "postgres", "postgresql", "mysql", "mariadb":
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required when DB_TYPE is %s", c.DBType)
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.DBType)
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must not be negative")
	}

	switch c.StorageDriver {
	case "memory":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_DRIVER is s3")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required when STORAGE_DRIVER is gcs")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.PresignExpiryMinutes <= 0 {
		return errors.New("PRESIGN_EXPIRY_MINUTES must be positive")
	}
	if c.UploadMaxSizeMB <= 0 {
		return errors.New("UPLOAD_MAX_SIZE_MB must be positive")
	}

	if c.PatchIndexURL == "" {
		return errors.New("PATCH_INDEX_URL is required")
	}
	if c.LinkJobMaxAttempts <= 0 {
		return errors.New("LINK_JOB_MAX_ATTEMPTS must be positive")
	}
	if c.JWTTTLHours <= 0 {
		return errors.New("JWT_TTL_HOURS must be positive")
	}

	if _, err := featureflags.Parse(c.FeatureFlags); err != nil {
		return fmt.Errorf("FEATURE_FLAGS: %w", err)
	}

	if (c.JWTCertFile == "") != (c.JWTKeyFile == "") {
		return errors.New("JWT_CERT_FILE and JWT_KEY_FILE must be set together")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTCertFile == "" {
			return errors.New("JWT_CERT_FILE and JWT_KEY_FILE are required in production")
		}
		if c.StorageDriver == "memory" {
			return errors.New("STORAGE_DRIVER memory is not allowed in production")
		}
		if c.DBType == "postgres" || c.DBType == "postgresql" {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must not be disabled in production")
			}
		}
		if c.DevBootstrapAdmin {
			return errors.New("DEV_BOOTSTRAP_ADMIN must be disabled in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
