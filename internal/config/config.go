package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultDatabaseDSN = "host=localhost user=postgres password=postgres dbname=snd port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:3000"
)

type Config struct {
	HTTPPort       string
	DatabaseDSN    string
	JWTSecret      string
	JWTTTL         time.Duration
	CORSOrigins    string
	LogLevel       string
	LogDevelopment bool
	MaxUploadBytes int64

	Storage StorageConfig
	ERPNext ERPNextConfig

	// 0 disables the background equipment status check.
	EquipmentMonitorInterval time.Duration

	// Non-fatal problems found while loading, logged once the logger exists.
	Warnings []string
}

// StorageConfig describes the S3-compatible bucket holding uploaded documents.
// An empty Endpoint selects the in-process store.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type ERPNextConfig struct {
	URL           string
	APIKey        string
	APISecret     string
	WebhookSecret string
	// Company that customers arriving from ERPNext are attached to.
	CompanyID uint
	Timeout   time.Duration
}

func (e ERPNextConfig) Enabled() bool {
	return e.URL != "" && e.APIKey != "" && e.APISecret != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDatabaseDSN),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Storage: StorageConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "documents"),
			Region:    getEnv("S3_REGION", ""),
		},
		ERPNext: ERPNextConfig{
			URL:           getEnv("ERPNEXT_URL", ""),
			APIKey:        getEnv("ERPNEXT_API_KEY", ""),
			APISecret:     getEnv("ERPNEXT_API_SECRET", ""),
			WebhookSecret: getEnv("ERPNEXT_WEBHOOK_SECRET", ""),
		},
	}

	var err error
	if cfg.LogDevelopment, err = getBool("LOG_DEVELOPMENT", false); err != nil {
		return nil, err
	}
	if cfg.Storage.UseSSL, err = getBool("S3_USE_SSL", false); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EquipmentMonitorInterval, err = getDuration("EQUIPMENT_MONITOR_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ERPNext.Timeout, err = getDuration("ERPNEXT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil || maxUpload <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be a positive integer")
	}
	cfg.MaxUploadBytes = maxUpload

	companyID, err := strconv.ParseUint(getEnv("ERPNEXT_COMPANY_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ERPNEXT_COMPANY_ID: %w", err)
	}
	cfg.ERPNext.CompanyID = uint(companyID)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.DatabaseDSN == defaultDatabaseDSN {
		cfg.Warnings = append(cfg.Warnings, "DATABASE_DSN is using the default value, set your own Postgres connection for production")
	}
	if cfg.CORSOrigins == defaultCORSOrigins {
		cfg.Warnings = append(cfg.Warnings, "CORS_ALLOWED_ORIGINS is using the default value, set your own domain for production")
	}
	if cfg.Storage.Endpoint == "" {
		cfg.Warnings = append(cfg.Warnings, "S3_ENDPOINT is empty, documents are kept in memory and lost on restart")
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if c.Storage.Endpoint != "" && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
