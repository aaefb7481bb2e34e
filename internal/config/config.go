package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Email     EmailConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Vault     VaultConfig
	Label     LabelConfig
	Docstore  DocstoreConfig
	Outbox    OutboxConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	PrivateKeyPEM string
	Expiration    time.Duration
}

// EmailConfig holds email-related configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	BaseURL      string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Duration time.Duration
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env      string
	Name     string
	Version  string
	LogLevel string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	SubmissionReminderCron   string // e.g., "0 9 * * 1" (Monday 9 AM)
	InstitutionSummaryCron   string // e.g., "0 8 * * *" (Daily 8 AM)
	EnableSubmissionReminder bool
	EnableInstitutionSummary bool
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address string
	Token   string
	KVMount string
	KVPath  string
	Enabled bool
}

// LabelConfig holds configuration for the Label registry API client
type LabelConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DocstoreConfig holds document store configuration
type DocstoreConfig struct {
	SigningKey    string // fallback when Vault is disabled
	SignedURLTTL  time.Duration
	MaxUploadSize int64
}

// OutboxConfig holds notification outbox dispatcher configuration
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			TimeoutRead:  getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: getDurationEnv("SERVER_TIMEOUT_WRITE", 15*time.Second),
			TimeoutIdle:  getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "geiq"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "geiq_assessments"),
			SSLMode:         getEnv("DB_SSLMODE", "prefer"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		JWT: JWTConfig{
			PrivateKeyPEM: getEnv("JWT_PRIVATE_KEY", ""),
			Expiration:    getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:     getEnv("SMTP_FROM", "noreply@inclusion.gouv.fr"),
			BaseURL:      getEnv("EMAIL_BASE_URL", "http://localhost:3000"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			ExposedHeaders:   getSliceEnv("CORS_EXPOSED_HEADERS", []string{"Link"}),
			AllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntEnv("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
			Duration: getDurationEnv("RATE_LIMIT_DURATION", 1*time.Minute),
		},
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Name:     getEnv("APP_NAME", "geiq-assessments"),
			Version:  getEnv("APP_VERSION", "1.0.0"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scheduler: SchedulerConfig{
			SubmissionReminderCron:   getEnv("SCHEDULER_SUBMISSION_REMINDER_CRON", "0 9 * * 1"), // Monday 9 AM
			InstitutionSummaryCron:   getEnv("SCHEDULER_INSTITUTION_SUMMARY_CRON", "0 8 * * *"), // Daily 8 AM
			EnableSubmissionReminder: getBoolEnv("SCHEDULER_ENABLE_SUBMISSION_REMINDER", true),
			EnableInstitutionSummary: getBoolEnv("SCHEDULER_ENABLE_INSTITUTION_SUMMARY", true),
		},
		Vault: VaultConfig{
			Address: getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:   getEnv("VAULT_TOKEN", ""),
			KVMount: getEnv("VAULT_KV_MOUNT", "secret"),
			KVPath:  getEnv("VAULT_KV_PATH", "geiq-assessments/docstore"),
			Enabled: getBoolEnv("VAULT_ENABLED", false),
		},
		Label: LabelConfig{
			BaseURL: getEnv("LABEL_API_BASE_URL", "https://www.label-geiq.fr/api/rest"),
			APIKey:  getEnv("LABEL_API_KEY", ""),
			Timeout: getDurationEnv("LABEL_API_TIMEOUT", 30*time.Second),
		},
		Docstore: DocstoreConfig{
			SigningKey:    getEnv("DOCSTORE_SIGNING_KEY", ""),
			SignedURLTTL:  getDurationEnv("DOCSTORE_SIGNED_URL_TTL", 15*time.Minute),
			MaxUploadSize: int64(getIntEnv("DOCSTORE_MAX_UPLOAD_SIZE", 5*1024*1024)),
		},
		Outbox: OutboxConfig{
			PollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 30*time.Second),
			BatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" && c.App.Env == "production" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	if c.App.Env == "production" && c.Label.APIKey == "" {
		return fmt.Errorf("LABEL_API_KEY is required in production")
	}
	if !c.Vault.Enabled && c.Docstore.SigningKey == "" && c.App.Env == "production" {
		return fmt.Errorf("DOCSTORE_SIGNING_KEY is required in production when Vault is disabled")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, v := range parts {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
