package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds application configuration
type Config struct {
	Port            int
	Database        DatabaseConfig
	JWTSecret       string
	Environment     string
	CORSOrigins     []string
	AllowPrivateIPs bool
	Engine          EngineConfig
	Notify          NotifyConfig

	// HeartbeatRetentionDays is how long non-important heartbeats are kept.
	// 0 keeps them forever.
	HeartbeatRetentionDays int

	// MonitorSyncInterval is how often the scheduler is reconciled with the
	// monitors stored as active.
	MonitorSyncInterval time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres, sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LogLevel     string // silent, error, warn, info
}

// EngineConfig tunes heartbeat recording and probing.
type EngineConfig struct {
	PersistRetryAttempts         int
	PersistRetryBackoff          time.Duration
	PersistRetryMaxBackoff       time.Duration
	ProbeTimeoutGrace            time.Duration
	NotifyMaintenanceTransitions bool
}

// NotifyConfig tunes the notification dispatcher.
type NotifyConfig struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64
	OpsWebhookURL string
}

// LoadEnvFile seeds the environment from a .env file. Variables that are
// already set win. A missing file is not an error unless required.
func LoadEnvFile(path string, required bool) error {
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "production")

	jwtSecret, err := loadJWTSecret(env)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			DSN:          getEnv("DATABASE_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWTSecret:       jwtSecret,
		Environment:     env,
		CORSOrigins:     loadCORSOrigins(env),
		AllowPrivateIPs: getEnvBool("ALLOW_PRIVATE_IPS", false),
		Engine: EngineConfig{
			PersistRetryAttempts:         getEnvInt("PERSIST_RETRY_ATTEMPTS", 5),
			PersistRetryBackoff:          getEnvDuration("PERSIST_RETRY_BACKOFF", 200*time.Millisecond),
			PersistRetryMaxBackoff:       getEnvDuration("PERSIST_RETRY_MAX_BACKOFF", 10*time.Second),
			ProbeTimeoutGrace:            getEnvDuration("PROBE_TIMEOUT_GRACE", 5*time.Second),
			NotifyMaintenanceTransitions: getEnvBool("NOTIFY_MAINTENANCE_TRANSITIONS", true),
		},
		Notify: NotifyConfig{
			Workers:       getEnvInt("NOTIFY_WORKERS", 4),
			QueueSize:     getEnvInt("NOTIFY_QUEUE_SIZE", 1000),
			RatePerSecond: getEnvFloat("NOTIFY_RATE_PER_SECOND", 5),
			OpsWebhookURL: getEnv("OPS_WEBHOOK_URL", ""),
		},
		HeartbeatRetentionDays: getEnvInt("HEARTBEAT_RETENTION_DAYS", 90),
		MonitorSyncInterval:    getEnvDuration("MONITOR_SYNC_INTERVAL", 30*time.Second),
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaultDSN(cfg.Database.Type)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Flags returns the command-line overrides understood by ApplyFlags.
func Flags(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)

	flags.IntP("port", "p", 8080, "HTTP listen port")
	flags.String("database-type", "postgres", "Database type (postgres or sqlite)")
	flags.String("database-dsn", "", "Database connection string or sqlite file path")
	flags.String("env-file", ".env", "Path to a .env file to load before reading the environment")
	flags.BoolP("help", "h", false, "Show help message")

	return flags
}

// ApplyFlags overrides values from flags that were set explicitly and
// validates the result.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) error {
	if flags.Changed("port") {
		port, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		c.Port = port
	}
	if flags.Changed("database-type") {
		typ, err := flags.GetString("database-type")
		if err != nil {
			return err
		}
		if typ != c.Database.Type && !flags.Changed("database-dsn") && os.Getenv("DATABASE_DSN") == "" {
			c.Database.DSN = defaultDSN(typ)
		}
		c.Database.Type = typ
	}
	if flags.Changed("database-dsn") {
		dsn, err := flags.GetString("database-dsn")
		if err != nil {
			return err
		}
		c.Database.DSN = dsn
	}
	return c.Validate()
}

func defaultDSN(dbType string) string {
	if dbType == "sqlite" {
		return getEnv("SQLITE_PATH", "beatkeeper.db")
	}
	return buildPostgresDSN()
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "beatkeeper")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "beatkeeper")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		for _, insecure := range []string{"change-this-secret-in-production", "change-me-in-production", "secret", "password", "changeme"} {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value. Please set a strong random secret")
			}
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN must not be empty")
	}
	switch c.Database.LogLevel {
	case "silent", "error", "warn", "info":
	default:
		return fmt.Errorf("DB_LOG_LEVEL must be one of silent, error, warn, info")
	}

	if c.Engine.PersistRetryAttempts < 1 {
		return fmt.Errorf("PERSIST_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Engine.PersistRetryBackoff <= 0 || c.Engine.PersistRetryMaxBackoff < c.Engine.PersistRetryBackoff {
		return fmt.Errorf("PERSIST_RETRY_MAX_BACKOFF must not be lower than PERSIST_RETRY_BACKOFF")
	}

	if c.Notify.Workers < 1 || c.Notify.QueueSize < 1 {
		return fmt.Errorf("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.Notify.RatePerSecond <= 0 {
		return fmt.Errorf("NOTIFY_RATE_PER_SECOND must be positive")
	}
	if c.Notify.OpsWebhookURL != "" {
		if u, err := url.Parse(c.Notify.OpsWebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("OPS_WEBHOOK_URL must be an http(s) URL")
		}
	}

	if c.HeartbeatRetentionDays < 0 {
		return fmt.Errorf("HEARTBEAT_RETENTION_DAYS must not be negative")
	}
	if c.MonitorSyncInterval < time.Second {
		return fmt.Errorf("MONITOR_SYNC_INTERVAL must be at least 1s")
	}

	return nil
}

func loadJWTSecret(env string) (string, error) {
	secret := os.Getenv("JWT_SECRET")

	// If JWT_SECRET is not set, generate a random one for development
	if secret == "" {
		if env == "production" {
			return "", fmt.Errorf("JWT_SECRET environment variable is required in production")
		}

		log.Println("WARNING: JWT_SECRET not set. Generating random secret for development.")
		log.Println("WARNING: This secret will change on restart. Set JWT_SECRET in production!")
		return generateRandomSecret()
	}

	if len(secret) < 16 {
		return "", fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}

	return secret, nil
}

func loadCORSOrigins(env string) []string {
	if appURL := getAppURL(); appURL != "" {
		return splitAndTrim(appURL, ",")
	}

	if env != "development" {
		log.Println("WARNING: APP_URL not set. Using default localhost origins.")
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimRight(strings.TrimSpace(part), "/"); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("WARNING: %s=%q is not an integer, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("WARNING: %s=%q is not a number, using %g", key, value, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("WARNING: %s=%q is not a boolean, using %v", key, value, fallback)
	}
	return fallback
}

// getEnvDuration accepts Go durations ("500ms", "2s") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("WARNING: %s=%q is not a duration, using %s", key, value, fallback)
	return fallback
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func getAppURL() string {
	return strings.TrimRight(os.Getenv("APP_URL"), "/")
}
