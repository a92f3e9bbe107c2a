package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           int
	Environment    string
	Database       DatabaseConfig
	JWTSecret      string
	TriggerKeyHash string
	CORSOrigins    []string
	Log            LogConfig
	Probe          ProbeConfig
	Notify         NotifyConfig

	// CycleSchedule is a cron spec; empty disables the built-in scheduler
	CycleSchedule string
	MonitorsFile  string
	// HistoryRetention bounds ping history age; zero keeps everything
	HistoryRetention time.Duration

	// Warnings collects non-fatal problems found while loading, logged by the caller
	Warnings []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres, sqlite or memory
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// LogConfig controls the zap logger
type LogConfig struct {
	Dir   string
	Level string
}

// ProbeConfig controls the monitoring cycle
type ProbeConfig struct {
	MaxConcurrent    int
	DefaultTimeout   time.Duration
	Grace            time.Duration
	FirstObservation string // notify or suppress
	AllowPrivateIPs  bool
	PingPrivileged   bool
}

// NotifyConfig controls outbound notifications
type NotifyConfig struct {
	RatePerMinute int
	Timeout       time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: getEnv("ENVIRONMENT", "production"),
		Database: DatabaseConfig{
			Type:         strings.ToLower(getEnv("DATABASE_TYPE", "postgres")),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		TriggerKeyHash: os.Getenv("TRIGGER_KEY_HASH"),
		Log: LogConfig{
			Dir:   os.Getenv("LOG_DIR"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Probe: ProbeConfig{
			MaxConcurrent:    getEnvInt("MAX_CONCURRENT_PROBES", 10),
			DefaultTimeout:   getEnvDuration("DEFAULT_PROBE_TIMEOUT", 5*time.Second),
			Grace:            getEnvDuration("PROBE_GRACE", 2*time.Second),
			FirstObservation: strings.ToLower(getEnv("FIRST_OBSERVATION", "notify")),
			AllowPrivateIPs:  getEnvBool("ALLOW_PRIVATE_IPS", true),
			PingPrivileged:   getEnvBool("PING_PRIVILEGED", false),
		},
		Notify: NotifyConfig{
			RatePerMinute: getEnvInt("NOTIFY_RATE_PER_MINUTE", 30),
			Timeout:       getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		CycleSchedule:    getEnvRaw("CYCLE_SCHEDULE", "@every 30s"),
		MonitorsFile:     os.Getenv("MONITORS_FILE"),
		HistoryRetention: getEnvDuration("HISTORY_RETENTION", 90*24*time.Hour),
	}

	cfg.Database.DSN = getEnv("DATABASE_DSN", defaultDSN(cfg.Database.Type))

	secret, err := cfg.loadJWTSecret()
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret
	cfg.CORSOrigins = cfg.loadCORSOrigins()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultDSN(dbType string) string {
	if dbType == "sqlite" {
		return "kabomba.db"
	}
	return buildPostgresDSN()
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "uptime")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "uptime")
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

		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value. Please set a strong random secret")
			}
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	switch c.Database.Type {
	case "postgres", "sqlite":
	case "memory":
		if c.MonitorsFile == "" {
			return fmt.Errorf("MONITORS_FILE is required when DATABASE_TYPE is memory")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Probe.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_PROBES must be at least 1, got %d", c.Probe.MaxConcurrent)
	}
	if c.Probe.DefaultTimeout <= 0 {
		return fmt.Errorf("DEFAULT_PROBE_TIMEOUT must be positive")
	}
	if c.Probe.Grace < 0 {
		return fmt.Errorf("PROBE_GRACE must not be negative")
	}
	if c.Probe.FirstObservation != "notify" && c.Probe.FirstObservation != "suppress" {
		return fmt.Errorf("FIRST_OBSERVATION must be notify or suppress, got %q", c.Probe.FirstObservation)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("HISTORY_RETENTION must not be negative")
	}
	if c.Notify.RatePerMinute < 0 {
		return fmt.Errorf("NOTIFY_RATE_PER_MINUTE must not be negative")
	}

	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) loadJWTSecret() (string, error) {
	secret := os.Getenv("JWT_SECRET")

	// If JWT_SECRET is not set, generate a random one for development
	if secret == "" {
		if c.Environment == "production" {
			return "", fmt.Errorf("JWT_SECRET environment variable is required in production")
		}
		c.Warnings = append(c.Warnings,
			"JWT_SECRET not set, generated a random secret that changes on restart")
		return generateRandomSecret()
	}

	if len(secret) < 16 {
		return "", fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}
	return secret, nil
}

func (c *Config) loadCORSOrigins() []string {
	if appURL := getAppURL(); appURL != "" {
		return []string{appURL}
	}
	if c.Environment != "development" {
		c.Warnings = append(c.Warnings, "APP_URL not set, using default localhost origins")
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvRaw distinguishes an explicitly empty variable from an unset one
func getEnvRaw(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1500ms") or bare milliseconds ("1500")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func getAppURL() string {
	return strings.TrimRight(os.Getenv("APP_URL"), "/")
}
