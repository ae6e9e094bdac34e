package config

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tmercier/keepsake/pkg/auth"
	"github.com/tmercier/keepsake/pkg/observability"
	"github.com/tmercier/keepsake/pkg/storage"
	"github.com/tmercier/keepsake/pkg/token"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Auth configuration
	Auth AuthConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds cookie authentication settings
type AuthConfig struct {
	// Salt is the base64-encoded HMAC salt. Required.
	Salt string

	CookieName         string
	PasswordCookieName string
	Field              string
	Lifetime           time.Duration
	Algorithm          string

	CookiePath   string
	CookieDomain string
	Secure       bool
	HTTPOnly     bool
	SameSite     string // lax, strict or none

	BcryptCost           int
	RandomPasswordLength int
	SlideWindow          bool

	// Login throttling
	RateLimitEnabled  bool
	RateLimitAttempts int
	RateLimitWindow   time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool

	// Audit trail
	AuditToDatabase bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by KEEPSAKE_CONFIG_FILE, and KEEPSAKE_* environment variables, in
// that order. Validation failures (including an unsupported HMAC
// algorithm) surface here rather than at first request.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("KEEPSAKE_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			CookieName:           auth.DefaultCookieName,
			PasswordCookieName:   auth.DefaultPasswordCookieName,
			Field:                auth.DefaultField,
			Lifetime:             auth.DefaultLifetime,
			Algorithm:            token.DefaultAlgorithm,
			CookiePath:           "/",
			HTTPOnly:             true,
			SameSite:             "lax",
			BcryptCost:           token.DefaultBcryptCost,
			RandomPasswordLength: token.DefaultRandomPasswordLength,
			SlideWindow:          true,
			RateLimitEnabled:     false,
			RateLimitAttempts:    10,
			RateLimitWindow:      time.Minute,
		},
		Storage: storage.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "keepsake",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// fileConfig mirrors Config for YAML parsing. Durations are strings so
// the file can say "48h" instead of nanosecond counts.
type fileConfig struct {
	Server struct {
		Host            string `yaml:"host"`
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Auth struct {
		Salt                 string `yaml:"salt"`
		CookieName           string `yaml:"cookie_name"`
		PasswordCookieName   string `yaml:"password_cookie_name"`
		Field                string `yaml:"field"`
		Lifetime             string `yaml:"lifetime"`
		Algorithm            string `yaml:"algorithm"`
		CookiePath           string `yaml:"cookie_path"`
		CookieDomain         string `yaml:"cookie_domain"`
		Secure               *bool  `yaml:"secure"`
		HTTPOnly             *bool  `yaml:"httponly"`
		SameSite             string `yaml:"samesite"`
		BcryptCost           int    `yaml:"bcrypt_cost"`
		RandomPasswordLength int    `yaml:"random_password_length"`
		SlideWindow          *bool  `yaml:"slide_window"`
		RateLimitEnabled     *bool  `yaml:"ratelimit_enabled"`
		RateLimitAttempts    int    `yaml:"ratelimit_attempts"`
		RateLimitWindow      string `yaml:"ratelimit_window"`
	} `yaml:"auth"`
	Storage struct {
		Type             string `yaml:"type"`
		SQLitePath       string `yaml:"sqlite_path"`
		PostgresURL      string `yaml:"postgres_url"`
		PostgresMaxConns int    `yaml:"postgres_max_conns"`
		RedisURL         string `yaml:"redis_url"`
		CleanupSchedule  string `yaml:"cleanup_schedule"`
		CleanupRetention string `yaml:"cleanup_retention"`
		CacheEnabled     *bool  `yaml:"cache_enabled"`
		CacheSize        int    `yaml:"cache_size"`
		CacheTTL         string `yaml:"cache_ttl"`
	} `yaml:"storage"`
	Observability struct {
		LogLevel           string `yaml:"log_level"`
		MetricsEnabled     *bool  `yaml:"metrics_enabled"`
		AuditToDatabase    *bool  `yaml:"audit_to_database"`
		OTelEnabled        *bool  `yaml:"otel_enabled"`
		OTelEndpoint       string `yaml:"otel_endpoint"`
		OTelServiceName    string `yaml:"otel_service_name"`
		OTelServiceVersion string `yaml:"otel_service_version"`
		OTelInsecure       *bool  `yaml:"otel_insecure"`
	} `yaml:"observability"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.Server.Host, file.Server.Host)
	setString(&c.Server.Port, file.Server.Port)
	setDuration(&c.Server.ReadTimeout, file.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, file.Server.WriteTimeout)
	setDuration(&c.Server.IdleTimeout, file.Server.IdleTimeout)
	setDuration(&c.Server.ShutdownTimeout, file.Server.ShutdownTimeout)

	setString(&c.Auth.Salt, file.Auth.Salt)
	setString(&c.Auth.CookieName, file.Auth.CookieName)
	setString(&c.Auth.PasswordCookieName, file.Auth.PasswordCookieName)
	setString(&c.Auth.Field, file.Auth.Field)
	setDuration(&c.Auth.Lifetime, file.Auth.Lifetime)
	setString(&c.Auth.Algorithm, file.Auth.Algorithm)
	setString(&c.Auth.CookiePath, file.Auth.CookiePath)
	setString(&c.Auth.CookieDomain, file.Auth.CookieDomain)
	setBool(&c.Auth.Secure, file.Auth.Secure)
	setBool(&c.Auth.HTTPOnly, file.Auth.HTTPOnly)
	setString(&c.Auth.SameSite, file.Auth.SameSite)
	setInt(&c.Auth.BcryptCost, file.Auth.BcryptCost)
	setInt(&c.Auth.RandomPasswordLength, file.Auth.RandomPasswordLength)
	setBool(&c.Auth.SlideWindow, file.Auth.SlideWindow)
	setBool(&c.Auth.RateLimitEnabled, file.Auth.RateLimitEnabled)
	setInt(&c.Auth.RateLimitAttempts, file.Auth.RateLimitAttempts)
	setDuration(&c.Auth.RateLimitWindow, file.Auth.RateLimitWindow)

	setString(&c.Storage.Type, file.Storage.Type)
	setString(&c.Storage.SQLitePath, file.Storage.SQLitePath)
	setString(&c.Storage.PostgresURL, file.Storage.PostgresURL)
	setInt(&c.Storage.PostgresMaxConns, file.Storage.PostgresMaxConns)
	setString(&c.Storage.RedisURL, file.Storage.RedisURL)
	setString(&c.Storage.CleanupSchedule, file.Storage.CleanupSchedule)
	setDuration(&c.Storage.CleanupRetention, file.Storage.CleanupRetention)
	setBool(&c.Storage.CacheEnabled, file.Storage.CacheEnabled)
	setInt(&c.Storage.CacheSize, file.Storage.CacheSize)
	setDuration(&c.Storage.CacheTTL, file.Storage.CacheTTL)

	setString(&c.Observability.LogLevel, file.Observability.LogLevel)
	setBool(&c.Observability.MetricsEnabled, file.Observability.MetricsEnabled)
	setBool(&c.Observability.AuditToDatabase, file.Observability.AuditToDatabase)
	setBool(&c.Observability.OTelEnabled, file.Observability.OTelEnabled)
	setString(&c.Observability.OTelEndpoint, file.Observability.OTelEndpoint)
	setString(&c.Observability.OTelServiceName, file.Observability.OTelServiceName)
	setString(&c.Observability.OTelServiceVersion, file.Observability.OTelServiceVersion)
	setBool(&c.Observability.OTelInsecure, file.Observability.OTelInsecure)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func (c *Config) loadEnv() {
	// Server
	c.Server.Host = getEnv("KEEPSAKE_HOST", c.Server.Host)
	c.Server.Port = getEnv("KEEPSAKE_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("KEEPSAKE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("KEEPSAKE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("KEEPSAKE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("KEEPSAKE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Auth
	c.Auth.Salt = getEnv("KEEPSAKE_SALT", c.Auth.Salt)
	c.Auth.CookieName = getEnv("KEEPSAKE_COOKIE_NAME", c.Auth.CookieName)
	c.Auth.PasswordCookieName = getEnv("KEEPSAKE_PASSWORD_COOKIE_NAME", c.Auth.PasswordCookieName)
	c.Auth.Field = getEnv("KEEPSAKE_CREDENTIAL_FIELD", c.Auth.Field)
	c.Auth.Lifetime = getEnvDuration("KEEPSAKE_SESSION_LIFETIME", c.Auth.Lifetime)
	c.Auth.Algorithm = getEnv("KEEPSAKE_ALGORITHM", c.Auth.Algorithm)
	c.Auth.CookiePath = getEnv("KEEPSAKE_COOKIE_PATH", c.Auth.CookiePath)
	c.Auth.CookieDomain = getEnv("KEEPSAKE_COOKIE_DOMAIN", c.Auth.CookieDomain)
	c.Auth.Secure = getEnvBool("KEEPSAKE_COOKIE_SECURE", c.Auth.Secure)
	c.Auth.HTTPOnly = getEnvBool("KEEPSAKE_COOKIE_HTTPONLY", c.Auth.HTTPOnly)
	c.Auth.SameSite = getEnv("KEEPSAKE_COOKIE_SAMESITE", c.Auth.SameSite)
	c.Auth.BcryptCost = getEnvInt("KEEPSAKE_BCRYPT_COST", c.Auth.BcryptCost)
	c.Auth.RandomPasswordLength = getEnvInt("KEEPSAKE_RANDOM_PASSWORD_LENGTH", c.Auth.RandomPasswordLength)
	c.Auth.SlideWindow = getEnvBool("KEEPSAKE_SLIDE_WINDOW", c.Auth.SlideWindow)
	c.Auth.RateLimitEnabled = getEnvBool("KEEPSAKE_RATELIMIT_ENABLED", c.Auth.RateLimitEnabled)
	c.Auth.RateLimitAttempts = getEnvInt("KEEPSAKE_RATELIMIT_ATTEMPTS", c.Auth.RateLimitAttempts)
	c.Auth.RateLimitWindow = getEnvDuration("KEEPSAKE_RATELIMIT_WINDOW", c.Auth.RateLimitWindow)

	// Storage
	c.Storage.Type = getEnv("KEEPSAKE_STORAGE_TYPE", c.Storage.Type)
	c.Storage.SQLitePath = getEnv("KEEPSAKE_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.PostgresURL = getEnv("KEEPSAKE_POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.PostgresMaxConns = getEnvInt("KEEPSAKE_POSTGRES_MAX_CONNS", c.Storage.PostgresMaxConns)
	c.Storage.RedisURL = getEnv("KEEPSAKE_REDIS_URL", c.Storage.RedisURL)
	c.Storage.CleanupSchedule = getEnv("KEEPSAKE_CLEANUP_SCHEDULE", c.Storage.CleanupSchedule)
	c.Storage.CleanupRetention = getEnvDuration("KEEPSAKE_CLEANUP_RETENTION", c.Storage.CleanupRetention)
	c.Storage.CacheEnabled = getEnvBool("KEEPSAKE_CACHE_ENABLED", c.Storage.CacheEnabled)
	c.Storage.CacheSize = getEnvInt("KEEPSAKE_CACHE_SIZE", c.Storage.CacheSize)
	c.Storage.CacheTTL = getEnvDuration("KEEPSAKE_CACHE_TTL", c.Storage.CacheTTL)

	// Observability
	c.Observability.LogLevel = getEnv("KEEPSAKE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("KEEPSAKE_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.AuditToDatabase = getEnvBool("KEEPSAKE_AUDIT_TO_DATABASE", c.Observability.AuditToDatabase)
	c.Observability.OTelEnabled = getEnvBool("KEEPSAKE_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("KEEPSAKE_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("KEEPSAKE_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("KEEPSAKE_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("KEEPSAKE_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Auth.Salt == "" {
		return fmt.Errorf("auth salt is required (KEEPSAKE_SALT, base64)")
	}
	if _, err := c.SaltBytes(); err != nil {
		return err
	}

	supported := false
	for _, algorithm := range token.SupportedAlgorithms() {
		if c.Auth.Algorithm == algorithm {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported HMAC algorithm: %q (supported: %s)",
			c.Auth.Algorithm, strings.Join(token.SupportedAlgorithms(), ", "))
	}

	switch strings.ToLower(c.Auth.SameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid samesite mode: %q (must be lax, strict, or none)", c.Auth.SameSite)
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// SaltBytes decodes the base64 HMAC salt
func (c *Config) SaltBytes() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(c.Auth.Salt)
	if err != nil {
		return nil, fmt.Errorf("auth salt must be base64: %w", err)
	}
	return salt, nil
}

// AuthOptions converts the auth section to authenticator options
func (c *Config) AuthOptions() auth.Options {
	return auth.Options{
		Name:                 c.Auth.CookieName,
		Field:                c.Auth.Field,
		Lifetime:             c.Auth.Lifetime,
		Algorithm:            c.Auth.Algorithm,
		Path:                 c.Auth.CookiePath,
		Domain:               c.Auth.CookieDomain,
		Secure:               c.Auth.Secure,
		HTTPOnly:             c.Auth.HTTPOnly,
		SameSite:             parseSameSite(c.Auth.SameSite),
		PasswordCookieName:   c.Auth.PasswordCookieName,
		BcryptCost:           c.Auth.BcryptCost,
		RandomPasswordLength: c.Auth.RandomPasswordLength,
	}
}

// LogLevel converts the configured level to an observability.LogLevel
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(strings.ToLower(c.Observability.LogLevel))
}

func parseSameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
