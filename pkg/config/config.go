package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/taskdesk/pkg/observability"
)

// minSigningKeyLength is the shortest HMAC key accepted for access tokens
const minSigningKeyLength = 32

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Auth configuration (token signing, password hashing)
	Auth AuthConfig `yaml:"auth"`

	// Uploads configuration (profile pictures)
	Uploads UploadsConfig `yaml:"uploads"`

	// Redis configuration, optional
	Redis RedisConfig `yaml:"redis"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	// Bootstrap seeds an admin account on first start
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	// Largest accepted JSON request body. Picture uploads use uploads.max_bytes.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for probes)
	HealthPort string `yaml:"health_port"`

	// Origins allowed by the CORS middleware. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Take the client IP from X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that sets them.
	TrustProxy bool `yaml:"trust_proxy"`
}

// DatabaseConfig holds relational store settings
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"` // postgres or sqlite3
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	SigningKey     string        `yaml:"signing_key"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	BcryptCost     int           `yaml:"bcrypt_cost"`

	// Credential endpoint rate limit, per client IP
	LoginRateLimit  int           `yaml:"login_rate_limit"`
	LoginRateWindow time.Duration `yaml:"login_rate_window"`

	// Size of the verified access token cache, 0 disables it
	TokenCacheSize int `yaml:"token_cache_size"`
}

// UploadsConfig holds profile picture storage settings
type UploadsConfig struct {
	Backend  string `yaml:"backend"` // filesystem or s3
	Dir      string `yaml:"dir"`
	Prefix   string `yaml:"prefix"`
	MaxBytes int64  `yaml:"max_bytes"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// BootstrapConfig describes the initial admin account
type BootstrapConfig struct {
	AdminUsername   string `yaml:"admin_username"`
	AdminPassword   string `yaml:"admin_password"`
	AdminDepartment string `yaml:"admin_department"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return parseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			URL:          "postgres://localhost:5432/taskdesk?sslmode=disable",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
			Timeout:      10 * time.Second,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			Issuer:          "taskdesk",
			BcryptCost:      10,
			LoginRateLimit:  10,
			LoginRateWindow: time.Minute,
			TokenCacheSize:  1024,
		},
		Uploads: UploadsConfig{
			Backend:  "filesystem",
			Dir:      "wwwroot/uploads/profile-pictures",
			Prefix:   "uploads/profile-pictures",
			MaxBytes: 5 << 20,
			S3Region: "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "taskdesk",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
		Bootstrap: BootstrapConfig{
			AdminDepartment: "Administration",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path and TASKDESK_* environment variables, in that order.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file onto c
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with environment variables. Current values act as defaults.
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("TASKDESK_HOST", s.Host)
	s.Port = getEnv("TASKDESK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TASKDESK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TASKDESK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TASKDESK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TASKDESK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.RequestTimeout = getEnvDuration("TASKDESK_REQUEST_TIMEOUT", s.RequestTimeout)
	s.MaxBodyBytes = getEnvInt64("TASKDESK_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("TASKDESK_HEALTH_PORT", s.HealthPort)
	s.AllowedOrigins = getEnvList("TASKDESK_ALLOWED_ORIGINS", s.AllowedOrigins)
	s.TrustProxy = getEnvBool("TASKDESK_TRUST_PROXY", s.TrustProxy)

	d := &c.Database
	d.Driver = getEnv("TASKDESK_DB_DRIVER", d.Driver)
	d.URL = getEnv("TASKDESK_DB_URL", d.URL)
	d.MaxOpenConns = getEnvInt("TASKDESK_DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("TASKDESK_DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLife = getEnvDuration("TASKDESK_DB_CONN_MAX_LIFETIME", d.ConnMaxLife)
	d.Timeout = getEnvDuration("TASKDESK_DB_TIMEOUT", d.Timeout)

	a := &c.Auth
	a.SigningKey = getEnv("TASKDESK_JWT_SIGNING_KEY", a.SigningKey)
	a.AccessTokenTTL = getEnvDuration("TASKDESK_ACCESS_TOKEN_TTL", a.AccessTokenTTL)
	a.Issuer = getEnv("TASKDESK_JWT_ISSUER", a.Issuer)
	a.Audience = getEnv("TASKDESK_JWT_AUDIENCE", a.Audience)
	a.BcryptCost = getEnvInt("TASKDESK_BCRYPT_COST", a.BcryptCost)
	a.LoginRateLimit = getEnvInt("TASKDESK_LOGIN_RATE_LIMIT", a.LoginRateLimit)
	a.LoginRateWindow = getEnvDuration("TASKDESK_LOGIN_RATE_WINDOW", a.LoginRateWindow)
	a.TokenCacheSize = getEnvInt("TASKDESK_TOKEN_CACHE_SIZE", a.TokenCacheSize)

	u := &c.Uploads
	u.Backend = getEnv("TASKDESK_UPLOADS_BACKEND", u.Backend)
	u.Dir = getEnv("TASKDESK_UPLOADS_DIR", u.Dir)
	u.Prefix = getEnv("TASKDESK_UPLOADS_PREFIX", u.Prefix)
	u.MaxBytes = getEnvInt64("TASKDESK_UPLOADS_MAX_BYTES", u.MaxBytes)
	u.S3Endpoint = getEnv("TASKDESK_S3_ENDPOINT", u.S3Endpoint)
	u.S3Region = getEnv("TASKDESK_S3_REGION", u.S3Region)
	u.S3Bucket = getEnv("TASKDESK_S3_BUCKET", u.S3Bucket)
	u.S3AccessKey = getEnv("TASKDESK_S3_ACCESS_KEY", u.S3AccessKey)
	u.S3SecretKey = getEnv("TASKDESK_S3_SECRET_KEY", u.S3SecretKey)
	u.S3UsePathStyle = getEnvBool("TASKDESK_S3_USE_PATH_STYLE", u.S3UsePathStyle)

	r := &c.Redis
	r.URL = getEnv("TASKDESK_REDIS_URL", r.URL)
	r.Password = getEnv("TASKDESK_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("TASKDESK_REDIS_DB", r.DB)

	o := &c.Observability
	o.LogLevel = getEnv("TASKDESK_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TASKDESK_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TASKDESK_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TASKDESK_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TASKDESK_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TASKDESK_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TASKDESK_OTEL_INSECURE", o.OTelInsecure)

	b := &c.Bootstrap
	b.AdminUsername = getEnv("TASKDESK_ADMIN_USERNAME", b.AdminUsername)
	b.AdminPassword = getEnv("TASKDESK_ADMIN_PASSWORD", b.AdminPassword)
	b.AdminDepartment = getEnv("TASKDESK_ADMIN_DEPARTMENT", b.AdminDepartment)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max body bytes must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if len(c.Auth.SigningKey) < minSigningKeyLength {
		return fmt.Errorf("JWT signing key must be at least %d bytes", minSigningKeyLength)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	switch c.Uploads.Backend {
	case "filesystem":
		if c.Uploads.Dir == "" {
			return fmt.Errorf("uploads dir is required for filesystem uploads")
		}
	case "s3":
		if c.Uploads.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 uploads")
		}
	default:
		return fmt.Errorf("invalid uploads backend: %s (must be filesystem or s3)", c.Uploads.Backend)
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads max bytes must be positive")
	}

	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		return fmt.Errorf("bootstrap admin username and password must be set together")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
