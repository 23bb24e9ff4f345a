package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Guest policies applied by the HTTP layer when a presented token is rejected.
const (
	GuestPolicyFailClosed = "fail_closed"
	GuestPolicyFailOpen   = "fail_open"
)

// Authentication providers.
const (
	ProviderCognito = "cognito"
	ProviderFake    = "fake"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Storage       string
	Database      DatabaseConfig
	Cognito       CognitoConfig
	JWKS          JWKSConfig
	Auth          AuthConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AutoMigrate      bool
}

// CognitoConfig holds AWS Cognito user pool configuration
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	// Endpoint overrides the regional Identity Provider API URL (local emulators)
	Endpoint string
	// Issuer overrides the issuer derived from region and pool
	Issuer  string
	Timeout time.Duration
}

// JWKSConfig tunes the signing key cache
type JWKSConfig struct {
	CacheTTL           time.Duration
	MinRefreshInterval time.Duration
	MaxStaleness       time.Duration
	HTTPTimeout        time.Duration
}

// AuthConfig holds authentication and authorization settings
type AuthConfig struct {
	Provider      string
	GuestPolicy   string
	LinkCacheSize int
	LinkCacheTTL  time.Duration
}

// RedisConfig configures the optional shared key-set cache
type RedisConfig struct {
	URL string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Storage:  strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
		Database: loadDatabaseConfig(),
		Cognito: CognitoConfig{
			Region:       getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:   getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:     getEnv("COGNITO_CLIENT_ID", ""),
			ClientSecret: getEnv("COGNITO_CLIENT_SECRET", ""),
			Endpoint:     getEnv("COGNITO_ENDPOINT", ""),
			Issuer:       getEnv("COGNITO_ISSUER", ""),
			Timeout:      getEnvAsDuration("COGNITO_TIMEOUT", 10*time.Second),
		},
		JWKS: JWKSConfig{
			CacheTTL:           getEnvAsDuration("JWKS_CACHE_TTL", time.Hour),
			MinRefreshInterval: getEnvAsDuration("JWKS_MIN_REFRESH_INTERVAL", 30*time.Second),
			MaxStaleness:       getEnvAsDuration("JWKS_MAX_STALENESS", 24*time.Hour),
			HTTPTimeout:        getEnvAsDuration("JWKS_HTTP_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			Provider:      strings.ToLower(getEnv("AUTH_PROVIDER", ProviderCognito)),
			GuestPolicy:   strings.ToLower(getEnv("AUTH_GUEST_POLICY", GuestPolicyFailClosed)),
			LinkCacheSize: getEnvAsInt("AUTH_LINK_CACHE_SIZE", 10000),
			LinkCacheTTL:  getEnvAsDuration("AUTH_LINK_CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory storage is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}

	switch c.Auth.Provider {
	case ProviderCognito:
		if c.Cognito.UserPoolID == "" {
			return fmt.Errorf("cognito user pool ID is required")
		}
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required")
		}
		if c.Cognito.Region == "" {
			return fmt.Errorf("cognito region is required")
		}
	case ProviderFake:
		if c.IsProduction() {
			return fmt.Errorf("fake auth provider is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown auth provider %q", c.Auth.Provider)
	}

	switch c.Auth.GuestPolicy {
	case GuestPolicyFailClosed, GuestPolicyFailOpen:
	default:
		return fmt.Errorf("auth guest policy must be %s or %s, got %q",
			GuestPolicyFailClosed, GuestPolicyFailOpen, c.Auth.GuestPolicy)
	}

	if c.JWKS.CacheTTL <= 0 || c.JWKS.HTTPTimeout <= 0 {
		return fmt.Errorf("jwks cache ttl and http timeout must be positive")
	}
	if c.JWKS.MinRefreshInterval < 0 {
		return fmt.Errorf("jwks min refresh interval must not be negative")
	}

	if c.Redis.URL != "" {
		if _, err := url.Parse(c.Redis.URL); err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "identity")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "identity")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
