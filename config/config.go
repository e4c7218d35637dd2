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

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Authority     AuthorityConfig
	Session       SessionConfig
	Policy        PolicyConfig
	AuditDatabase *DatabaseConfig // Optional: sign-in audit trail. When nil, auditing is disabled.
	Audit         AuditConfig
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
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// AuthorityConfig holds the trusted identity authority (Azure AD / Entra ID) settings
type AuthorityConfig struct {
	Instance    string // e.g. https://login.microsoftonline.com
	TenantID    string
	ClientID    string
	MetadataTTL time.Duration // 0 keeps resolved metadata for the process lifetime
	HTTPTimeout time.Duration
}

// SessionConfig holds settings for the application session credential
type SessionConfig struct {
	SigningSecret   string
	ExpirationHours int
	Issuer          string
}

// PolicyConfig holds the organizational policy applied after token verification
type PolicyConfig struct {
	AllowedDomains     []string
	ExpectedTenantID   string
	MaxTokenAgeMinutes int
	RequiredAuthMethod string
}

// DatabaseConfig holds PostgreSQL connection settings for the audit store
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuditConfig sizes the asynchronous audit pipeline
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Authority: AuthorityConfig{
			Instance:    getEnv("AZURE_AD_INSTANCE", "https://login.microsoftonline.com"),
			TenantID:    getEnv("AZURE_AD_TENANT_ID", ""),
			ClientID:    getEnv("AZURE_AD_CLIENT_ID", ""),
			MetadataTTL: getEnvAsDuration("AUTHORITY_METADATA_TTL", 24*time.Hour),
			HTTPTimeout: getEnvAsDuration("AUTHORITY_HTTP_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			SigningSecret:   getEnv("SESSION_SIGNING_SECRET", ""),
			ExpirationHours: getEnvAsInt("SESSION_EXPIRATION_HOURS", 8),
			Issuer:          getEnv("SESSION_ISSUER", "sso-gateway"),
		},
		Policy: PolicyConfig{
			AllowedDomains:     getEnvAsSlice("ALLOWED_DOMAINS", nil),
			ExpectedTenantID:   getEnv("EXPECTED_TENANT_ID", ""),
			MaxTokenAgeMinutes: getEnvAsInt("MAX_TOKEN_AGE_MINUTES", 60),
			RequiredAuthMethod: getEnv("REQUIRED_AUTH_METHOD", ""),
		},
		AuditDatabase: loadAuditDatabaseConfig(),
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 4),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// Missing authority settings and an undersized signing secret are not
// startup errors: they surface per request as configuration failures.
func (c *Config) Validate() error {
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Session.ExpirationHours <= 0 {
		return fmt.Errorf("session expiration hours must be positive, got %d", c.Session.ExpirationHours)
	}
	if c.Policy.MaxTokenAgeMinutes < 0 {
		return fmt.Errorf("max token age minutes must not be negative, got %d", c.Policy.MaxTokenAgeMinutes)
	}
	if c.Authority.Instance != "" {
		if _, err := url.ParseRequestURI(c.Authority.Instance); err != nil {
			return fmt.Errorf("invalid authority instance URL: %w", err)
		}
	}
	if c.Audit.WorkerCount <= 0 {
		return fmt.Errorf("audit worker count must be positive")
	}
	return nil
}

// Warnings lists settings that leave parts of the gateway unusable at request time
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Authority.TenantID == "" {
		warnings = append(warnings, "AZURE_AD_TENANT_ID is not set: SSO validation will fail")
	}
	if c.Authority.ClientID == "" {
		warnings = append(warnings, "AZURE_AD_CLIENT_ID is not set: SSO validation will fail")
	}
	if len(c.Session.SigningSecret) < 32 {
		warnings = append(warnings, "SESSION_SIGNING_SECRET is shorter than 32 bytes: session minting will fail")
	}
	if c.AuditDatabase == nil {
		warnings = append(warnings, "AUDIT_DATABASE_URL is not set: sign-in auditing disabled")
	}
	return warnings
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// SessionTTL returns the lifetime of a minted session credential
func (c *SessionConfig) SessionTTL() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

// MaxTokenAge returns the token freshness limit as a duration
func (c *PolicyConfig) MaxTokenAge() time.Duration {
	return time.Duration(c.MaxTokenAgeMinutes) * time.Minute
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil {
		return "host=<from AUDIT_DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

// loadAuditDatabaseConfig loads audit DB config from AUDIT_DATABASE_URL.
// Returns nil when not set.
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("AUDIT_DATABASE_URL", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
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

// getEnvAsSlice splits a comma-separated value, dropping empty entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
