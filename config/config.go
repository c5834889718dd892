package config

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backend identifiers accepted by SESSION_BACKEND.
const (
	SessionBackendProvider = "provider"
	SessionBackendToken    = "token"
)

const minTokenSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Routes        RoutesConfig
	Billing       BillingConfig
	Provisioning  ProvisioningConfig
	Frontend      FrontendConfig
	CORS          CORSConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
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
	RequestTimeout  time.Duration
	TrustedProxies  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
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
	InitSchema       bool
}

// RedisConfig holds the session provider connection settings.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SessionConfig controls how session credentials are issued and checked.
type SessionConfig struct {
	Backend            string // provider or token
	CookieName         string
	TTL                time.Duration
	TokenSecret        string
	LoginPath          string
	LandingPath        string
	EnforceEligibility bool
}

// RoutesConfig points at an optional YAML route policy.
type RoutesConfig struct {
	PolicyFile string
}

// BillingConfig holds Stripe settings
type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	PriceIDs      map[string]string // plan type -> Stripe price id
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
	MaxRetries    int
}

// ProvisioningConfig holds the n8n webhook settings
type ProvisioningConfig struct {
	WebhookURL string
	APIKey     string
	Timeout    time.Duration
}

// FrontendConfig describes where page requests go after the gateway lets them through.
type FrontendConfig struct {
	UpstreamURL string
	StaticDir   string
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// AuditConfig sizes the auth event worker pool
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// RateLimitConfig throttles repeated login attempts. Zero attempts disables it.
type RateLimitConfig struct {
	LoginAttempts int
	LoginWindow   time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
	MetricsPort    int
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
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", nil),
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
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "session"),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Session: SessionConfig{
			Backend:            strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendProvider)),
			CookieName:         getEnv("SESSION_COOKIE_NAME", "session-token"),
			TTL:                getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
			TokenSecret:        getEnv("SESSION_TOKEN_SECRET", ""),
			LoginPath:          getEnv("SESSION_LOGIN_PATH", "/login"),
			LandingPath:        getEnv("SESSION_LANDING_PATH", "/dashboard"),
			EnforceEligibility: getEnvAsBool("SESSION_ENFORCE_ELIGIBILITY", true),
		},
		Routes: RoutesConfig{
			PolicyFile: getEnv("ROUTE_POLICY_FILE", ""),
		},
		Billing: BillingConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
			PriceIDs: map[string]string{
				"starter": getEnv("STRIPE_PRICE_STARTER", ""),
				"pro":     getEnv("STRIPE_PRICE_PRO", ""),
			},
			SuccessURL: getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/dashboard?checkout=success"),
			CancelURL:  getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/pricing"),
			Timeout:    getEnvAsDuration("STRIPE_TIMEOUT", 10*time.Second),
			MaxRetries: getEnvAsInt("STRIPE_MAX_RETRIES", 2),
		},
		Provisioning: ProvisioningConfig{
			WebhookURL: getEnv("N8N_WEBHOOK_URL", ""),
			APIKey:     getEnv("N8N_API_KEY", ""),
			Timeout:    getEnvAsDuration("N8N_TIMEOUT", 5*time.Second),
		},
		Frontend: FrontendConfig{
			UpstreamURL: getEnv("FRONTEND_UPSTREAM_URL", ""),
			StaticDir:   getEnv("STATIC_DIR", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
		},
		RateLimit: RateLimitConfig{
			LoginAttempts: getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			LoginWindow:   getEnvAsDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
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

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}

	switch c.Session.Backend {
	case SessionBackendProvider, SessionBackendToken:
	default:
		return fmt.Errorf("unknown session backend %q: use %q or %q",
			c.Session.Backend, SessionBackendProvider, SessionBackendToken)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.Backend == SessionBackendToken || c.IsProduction() {
		if len(c.Session.TokenSecret) < minTokenSecretLength {
			return fmt.Errorf("session token secret must be at least %d bytes", minTokenSecretLength)
		}
	}
	if !strings.HasPrefix(c.Session.LoginPath, "/") || !strings.HasPrefix(c.Session.LandingPath, "/") {
		return fmt.Errorf("session login and landing paths must be absolute")
	}

	if c.IsProduction() && c.Billing.SecretKey != "" && c.Billing.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required in production when billing is enabled")
	}

	if c.Frontend.UpstreamURL != "" {
		if _, err := url.Parse(c.Frontend.UpstreamURL); err != nil {
			return fmt.Errorf("invalid frontend upstream URL: %w", err)
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. Entries are CIDRs or single
// addresses; a bare address is a single-host prefix.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, v := range s.TrustedProxies {
		v = strings.TrimSpace(v)
		if strings.Contains(v, "/") {
			prefix, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// SecureCookies reports whether session cookies carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.IsProduction() || c.Server.TLS.Enabled
}

// BillingEnabled reports whether a Stripe key is configured.
func (c *Config) BillingEnabled() bool {
	return c.Billing.SecretKey != ""
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
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			InitSchema:       getEnvAsBool("DB_INIT_SCHEMA", false),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "dev_password"),
		Database:        getEnv("DB_NAME", "gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", false),
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

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
