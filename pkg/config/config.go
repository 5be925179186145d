package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/storage/postgres"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Invites       InvitesConfig       `yaml:"invites"`
	Tenant        TenantConfig        `yaml:"tenant"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds the limiter backend. An empty URL selects the
// in-process limiter.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// InvitesConfig holds invitation settings
type InvitesConfig struct {
	// BaseURL is the application URL accept links point at
	BaseURL      string `yaml:"base_url"`
	HourlyLimit  int    `yaml:"hourly_limit"`
	PurgeEnabled bool   `yaml:"purge_enabled"`
	// PurgeSchedule is a standard five-field cron expression
	PurgeSchedule string `yaml:"purge_schedule"`
}

// TenantConfig controls organization selection
type TenantConfig struct {
	RequireExplicitOrg bool   `yaml:"require_explicit_org"`
	SelectorHeader     string `yaml:"selector_header"`
}

// AuthConfig holds the identity token settings
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
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
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:    20,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{PoolSize: 10},
		Invites: InvitesConfig{
			BaseURL:       "http://localhost:3000",
			HourlyLimit:   50,
			PurgeEnabled:  true,
			PurgeSchedule: "17 * * * *",
		},
		Tenant: TenantConfig{SelectorHeader: "X-Organization"},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "affiliate-orgs",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads defaults, then the YAML file named by
// AFFILIATE_CONFIG_FILE, then AFFILIATE_* environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("AFFILIATE_CONFIG_FILE", ""); path != "" {
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

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("AFFILIATE_HOST", s.Host)
	s.Port = getEnv("AFFILIATE_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("AFFILIATE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("AFFILIATE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("AFFILIATE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("AFFILIATE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("AFFILIATE_HEALTH_PORT", s.HealthPort)

	db := &c.Database
	db.URL = getEnv("AFFILIATE_POSTGRES_URL", db.URL)
	if replicas := getEnv("AFFILIATE_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		db.ReplicaURLs = postgres.ParseReplicaURLs(replicas)
	}
	db.MaxConns = getEnvInt("AFFILIATE_POSTGRES_MAX_CONNS", db.MaxConns)
	db.MinConns = getEnvInt("AFFILIATE_POSTGRES_MIN_CONNS", db.MinConns)
	db.Timeout = getEnvDuration("AFFILIATE_POSTGRES_TIMEOUT", db.Timeout)

	r := &c.Redis
	r.URL = getEnv("AFFILIATE_REDIS_URL", r.URL)
	r.Password = getEnv("AFFILIATE_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("AFFILIATE_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("AFFILIATE_REDIS_POOL_SIZE", r.PoolSize)

	inv := &c.Invites
	inv.BaseURL = getEnv("AFFILIATE_INVITE_BASE_URL", inv.BaseURL)
	inv.HourlyLimit = getEnvInt("AFFILIATE_INVITE_HOURLY_LIMIT", inv.HourlyLimit)
	inv.PurgeEnabled = getEnvBool("AFFILIATE_INVITE_PURGE_ENABLED", inv.PurgeEnabled)
	inv.PurgeSchedule = getEnv("AFFILIATE_INVITE_PURGE_SCHEDULE", inv.PurgeSchedule)

	c.Tenant.RequireExplicitOrg = getEnvBool("AFFILIATE_TENANT_REQUIRE_EXPLICIT_ORG", c.Tenant.RequireExplicitOrg)
	c.Tenant.SelectorHeader = getEnv("AFFILIATE_TENANT_SELECTOR_HEADER", c.Tenant.SelectorHeader)

	c.Auth.JWTSecret = getEnv("AFFILIATE_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("AFFILIATE_JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.JWTAudience = getEnv("AFFILIATE_JWT_AUDIENCE", c.Auth.JWTAudience)

	o := &c.Observability
	o.LogLevel = getEnv("AFFILIATE_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("AFFILIATE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("AFFILIATE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("AFFILIATE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("AFFILIATE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("AFFILIATE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("AFFILIATE_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("AFFILIATE_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return errors.New("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("postgres max connections must be positive")
	}

	if u, err := url.Parse(c.Invites.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid invite base URL: %q", c.Invites.BaseURL)
	}
	if c.Invites.HourlyLimit < 0 {
		return errors.New("invite hourly limit must not be negative")
	}
	if c.Invites.PurgeEnabled {
		if _, err := cron.ParseStandard(c.Invites.PurgeSchedule); err != nil {
			return fmt.Errorf("invalid invite purge schedule %q: %w", c.Invites.PurgeSchedule, err)
		}
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// PoolConfig converts the database section for postgres.Open
func (c *Config) PoolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		PrimaryURL:  c.Database.URL,
		ReplicaURLs: c.Database.ReplicaURLs,
		MaxConns:    c.Database.MaxConns,
		MinConns:    c.Database.MinConns,
		Timeout:     c.Database.Timeout,
		MaxLifetime: c.Database.MaxLifetime,
		MaxIdleTime: c.Database.MaxIdleTime,
	}
}

// OTelConfig converts the observability section for observability.InitOTel
func (c *Config) OTelConfig() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
