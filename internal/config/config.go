// Package config loads and validates the team directory configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the TEAMDIR_ prefix (e.g., TEAMDIR_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments, with no recompilation or different binaries needed.
//
// The TEAMDIR_JWT_SECRET variable is read directly by the auth package rather than
// through this file so that token signing works even before configuration loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL used for OAuth callbacks and external redirects.
// When server.public_url is set it is returned as-is; otherwise it falls back to server.base_url.
// This distinction matters in reverse-proxied deployments where the internal listen address
// (base_url) differs from the URL registered with the OAuth provider (public_url).
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional Redis connection used for cluster-wide rate
// limiting. When Address is empty the server falls back to per-instance limits.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds avatar storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	CDNURL        string `mapstructure:"cdn_url"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	// Region is the AWS region
	Region string `mapstructure:"region"`
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	// - "default": Use AWS default credential chain (env vars, shared config, IAM role, etc.)
	// - "static": Use explicit access key and secret key
	// - "oidc": Use Web Identity/OIDC token for authentication (EKS, GitHub Actions, etc.)
	// - "assume_role": Assume an IAM role (optionally with external ID for cross-account)
	AuthMethod string `mapstructure:"auth_method"`

	// Static credentials (when auth_method is "static" or empty for backwards compatibility)
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// AssumeRole configuration (when auth_method is "assume_role" or "oidc")
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`

	// OIDC/Web Identity configuration (when auth_method is "oidc")
	// WebIdentityTokenFile is the path to the OIDC token file (e.g., from EKS or GitHub Actions)
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	// Bucket is the GCS bucket name
	Bucket string `mapstructure:"bucket"`

	// ProjectID is the Google Cloud project ID (optional if using default credentials)
	ProjectID string `mapstructure:"project_id"`

	// Authentication method: "default", "service_account", "workload_identity"
	// - "default": Use Application Default Credentials (ADC) - recommended for GCP-native deployments
	// - "service_account": Use a service account key file
	// - "workload_identity": Use Workload Identity Federation (GKE, GitHub Actions, etc.)
	AuthMethod string `mapstructure:"auth_method"`

	// CredentialsFile is the path to a service account JSON key file
	// (when auth_method is "service_account")
	CredentialsFile string `mapstructure:"credentials_file"`

	// CredentialsJSON is the service account JSON key as a string
	// (alternative to credentials_file, useful for environment variables)
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators or compatible services)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath      string `mapstructure:"base_path"`
	ServeDirectly bool   `mapstructure:"serve_directly"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	OIDC OIDCConfig `mapstructure:"oidc"`
	LDAP LDAPConfig `mapstructure:"ldap"`

	// AdminEmails lists the accounts that receive the full admin scope set
	// at login. Everyone else gets the default member scopes.
	AdminEmails []string `mapstructure:"admin_emails"`
}

// IsAdminEmail reports whether the email is on the configured admin list.
// Comparison is case-insensitive because email local parts rarely are in
// practice and directory imports vary in casing.
func (a *AuthConfig) IsAdminEmail(email string) bool {
	for _, admin := range a.AdminEmails {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

// OIDCConfig holds generic OIDC provider configuration for single sign-on
type OIDCConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// LDAPConfig holds the upstream directory server used by the background user
// sync job. When disabled, users are managed through the admin API only.
type LDAPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// URL is the LDAP server URL (ldap:// or ldaps://)
	URL string `mapstructure:"url"`
	// BindDN and BindPassword authenticate the sync job's service account
	BindDN       string `mapstructure:"bind_dn"`
	BindPassword string `mapstructure:"bind_password"`
	// BaseDN is the subtree searched for user entries
	BaseDN string `mapstructure:"base_dn"`
	// Filter selects user entries (default: (objectClass=inetOrgPerson))
	Filter string `mapstructure:"filter"`
	// SyncInterval is how often the sync job runs
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// DirectoryConfig holds team directory behavior settings
type DirectoryConfig struct {
	// AvatarURLTTL is how long signed avatar download URLs stay valid
	AvatarURLTTL time.Duration `mapstructure:"avatar_url_ttl"`
	// AvatarMaxSizeBytes caps uploaded avatar images (default 5 MiB)
	AvatarMaxSizeBytes int64 `mapstructure:"avatar_max_size_bytes"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.address",
		"redis.password",
		"redis.db",

		// Storage
		"storage.default_backend",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",
		"storage.azure.cdn_url",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.s3.web_identity_token_file",
		"storage.gcs.bucket",
		"storage.gcs.project_id",
		"storage.gcs.auth_method",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",
		"storage.local.base_path",
		"storage.local.serve_directly",

		// Auth
		"auth.oidc.enabled",
		"auth.oidc.issuer_url",
		"auth.oidc.client_id",
		"auth.oidc.client_secret",
		"auth.oidc.redirect_url",
		"auth.oidc.scopes",
		"auth.ldap.enabled",
		"auth.ldap.url",
		"auth.ldap.bind_dn",
		"auth.ldap.bind_password",
		"auth.ldap.base_dn",
		"auth.ldap.filter",
		"auth.ldap.sync_interval",
		"auth.admin_emails",

		// Directory behavior
		"directory.avatar_url_ttl",
		"directory.avatar_max_size_bytes",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/team-directory")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("TEAMDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Auth.OIDC.ClientSecret = expandEnv(cfg.Auth.OIDC.ClientSecret)
	cfg.Auth.LDAP.BindPassword = expandEnv(cfg.Auth.LDAP.BindPassword)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Watch the config file so logging verbosity can change without a restart.
	// Only the logging level is hot-reloaded; everything else needs a restart.
	watchLogLevel(v)

	return &cfg, nil
}

// watchLogLevel re-reads logging.level whenever the config file changes on disk.
// The callback receives raw fsnotify events; editors often produce several per
// save, which is harmless because level changes are idempotent.
func watchLogLevel(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		slog.Debug("config file changed", "file", e.Name, "op", e.Op.String())
		onLevelChange(v.GetString("logging.level"))
	})
	v.WatchConfig()
}

// onLevelChange is swapped in by main.go to point at telemetry.SetLevel.
// A package variable avoids an import cycle between config and telemetry.
var onLevelChange = func(string) {}

// SetLevelChangeHook registers the function called with the new logging.level
// value after a config file reload.
func SetLevelChangeHook(fn func(level string)) {
	if fn != nil {
		onLevelChange = fn
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "team_directory")
	v.SetDefault("database.user", "teamdir")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults (disabled unless an address is configured)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./storage")
	v.SetDefault("storage.local.serve_directly", true)

	// Auth defaults
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("auth.ldap.enabled", false)
	v.SetDefault("auth.ldap.filter", "(objectClass=inetOrgPerson)")
	v.SetDefault("auth.ldap.sync_interval", "1h")

	// Directory defaults
	v.SetDefault("directory.avatar_url_ttl", "15m")
	v.SetDefault("directory.avatar_max_size_bytes", 5*1024*1024)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "team-directory")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate storage backend
	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Storage.DefaultBackend] {
		return fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", c.Storage.DefaultBackend)
	}

	// Validate Azure storage if enabled
	if c.Storage.DefaultBackend == "azure" {
		if c.Storage.Azure.AccountName == "" {
			return fmt.Errorf("storage.azure.account_name is required when using Azure backend")
		}
		if c.Storage.Azure.AccountKey == "" {
			return fmt.Errorf("storage.azure.account_key is required when using Azure backend")
		}
		if c.Storage.Azure.ContainerName == "" {
			return fmt.Errorf("storage.azure.container_name is required when using Azure backend")
		}
	}

	// Validate S3 storage if enabled
	if c.Storage.DefaultBackend == "s3" {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	}

	// Validate GCS storage if enabled
	if c.Storage.DefaultBackend == "gcs" {
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required when using GCS backend")
		}
	}

	// Validate local storage if enabled
	if c.Storage.DefaultBackend == "local" {
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	}

	// Validate OIDC if enabled
	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
	}

	// Validate LDAP if enabled
	if c.Auth.LDAP.Enabled {
		if c.Auth.LDAP.URL == "" {
			return fmt.Errorf("auth.ldap.url is required when LDAP sync is enabled")
		}
		if c.Auth.LDAP.BaseDN == "" {
			return fmt.Errorf("auth.ldap.base_dn is required when LDAP sync is enabled")
		}
		if c.Auth.LDAP.SyncInterval < time.Minute {
			return fmt.Errorf("auth.ldap.sync_interval must be at least 1m, got %s", c.Auth.LDAP.SyncInterval)
		}
	}

	// Validate directory settings
	if c.Directory.AvatarURLTTL <= 0 {
		return fmt.Errorf("directory.avatar_url_ttl must be positive, got %s", c.Directory.AvatarURLTTL)
	}
	if c.Directory.AvatarMaxSizeBytes <= 0 {
		return fmt.Errorf("directory.avatar_max_size_bytes must be positive, got %d", c.Directory.AvatarMaxSizeBytes)
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
