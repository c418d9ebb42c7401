package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	RegistryBackendJSON     = "json"
	RegistryBackendRedis    = "redis"
	RegistryBackendPostgres = "postgres"
)

// env vars holding secrets, never read from the TOML file
const (
	EnvAdminEmail        = "BULLETINS_ADMIN_EMAIL"
	EnvAdminPasswordHash = "BULLETINS_ADMIN_PASSWORD_HASH"
	EnvJWTSecret         = "BULLETINS_JWT_SECRET"
	EnvRedisPassword     = "BULLETINS_REDIS_PASS"
	EnvPostgresPassword  = "BULLETINS_POSTGRES_PASS"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	// storage
	DataPath        string `toml:"data_path"`
	AssetsPath      string `toml:"assets_path"`
	PublicURLPrefix string `toml:"public_url_prefix"`
	MaxUploadSizeMB int64  `toml:"max_upload_size_mb"`
	RegistryBackend string `toml:"registry_backend"`
	// sessions
	SecureCookies  bool     `toml:"secure_cookies"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// redis (registry backend and login rate limiting)
	RedisHost                   string `toml:"redis_host"`
	RedisPort                   string `toml:"redis_port"`
	LoginRateLimitAllowedPerMin int    `toml:"login_rate_limit_per_min"`
	// postgres (registry backend)
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	PostgresUser   string `toml:"postgres_user"`
	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// secrets, from env only
	AdminEmail        string `toml:"-"`
	AdminPasswordHash string `toml:"-"`
	JWTSecret         string `toml:"-"`
	RedisPassword     string `toml:"-"`
	PostgresPassword  string `toml:"-"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] missing", env)
	}
	return cfg, nil
}

// Load reads the TOML file, picks the env section, fills defaults and reads secrets from env vars
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}
	cfg.ApplyDefaults()
	cfg.ReadSecrets(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.DataPath == "" {
		c.DataPath = "data/bulletins.json"
	}
	if c.AssetsPath == "" {
		c.AssetsPath = "public/uploads"
	}
	if c.PublicURLPrefix == "" {
		c.PublicURLPrefix = "/uploads"
	}
	c.PublicURLPrefix = "/" + strings.Trim(c.PublicURLPrefix, "/")
	if c.MaxUploadSizeMB <= 0 {
		c.MaxUploadSizeMB = 32
	}
	if c.RegistryBackend == "" {
		c.RegistryBackend = RegistryBackendJSON
	}
	if c.LoginRateLimitAllowedPerMin <= 0 {
		c.LoginRateLimitAllowedPerMin = 15
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
}

// ReadSecrets takes secrets from the given lookup, usually os.Getenv
func (c *Config) ReadSecrets(getenv func(string) string) {
	c.AdminEmail = getenv(EnvAdminEmail)
	c.AdminPasswordHash = getenv(EnvAdminPasswordHash)
	c.JWTSecret = getenv(EnvJWTSecret)
	c.RedisPassword = getenv(EnvRedisPassword)
	if c.RedisPassword == "<skip>" {
		c.RedisPassword = ""
	}
	c.PostgresPassword = getenv(EnvPostgresPassword)
}

// Validate only rejects broken structure; missing admin secrets are reported at login time
func (c *Config) Validate() error {
	// a root prefix would make every path public and static
	if strings.Trim(c.PublicURLPrefix, "/") == "" {
		return fmt.Errorf("invalid public_url_prefix: %q", c.PublicURLPrefix)
	}

	switch c.RegistryBackend {
	case RegistryBackendJSON:
	case RegistryBackendRedis:
		if c.RedisHost == "" || c.RedisPort == "" {
			return errors.New("redis registry backend needs redis_host and redis_port")
		}
	case RegistryBackendPostgres:
		if c.PostgresHost == "" || c.PostgresPort == "" || c.PostgresDBName == "" {
			return errors.New("postgres registry backend needs postgres_host, postgres_port and postgres_db_name")
		}
	default:
		return fmt.Errorf("unknown registry backend: %s", c.RegistryBackend)
	}
	return nil
}

// RedisEnabled is true when a redis endpoint is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != "" && c.RedisPort != ""
}

func (c *Config) MaxUploadSizeBytes() int64 {
	return c.MaxUploadSizeMB * 1024 * 1024
}
