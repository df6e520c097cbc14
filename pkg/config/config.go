package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// DefaultConfigPath is read by Load.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-grounding.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database holds the preference store tables when preferences.backend is postgres.
	Database DatabaseConfig `yaml:"database"`

	Redis RedisConfig `yaml:"redis"`

	// Datasource is the business database whose values are indexed.
	Datasource DatasourceConfig `yaml:"datasource"`

	// Columns lists the entity-bearing columns to index.
	Columns []models.ColumnSpec `yaml:"columns"`

	Index       IndexConfig       `yaml:"index"`
	Preferences PreferencesConfig `yaml:"preferences"`
	MCP         MCPConfig         `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL database configuration for the preference store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_grounding"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration for the preference store.
type RedisConfig struct {
	Host      string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port      int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"grounding"`
}

// DatasourceConfig describes the business database the profiler reads.
type DatasourceConfig struct {
	// Type selects the profiler: "postgres" or "mssql".
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"0"` // 0 picks the driver default
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Name     string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:"disable"`
	// Encrypt and TrustServerCertificate apply to SQL Server only.
	Encrypt                bool `yaml:"encrypt" env:"DATASOURCE_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool `yaml:"trust_server_certificate" env:"DATASOURCE_TRUST_SERVER_CERTIFICATE" env-default:"false"`
	// PoolMaxConns is the maximum number of connections in the profiler pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"4"`
}

// IndexConfig controls how the value index is built.
type IndexConfig struct {
	// MaxValuesPerColumn bounds the distinct values read per column, most frequent first.
	MaxValuesPerColumn int `yaml:"max_values_per_column" env:"INDEX_MAX_VALUES_PER_COLUMN" env-default:"10000"`
	// Concurrency is how many columns are profiled at once.
	Concurrency int `yaml:"concurrency" env:"INDEX_CONCURRENCY" env-default:"4"`
	// ManualRulesFile is an optional YAML file of abbreviation rules.
	ManualRulesFile string `yaml:"manual_rules_file" env:"INDEX_MANUAL_RULES_FILE" env-default:""`
	// AbbreviationDumpPath, when set, receives a JSON dump of the rules after every build.
	AbbreviationDumpPath string `yaml:"abbreviation_dump_path" env:"INDEX_ABBREVIATION_DUMP_PATH" env-default:""`
	// RefreshIntervalMinutes rebuilds the index periodically. 0 disables refresh.
	RefreshIntervalMinutes int `yaml:"refresh_interval_minutes" env:"INDEX_REFRESH_INTERVAL_MINUTES" env-default:"0"`
}

// PreferencesConfig selects the preference store backend.
type PreferencesConfig struct {
	// Backend is one of "memory", "postgres" or "redis".
	Backend string `yaml:"backend" env:"PREFERENCES_BACKEND" env-default:"memory"`
}

// MCPConfig controls the MCP tool server.
type MCPConfig struct {
	// Transport is "http" (served under /mcp) or "stdio".
	Transport string `yaml:"transport" env:"MCP_TRANSPORT" env-default:"http"`
}

// Load reads DefaultConfigPath with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigPath, version)
}

// LoadFile reads configuration from path with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks enumerated settings and column specs.
func (c *Config) Validate() error {
	switch c.Preferences.Backend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unknown preferences backend %q", c.Preferences.Backend)
	}
	if c.Preferences.Backend == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("preferences backend redis requires redis.host")
	}

	switch c.Datasource.Type {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unknown datasource type %q", c.Datasource.Type)
	}

	switch c.MCP.Transport {
	case "http", "stdio":
	default:
		return fmt.Errorf("unknown mcp transport %q", c.MCP.Transport)
	}

	if c.Index.Concurrency < 1 {
		return fmt.Errorf("index.concurrency must be at least 1")
	}
	if c.Index.MaxValuesPerColumn < 1 {
		return fmt.Errorf("index.max_values_per_column must be at least 1")
	}

	for i, col := range c.Columns {
		if strings.TrimSpace(col.Table) == "" || strings.TrimSpace(col.Column) == "" {
			return fmt.Errorf("columns[%d]: table and column are required", i)
		}
	}
	return nil
}

// ListenAddr returns bind_addr:port.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database as a postgres:// URL, the form golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

var (
	inDockerOnce sync.Once
	inDocker     bool
)

// runningInDocker reports whether /.dockerenv exists. Cached after the first call.
var runningInDocker = func() bool {
	inDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inDocker = err == nil
	})
	return inDocker
}

// ResolvedHost returns the datasource host, mapping loopback addresses to
// host.docker.internal when the service itself runs in a container.
func (d *DatasourceConfig) ResolvedHost() string {
	if !runningInDocker() {
		return d.Host
	}
	if d.Host == "localhost" || d.Host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return d.Host
}
