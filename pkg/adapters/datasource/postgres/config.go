package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	MaxConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromDatasourceConfig converts the service configuration, applying defaults
// and the Docker host mapping.
func FromDatasourceConfig(ds *config.DatasourceConfig) (*Config, error) {
	if ds.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if ds.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if ds.Name == "" {
		return nil, fmt.Errorf("database is required")
	}

	cfg := &Config{
		Host:     ds.ResolvedHost(),
		Port:     ds.Port,
		User:     ds.User,
		Password: ds.Password,
		Database: ds.Name,
		SSLMode:  ds.SSLMode,
		MaxConns: ds.PoolMaxConns,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultSSLMode()
	}
	return cfg, nil
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, #
// or ? survive parsing.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}
