package mssql

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
)

// Config contains SQL Server connection options. Only SQL authentication is
// supported.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxConns               int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromDatasourceConfig converts the service configuration, applying defaults
// and the Docker host mapping.
func FromDatasourceConfig(ds *config.DatasourceConfig) (*Config, error) {
	cfg := &Config{
		Host:                   ds.ResolvedHost(),
		Port:                   ds.Port,
		Database:               ds.Name,
		Username:               ds.User,
		Password:               ds.Password,
		Encrypt:                ds.Encrypt,
		TrustServerCertificate: ds.TrustServerCertificate,
		ConnectionTimeout:      DefaultConnectionTimeout(),
		MaxConns:               int(ds.PoolMaxConns),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required for SQL authentication")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}
