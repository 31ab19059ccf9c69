package models

import "time"

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgresql"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
	ClickHouse DatabaseType = "clickhouse"
)

// Valid reports whether the gateway ships a gorm dialector for t
func (t DatabaseType) Valid() bool {
	switch t {
	case PostgreSQL, MySQL, SQLite, ClickHouse:
		return true
	default:
		return false
	}
}

// DriverName is the database/sql driver name used in logs and health output
func (t DatabaseType) DriverName() string {
	switch t {
	case PostgreSQL:
		return "postgres"
	case SQLite:
		return "sqlite3"
	default:
		return string(t)
	}
}

// DatabaseConfig backs the user, usage, metric and conversation stores.
// DSN wins over the discrete connection fields; FilePath applies to SQLite
// only and an empty path means an in-memory database.
type DatabaseConfig struct {
	Type     DatabaseType `yaml:"type" json:"type"`
	DSN      string       `yaml:"dsn,omitempty" json:"dsn,omitzero"`
	Host     string       `yaml:"host,omitempty" json:"host,omitzero"`
	Port     int          `yaml:"port,omitempty" json:"port,omitzero"`
	Username string       `yaml:"username,omitempty" json:"username,omitzero"`
	Password string       `yaml:"password,omitempty" json:"-"`
	Database string       `yaml:"database,omitempty" json:"database,omitzero"`
	SSLMode  string       `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitzero"`
	FilePath string       `yaml:"file_path,omitempty" json:"file_path,omitzero"`

	MaxOpenConns int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitzero"`
	MaxIdleConns int `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitzero"`
	// ConnMaxLifetime is in seconds
	ConnMaxLifetime int `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitzero"`
}

// ConnLifetime returns ConnMaxLifetime as a duration, zero when unset
func (c DatabaseConfig) ConnLifetime() time.Duration {
	if c.ConnMaxLifetime <= 0 {
		return 0
	}
	return time.Duration(c.ConnMaxLifetime) * time.Second
}
