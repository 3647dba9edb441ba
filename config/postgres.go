package config

import (
	"fmt"
	"time"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Parameter Store names holding the production database credentials.
const (
	ParamDBHost     = "ALPACASTREAM_DB_HOST"
	ParamDBUser     = "ALPACASTREAM_DB_USER"
	ParamDBPassword = "ALPACASTREAM_DB_PASSWORD"
)

// DSN builds the connection string. In prod the host, user and password come
// from Parameter Store instead of the config file.
func (cfg *PostgresConfig) DSN(env string) string {
	return cfg.dsn(env, cfg.DBName, ParameterStoreValue)
}

// AdminDSN connects to the maintenance "postgres" database, used to create cfg.DBName.
func (cfg *PostgresConfig) AdminDSN(env string) string {
	return cfg.dsn(env, "postgres", ParameterStoreValue)
}

func (cfg *PostgresConfig) dsn(env, dbName string, lookup func(name string) string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		host = lookup(ParamDBHost)
		user = lookup(ParamDBUser)
		password = lookup(ParamDBPassword)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}
