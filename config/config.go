package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigDirEnv overrides the directory searched for config.yaml.
const ConfigDirEnv = "ALPACASTREAM_CONFIG_DIR"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Alpaca   AlpacaConfig   `mapstructure:"alpaca"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Users    UsersConfig    `mapstructure:"users"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	CORSOrigin        string        `mapstructure:"cors_origin"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AlpacaConfig struct {
	REST   RESTConfig     `mapstructure:"rest"`
	Stream UpstreamConfig `mapstructure:"stream"`
}

type RESTConfig struct {
	BaseURL   string        `mapstructure:"base_url"` // default trading endpoint for users without one
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second per user
	Burst     int           `mapstructure:"burst"`
}

type UpstreamConfig struct {
	URL                  string        `mapstructure:"url"`
	Feed                 string        `mapstructure:"feed"` // "iex" or "sip"
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
}

// StreamConfig holds the downstream session settings.
type StreamConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	RelaySymbols    []string      `mapstructure:"relay_symbols"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTSecretParam string        `mapstructure:"jwt_secret_param"` // SSM parameter name used in prod
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

// UsersConfig selects the identity store and optional seed accounts.
type UsersConfig struct {
	Driver string     `mapstructure:"driver"` // "memory" or "postgres"
	Seed   []SeedUser `mapstructure:"seed"`
}

type SeedUser struct {
	Name            string `mapstructure:"name"`
	Email           string `mapstructure:"email"`
	Password        string `mapstructure:"password"`
	AlpacaAPIKey    string `mapstructure:"alpaca_api_key"`
	AlpacaSecretKey string `mapstructure:"alpaca_secret_key"`
	AlpacaPaperURL  string `mapstructure:"alpaca_paper_url"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("alpaca.rest.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.rest.timeout", 10*time.Second)
	v.SetDefault("alpaca.rest.rate_limit", 3.0)
	v.SetDefault("alpaca.rest.burst", 5)
	v.SetDefault("alpaca.stream.url", "wss://stream.data.alpaca.markets/v2")
	v.SetDefault("alpaca.stream.feed", "iex")
	v.SetDefault("alpaca.stream.max_reconnect_attempts", 5)
	v.SetDefault("alpaca.stream.reconnect_delay", 3*time.Second)

	v.SetDefault("stream.default_interval", 5*time.Second)
	v.SetDefault("stream.min_interval", time.Second)
	v.SetDefault("stream.relay_symbols", []string{"AAPL", "TSLA"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_secret_param", "ALPACASTREAM_JWT_SECRET")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.issuer", "alpacastream")

	v.SetDefault("users.driver", "memory")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "alpacastream")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
}

// Load loads application configuration using Viper.
// It reads from config.yaml when present and overrides with environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	if ex, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., ALPACA_STREAM_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
