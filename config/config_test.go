package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"alpacastream/config"
)

// go test -v --run TestLoadDefaults
func TestLoadDefaults(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Alpaca.Stream.MaxReconnectAttempts != 5 {
		t.Errorf("expected 5 reconnect attempts, got %d", cfg.Alpaca.Stream.MaxReconnectAttempts)
	}
	if cfg.Alpaca.Stream.ReconnectDelay != 3*time.Second {
		t.Errorf("expected 3s reconnect delay, got %v", cfg.Alpaca.Stream.ReconnectDelay)
	}
	if cfg.Stream.DefaultInterval != 5*time.Second || cfg.Stream.MinInterval != time.Second {
		t.Errorf("unexpected intervals: %+v", cfg.Stream)
	}
	if !slices.Equal(cfg.Stream.RelaySymbols, []string{"AAPL", "TSLA"}) {
		t.Errorf("unexpected relay symbols: %v", cfg.Stream.RelaySymbols)
	}
	if cfg.Users.Driver != "memory" {
		t.Errorf("expected memory driver, got %s", cfg.Users.Driver)
	}
}

// go test -v --run TestLoadFileAndEnv
func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 8081
alpaca:
  stream:
    feed: sip
    reconnect_delay: 500ms
stream:
  relay_symbols: [MSFT, NVDA]
users:
  seed:
    - name: demo
      email: demo@example.com
      password: secret
      alpaca_api_key: PK123
      alpaca_secret_key: SK123
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.ConfigDirEnv, dir)
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("env should override file, got port %d", cfg.Server.Port)
	}
	if cfg.Alpaca.Stream.Feed != "sip" || cfg.Alpaca.Stream.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("unexpected upstream config: %+v", cfg.Alpaca.Stream)
	}
	if !slices.Equal(cfg.Stream.RelaySymbols, []string{"MSFT", "NVDA"}) {
		t.Errorf("unexpected relay symbols: %v", cfg.Stream.RelaySymbols)
	}
	if len(cfg.Users.Seed) != 1 || cfg.Users.Seed[0].AlpacaAPIKey != "PK123" {
		t.Errorf("unexpected seed users: %+v", cfg.Users.Seed)
	}
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "pw",
		DBName:   "alpacastream",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	dsn := cfg.DSN("dev")
	want := "host=localhost port=5432 user=postgres password=pw dbname=alpacastream sslmode=disable TimeZone=UTC"
	if dsn != want {
		t.Errorf("unexpected dsn:\n got %s\nwant %s", dsn, want)
	}
	if admin := cfg.AdminDSN("dev"); !strings.Contains(admin, "dbname=postgres") {
		t.Errorf("admin dsn should target the postgres database: %s", admin)
	}
}

// go test -v --run TestResolveJWTSecret
func TestResolveJWTSecret(t *testing.T) {
	a := config.AuthConfig{JWTSecret: "local"}
	if got := a.ResolveJWTSecret("dev"); got != "local" {
		t.Errorf("expected local secret, got %q", got)
	}
	if got := a.ResolveJWTSecret("prod"); got != "local" {
		t.Errorf("configured secret must win in prod, got %q", got)
	}
}
