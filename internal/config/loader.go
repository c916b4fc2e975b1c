package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/metriq/internal/db"
)

// Backend names accepted for store.backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the full runtime configuration: HTTP server, store backend
// selection and the per-backend settings.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database db.Config
	Export   ExportConfig
}

type ServerConfig struct {
	Addr string
}

type StoreConfig struct {
	Backend   string
	Dir       string
	GuardWait time.Duration
}

type ExportConfig struct {
	Dir string
}

// Default returns the configuration used when no config file or environment
// overrides are present: file backend under ./data.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Store:    StoreConfig{Backend: BackendFile, Dir: "./data", GuardWait: 5 * time.Second},
		Database: db.DefaultConfig(),
		Export:   ExportConfig{Dir: "./exports"},
	}
}

// Load reads config.yaml from configPath with METRIQ_-prefixed environment
// overrides layered on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("METRIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map nested keys to flat env vars (METRIQ_SERVER_ADDR and so on).
	for _, key := range []string{
		"server.addr",
		"store.backend", "store.dir", "store.guard_wait",
		"database.host", "database.port", "database.user",
		"database.password", "database.dbname", "database.sslmode",
		"export.dir",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults plus env vars apply.
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("store.backend") {
		cfg.Store.Backend = v.GetString("store.backend")
	}
	if v.IsSet("store.dir") {
		cfg.Store.Dir = v.GetString("store.dir")
	}
	if v.IsSet("store.guard_wait") {
		cfg.Store.GuardWait = v.GetDuration("store.guard_wait")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("export.dir") {
		cfg.Export.Dir = v.GetString("export.dir")
	}

	switch cfg.Store.Backend {
	case BackendFile, BackendPostgres:
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return cfg, nil
}
