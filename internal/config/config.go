package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"vapi/internal/credential"
	"vapi/internal/logging"
)

// Snapshot backends.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Legacy route authentication modes.
const (
	LegacyModeCredential = "credential"
	LegacyModeSharedKey  = "shared_key"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	MongoDB   MongoConfig     `mapstructure:"mongodb"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Legacy    LegacyConfig    `mapstructure:"legacy"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	Metrics         bool          `mapstructure:"metrics"`
}

// AuthConfig governs capability tokens.
type AuthConfig struct {
	Secret         string `mapstructure:"secret"`
	DefaultTTLDays int    `mapstructure:"default_ttl_days"`
	// OpenIssuance lets anyone call the key issuance endpoint.
	OpenIssuance bool   `mapstructure:"open_issuance"`
	LegacyMode   string `mapstructure:"legacy_mode"`
}

// DefaultTTL returns the default credential lifetime.
func (a AuthConfig) DefaultTTL() time.Duration {
	return time.Duration(a.DefaultTTLDays) * 24 * time.Hour
}

// SnapshotsConfig selects the price-feed backend.
type SnapshotsConfig struct {
	Driver        string        `mapstructure:"driver"`
	Timezone      string        `mapstructure:"timezone"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
}

// Location resolves the timezone calendar days are computed in.
func (s SnapshotsConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// MongoConfig encapsulates document store connectivity.
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LegacyConfig covers the relational store behind the pre-v2 routes.
type LegacyConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	// VbizDSN points at the business registry database. Empty reuses DSN.
	VbizDSN         string        `mapstructure:"vbiz_dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// SyncInterval mirrors legacy price tables into the snapshot store while
	// serving. Zero disables it.
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	QueueSize int            `mapstructure:"queue_size"`
	Workers   int            `mapstructure:"workers"`
	Timeout   time.Duration  `mapstructure:"timeout"`
	Channels  []string       `mapstructure:"channels"`
	FCM       FCMConfig      `mapstructure:"fcm"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// FCMConfig configures Firebase Cloud Messaging topic pushes.
type FCMConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vapi")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.metrics", true)

	// auth.secret has no default and is only required by serve and issue-key
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.default_ttl_days", 15)
	v.SetDefault("auth.open_issuance", false)
	v.SetDefault("auth.legacy_mode", LegacyModeCredential)

	v.SetDefault("snapshots.driver", DriverMongo)
	v.SetDefault("snapshots.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("snapshots.default_window", "720h")

	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "vapi")
	v.SetDefault("mongodb.timeout", "10s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("legacy.enabled", false)
	v.SetDefault("legacy.driver", "mysql")
	v.SetDefault("legacy.dsn", "")
	v.SetDefault("legacy.vbiz_dsn", "")
	v.SetDefault("legacy.max_open_conns", 10)
	v.SetDefault("legacy.conn_max_lifetime", "5m")
	v.SetDefault("legacy.sync_interval", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.queue_size", 256)
	v.SetDefault("alerting.workers", 2)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.channels", []string{"fcm"})
	v.SetDefault("alerting.fcm.enabled", false)
	v.SetDefault("alerting.fcm.credentials_file", "")
	v.SetDefault("alerting.fcm.project_id", "")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Snapshots.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("snapshots.driver must be one of mongo, postgres, memory, got %q", c.Snapshots.Driver)
	}
	if _, err := c.Snapshots.Location(); err != nil {
		return fmt.Errorf("snapshots.timezone: %w", err)
	}
	if c.Snapshots.DefaultWindow <= 0 {
		return fmt.Errorf("snapshots.default_window must be greater than zero")
	}
	if c.Auth.DefaultTTLDays <= 0 || c.Auth.DefaultTTLDays > credential.MaxLifetimeDays {
		return fmt.Errorf("auth.default_ttl_days must be between 1 and %d", credential.MaxLifetimeDays)
	}
	switch c.Auth.LegacyMode {
	case LegacyModeCredential, LegacyModeSharedKey:
	default:
		return fmt.Errorf("auth.legacy_mode must be credential or shared_key, got %q", c.Auth.LegacyMode)
	}
	if c.Auth.LegacyMode == LegacyModeSharedKey && !c.Legacy.Enabled {
		return fmt.Errorf("auth.legacy_mode=shared_key needs legacy.enabled")
	}
	if c.Legacy.Enabled {
		switch c.Legacy.Driver {
		case "mysql", "sqlite":
		default:
			return fmt.Errorf("legacy.driver must be mysql or sqlite, got %q", c.Legacy.Driver)
		}
		if c.Legacy.DSN == "" {
			return fmt.Errorf("legacy.dsn is required when legacy.enabled")
		}
		if c.Legacy.SyncInterval < 0 {
			return fmt.Errorf("legacy.sync_interval must not be negative")
		}
	}
	if c.Alerting.Enabled {
		if c.Alerting.QueueSize <= 0 {
			return fmt.Errorf("alerting.queue_size must be greater than zero")
		}
		if c.Alerting.Workers <= 0 {
			return fmt.Errorf("alerting.workers must be greater than zero")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// RequireSecret reports a missing signing secret.
func (c *Config) RequireSecret() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret is required (set VAPI_AUTH_SECRET)")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
