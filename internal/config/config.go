package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env                   string          `yaml:"env" env:"MODWARDEN_ENV"`
	DiscordToken          string          `yaml:"token" env:"DISCORD_TOKEN"`
	GuildID               string          `yaml:"server" env:"GUILD_ID"`
	DatabaseDriver        string          `yaml:"database_driver" env:"DATABASE_DRIVER"`
	DatabasePath          string          `yaml:"database_path" env:"DATABASE_PATH"`
	DatabaseURL           string          `yaml:"database_url" env:"DATABASE_URL"`
	LogLevel              string          `yaml:"log_level" env:"LOG_LEVEL"`
	RetentionDays         int             `yaml:"retention_days" env:"RETENTION_DAYS"`
	RequestTimeoutSeconds int             `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
	MessageCacheSize      int             `yaml:"message_cache_size" env:"MESSAGE_CACHE_SIZE"`
	JoinWindowSeconds     int             `yaml:"join_window_seconds" env:"JOIN_WINDOW_SECONDS"`
	Channels              ChannelConfig   `yaml:",inline"`
	NoLogChannels         []string        `yaml:"no_log_channels" env:"NO_LOG_CHANNELS" envSeparator:","`
	Health                HealthConfig    `yaml:"health"`
	RoleQueue             RoleQueueConfig `yaml:"role_queue"`
}

// ChannelConfig holds the log channel for each event category.
type ChannelConfig struct {
	ModLogs        string `yaml:"mod_logs_channel" env:"MOD_LOGS_CHANNEL"`
	UserLogs       string `yaml:"user_logs_channel" env:"USER_LOGS_CHANNEL"`
	MessageEdits   string `yaml:"message_edits_channel" env:"MESSAGE_EDITS_CHANNEL"`
	MessageDeletes string `yaml:"message_deletes_channel" env:"MESSAGE_DELETES_CHANNEL"`
	RoleUpdates    string `yaml:"role_updates_channel" env:"ROLE_UPDATES_CHANNEL"`
	ServerLogs     string `yaml:"server_logs_channel" env:"SERVER_LOGS_CHANNEL"`
	VoiceLogs      string `yaml:"voice_logs_channel" env:"VOICE_LOGS_CHANNEL"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"HEALTH_ENABLED"`
	Addr    string `yaml:"addr" env:"HEALTH_ADDR"`
}

// RoleQueueConfig selects which single-role changes are batched into one
// announcement instead of being posted per member.
type RoleQueueConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds" env:"ROLE_QUEUE_INTERVAL_SECONDS"`
	AddedRoles      []string `yaml:"added_roles" env:"ROLE_QUEUE_ADDED" envSeparator:","`
	RemovedRoles    []string `yaml:"removed_roles" env:"ROLE_QUEUE_REMOVED" envSeparator:","`
}

func DefaultConfig() Config {
	return Config{
		Env:                   "test",
		DatabaseDriver:        "sqlite",
		DatabasePath:          "modwarden.db",
		LogLevel:              "info",
		RetentionDays:         90,
		RequestTimeoutSeconds: 15,
		MessageCacheSize:      1000,
		JoinWindowSeconds:     600,
		Health:                HealthConfig{Enabled: false, Addr: ":8080"},
		RoleQueue: RoleQueueConfig{
			IntervalSeconds: 10,
			AddedRoles:      []string{"Member"},
			RemovedRoles:    []string{"New Account"},
		},
	}
}

// Path resolves the configuration file: CONFIG_PATH wins, otherwise the
// production or test document is picked from MODWARDEN_ENV.
func Path() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	if strings.EqualFold(os.Getenv("MODWARDEN_ENV"), "prod") {
		return "config.json"
	}
	return "config.test.json"
}

func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile reads a JSON or YAML document, then applies environment overrides.
// A missing file is not an error as long as the environment supplies the token.
func LoadFile(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is LoadFile without validation. Offline tools use it with
// ValidateDatabase since they never connect to Discord.
func Read(path string) (Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if c.GuildID == "" {
		return errors.New("server (GUILD_ID) is required")
	}
	return c.ValidateDatabase()
}

func (c Config) ValidateDatabase() error {
	switch strings.ToLower(c.DatabaseDriver) {
	case "", "sqlite":
	case "postgres", "pgx":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database_driver %q", c.DatabaseDriver)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	switch strings.ToLower(c.DatabaseDriver) {
	case "postgres", "pgx":
		return c.DatabaseURL
	default:
		return c.DatabasePath
	}
}

func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) JoinWindow() time.Duration {
	if c.JoinWindowSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.JoinWindowSeconds) * time.Second
}

// IsNoLogChannel reports whether edits and deletes in channelID are ignored.
func (c Config) IsNoLogChannel(channelID string) bool {
	for _, id := range c.NoLogChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
