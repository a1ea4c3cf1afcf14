// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8370"
	DefaultSQLitePath      = "verificator.db"
	DefaultLegacyJSONPath  = "users.json"
	DefaultThrottleSeconds = 30
	DefaultCodeLength      = 8
	DefaultRetentionDays   = 30
	DefaultPruneSchedule   = "0 4 * * *"
	DefaultAlertBurst      = 5
	DefaultAlertsPerMinute = 20
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig         `toml:"log"`
	Server   ServerConfig      `toml:"server"`
	SQLite   SQLiteConfig      `toml:"sqlite"`
	Discord  DiscordConfig     `toml:"discord"`
	Verify   VerifyConfig      `toml:"verify"`
	Messages map[string]string `toml:"messages"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the static API token
// presented by the game server. An empty token disables request auth.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	APIToken string `toml:"api_token"`
}

// SQLiteConfig holds the database file path and the legacy JSON export
// consumed once at startup.
type SQLiteConfig struct {
	Path           string `toml:"path"`
	LegacyJSONPath string `toml:"legacy_json_path"`
}

// DiscordConfig holds the bot token, the operator alert channel, and the
// outbound alert rate limit.
type DiscordConfig struct {
	Token           string `toml:"token"`
	AlertChannelID  string `toml:"alert_channel_id"`
	GuildID         string `toml:"guild_id"`
	AlertBurst      int    `toml:"alert_burst"`
	AlertsPerMinute int    `toml:"alerts_per_minute"`
}

// VerifyConfig holds the code throttle window, code length, and the
// verification-history retention sweep settings.
type VerifyConfig struct {
	ThrottleSeconds      int    `toml:"throttle_seconds"`
	CodeLength           int    `toml:"code_length"`
	HistoryRetentionDays int    `toml:"history_retention_days"`
	PruneSchedule        string `toml:"prune_schedule"`
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		SQLite: SQLiteConfig{
			Path:           DefaultSQLitePath,
			LegacyJSONPath: DefaultLegacyJSONPath,
		},
		Discord: DiscordConfig{
			AlertBurst:      DefaultAlertBurst,
			AlertsPerMinute: DefaultAlertsPerMinute,
		},
		Verify: VerifyConfig{
			ThrottleSeconds:      DefaultThrottleSeconds,
			CodeLength:           DefaultCodeLength,
			HistoryRetentionDays: DefaultRetentionDays,
			PruneSchedule:        DefaultPruneSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if cfg.Verify.ThrottleSeconds <= 0 {
		cfg.Verify.ThrottleSeconds = DefaultThrottleSeconds
	}
	if cfg.Verify.CodeLength < 6 {
		cfg.Verify.CodeLength = 6
	}
	if cfg.Verify.CodeLength > 12 {
		cfg.Verify.CodeLength = 12
	}

	return cfg, nil
}
