package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultSQLitePath, cfg.SQLite.Path)
	assert.Equal(t, DefaultLegacyJSONPath, cfg.SQLite.LegacyJSONPath)
	assert.Equal(t, DefaultThrottleSeconds, cfg.Verify.ThrottleSeconds)
	assert.Equal(t, DefaultCodeLength, cfg.Verify.CodeLength)
	assert.Equal(t, DefaultRetentionDays, cfg.Verify.HistoryRetentionDays)
	assert.Equal(t, DefaultPruneSchedule, cfg.Verify.PruneSchedule)
	assert.Equal(t, DefaultAlertBurst, cfg.Discord.AlertBurst)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadDecodesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[log]
level = "debug"
format = "json"

[server]
addr = ":9000"
api_token = "s3cret"

[sqlite]
path = "/var/lib/verificator.db"

[discord]
token = "bot-token"
alert_channel_id = "123"
guild_id = "456"

[verify]
throttle_seconds = 60
code_length = 10

[messages]
account-blocked = "No entry."
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.APIToken)
	assert.Equal(t, "/var/lib/verificator.db", cfg.SQLite.Path)
	assert.Equal(t, "bot-token", cfg.Discord.Token)
	assert.Equal(t, "123", cfg.Discord.AlertChannelID)
	assert.Equal(t, 60, cfg.Verify.ThrottleSeconds)
	assert.Equal(t, 10, cfg.Verify.CodeLength)
	assert.Equal(t, "No entry.", cfg.Messages["account-blocked"])

	// Sections absent from the file keep their defaults.
	assert.Equal(t, DefaultLegacyJSONPath, cfg.SQLite.LegacyJSONPath)
	assert.Equal(t, DefaultRetentionDays, cfg.Verify.HistoryRetentionDays)
}

func TestLoadClampsCodeLength(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   int
		want int
	}{
		{"too short", 2, 6},
		{"too long", 40, 12},
		{"in range", 8, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("[verify]\ncode_length = %d\n", tc.in)), 0o600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Verify.CodeLength)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
