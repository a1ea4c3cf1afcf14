package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// legacyUser mirrors one record of the flat-file export produced by older
// deployments.
type legacyUser struct {
	DiscordID   string   `json:"discordId"`
	LinkedNames []string `json:"linkedMinecraftUsernames"`
	AllowedIP   string   `json:"currentAllowedIp"`
}

// ImportLegacy upserts the records of a legacy JSON export into the store
// and renames the file to <path>.old so the import runs exactly once. A
// missing file is a no-op. Returns the number of imported accounts.
func (s *Service) ImportLegacy(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read legacy export: %w", err)
	}

	s.logger.Info("legacy export found, importing", slog.String("path", path))

	var users []legacyUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return 0, fmt.Errorf("parse legacy export: %w", err)
	}

	imported := 0
	for _, u := range users {
		if u.DiscordID == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO accounts (discord_id, current_allowed_address) VALUES (?, ?)
			 ON CONFLICT(discord_id) DO UPDATE SET current_allowed_address = excluded.current_allowed_address`,
			u.DiscordID, u.AllowedIP); err != nil {
			s.logger.Warn("legacy import: account skipped",
				slog.String("external_id", u.DiscordID), slog.Any("error", err))
			continue
		}
		for _, name := range u.LinkedNames {
			if err := s.Link(ctx, u.DiscordID, name); err != nil && !errors.Is(err, ErrAlreadyLinked) {
				s.logger.Warn("legacy import: link skipped",
					slog.String("player", name), slog.Any("error", err))
			}
		}
		imported++
	}

	if err := os.Rename(path, path+".old"); err != nil {
		return imported, fmt.Errorf("rename legacy export: %w", err)
	}

	s.logger.Info("legacy import complete",
		slog.Int("accounts", imported), slog.String("renamed_to", path+".old"))
	return imported, nil
}
