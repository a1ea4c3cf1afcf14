// Package accounts provides the durable store of external accounts, linked
// player names, and verification history.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Service performs all account store operations. Every method is safe under
// concurrent invocation from multiple decision flows; mutations are
// single-row and atomically applied.
type Service struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewService creates the account store service.
func NewService(log *slog.Logger, conn *sqlx.DB) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     conn,
		logger: log.With(slog.String("service", "accounts")),
	}
}

// LookupExternalID resolves a player name (case-insensitive) to the external
// account id it is linked to, or ErrNotFound.
func (s *Service) LookupExternalID(ctx context.Context, player string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		"SELECT discord_id FROM linked_identities WHERE name = ?", strings.TrimSpace(player))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup external id: %w", err)
	}
	return id, nil
}

// GetAccount returns a full account snapshot, linked names included, or
// ErrNotFound.
func (s *Service) GetAccount(ctx context.Context, externalID string) (Account, error) {
	var acct Account
	err := s.db.GetContext(ctx, &acct,
		"SELECT discord_id, current_allowed_address, is_blocked, allow_shared_address FROM accounts WHERE discord_id = ?",
		externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}

	if err := s.db.SelectContext(ctx, &acct.LinkedNames,
		"SELECT name FROM linked_identities WHERE discord_id = ? ORDER BY name", externalID); err != nil {
		return Account{}, fmt.Errorf("get linked names: %w", err)
	}
	return acct, nil
}

// Link binds a player name to an external account, creating the account row
// (with an empty trusted address) if it does not exist yet. Fails with
// ErrAlreadyLinked if the name is bound to any account, the same one included.
func (s *Service) Link(ctx context.Context, externalID, player string) error {
	player = strings.TrimSpace(player)
	if player == "" {
		return fmt.Errorf("player name must not be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	defer tx.Rollback()

	var bound int
	if err := tx.GetContext(ctx, &bound,
		"SELECT COUNT(*) FROM linked_identities WHERE name = ?", player); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if bound > 0 {
		return ErrAlreadyLinked
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO accounts (discord_id) VALUES (?) ON CONFLICT(discord_id) DO NOTHING",
		externalID); err != nil {
		return fmt.Errorf("link: upsert account: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO linked_identities (name, discord_id) VALUES (?, ?)",
		player, externalID); err != nil {
		return fmt.Errorf("link: insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

// Unlink removes the player link and clears the owning account's trusted
// address: an address trust granted through a now-detached identity must not
// silently persist. The account row itself stays.
func (s *Service) Unlink(ctx context.Context, player string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	defer tx.Rollback()

	var externalID string
	err = tx.GetContext(ctx, &externalID,
		"SELECT discord_id FROM linked_identities WHERE name = ?", strings.TrimSpace(player))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM linked_identities WHERE name = ?", strings.TrimSpace(player)); err != nil {
		return fmt.Errorf("unlink: delete identity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE accounts SET current_allowed_address = '' WHERE discord_id = ?", externalID); err != nil {
		return fmt.Errorf("unlink: clear address: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	return nil
}

// SetAddress overwrites the account's trusted address. Idempotent; fails
// with ErrNotFound if the account does not exist.
func (s *Service) SetAddress(ctx context.Context, externalID, address string) error {
	return s.updateAccount(ctx,
		"UPDATE accounts SET current_allowed_address = ? WHERE discord_id = ?", address, externalID)
}

// SetBlocked sets the account's blocked flag. Idempotent; fails with
// ErrNotFound if the account does not exist (operators must link first).
func (s *Service) SetBlocked(ctx context.Context, externalID string, blocked bool) error {
	return s.updateAccount(ctx,
		"UPDATE accounts SET is_blocked = ? WHERE discord_id = ?", blocked, externalID)
}

// SetSharedAddressAllowed sets the shared-address opt-in flag. Idempotent;
// fails with ErrNotFound if the account does not exist.
func (s *Service) SetSharedAddressAllowed(ctx context.Context, externalID string, allowed bool) error {
	return s.updateAccount(ctx,
		"UPDATE accounts SET allow_shared_address = ? WHERE discord_id = ?", allowed, externalID)
}

func (s *Service) updateAccount(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOtherAccountsWithAddress returns the external ids of all accounts
// currently trusting the given address, excluding one. An empty trusted
// address never matches.
func (s *Service) FindOtherAccountsWithAddress(ctx context.Context, address, excludingExternalID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT discord_id FROM accounts WHERE current_allowed_address = ? AND current_allowed_address <> '' AND discord_id <> ?",
		address, excludingExternalID)
	if err != nil {
		return nil, fmt.Errorf("find accounts by address: %w", err)
	}
	return ids, nil
}

// RecordLoginTimestamp stamps the player's last successful login. Callers
// treat failures as best-effort telemetry.
func (s *Service) RecordLoginTimestamp(ctx context.Context, player string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE linked_identities SET last_login_at = ? WHERE name = ?",
		time.Now().UTC(), strings.TrimSpace(player))
	if err != nil {
		return fmt.Errorf("record login timestamp: %w", err)
	}
	return nil
}

// AppendVerificationAttempt appends one history row for a code issuance to
// the (account, address) pair. Rows are never updated, only appended.
func (s *Service) AppendVerificationAttempt(ctx context.Context, externalID, address string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO verification_attempts (discord_id, address, attempted_at) VALUES (?, ?, ?)",
		externalID, address, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append verification attempt: %w", err)
	}
	return nil
}

// SecondsSinceLastAttempt returns the whole seconds elapsed since the most
// recent code issuance for the (account, address) pair, or ErrNoHistory.
func (s *Service) SecondsSinceLastAttempt(ctx context.Context, externalID, address string) (int64, error) {
	var last time.Time
	err := s.db.GetContext(ctx, &last,
		"SELECT attempted_at FROM verification_attempts WHERE discord_id = ? AND address = ? ORDER BY attempted_at DESC LIMIT 1",
		externalID, address)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoHistory
	}
	if err != nil {
		return 0, fmt.Errorf("seconds since last attempt: %w", err)
	}
	return int64(time.Since(last).Seconds()), nil
}

// PruneVerificationAttempts deletes history rows older than the cutoff and
// returns how many were removed.
func (s *Service) PruneVerificationAttempts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM verification_attempts WHERE attempted_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune verification attempts: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune verification attempts: %w", err)
	}
	return pruned, nil
}

// Info returns the operator-facing view of one linked player, or ErrNotFound.
func (s *Service) Info(ctx context.Context, player string) (PlayerInfo, error) {
	var row struct {
		Name                 string       `db:"name"`
		DiscordID            string       `db:"discord_id"`
		Address              string       `db:"current_allowed_address"`
		LastLoginAt          sql.NullTime `db:"last_login_at"`
		Blocked              bool         `db:"is_blocked"`
		SharedAddressAllowed bool         `db:"allow_shared_address"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT l.name, l.discord_id, l.last_login_at,
		       a.current_allowed_address, a.is_blocked, a.allow_shared_address
		FROM linked_identities l
		JOIN accounts a ON a.discord_id = l.discord_id
		WHERE l.name = ?`, strings.TrimSpace(player))
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerInfo{}, ErrNotFound
	}
	if err != nil {
		return PlayerInfo{}, fmt.Errorf("player info: %w", err)
	}

	info := PlayerInfo{
		Player:               row.Name,
		ExternalID:           row.DiscordID,
		AllowedAddress:       row.Address,
		Blocked:              row.Blocked,
		SharedAddressAllowed: row.SharedAddressAllowed,
	}
	if row.LastLoginAt.Valid {
		t := row.LastLoginAt.Time
		info.LastLoginAt = &t
	}
	return info, nil
}
