package accounts

import (
	"errors"
	"time"
)

// Errors returned by account store operations.
var (
	// ErrNotFound means the identity or account does not exist. Expected
	// during normal operation; callers map it to a user-facing message.
	ErrNotFound = errors.New("account not found")
	// ErrAlreadyLinked means the player name is already bound to an
	// external account (any account, the same one included).
	ErrAlreadyLinked = errors.New("player name already linked")
	// ErrNoHistory means no verification attempt exists for the
	// (account, address) pair; callers treat it as "no throttle applies".
	ErrNoHistory = errors.New("no verification history")
)

// Account is a snapshot of an external (Discord) account and its linked
// player names.
type Account struct {
	ExternalID           string   `db:"discord_id"`
	AllowedAddress       string   `db:"current_allowed_address"`
	Blocked              bool     `db:"is_blocked"`
	SharedAddressAllowed bool     `db:"allow_shared_address"`
	LinkedNames          []string `db:"-"`
}

// PlayerInfo is the operator-facing view of a single linked player.
type PlayerInfo struct {
	Player               string     `json:"player"`
	ExternalID           string     `json:"external_id"`
	AllowedAddress       string     `json:"allowed_address"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
	Blocked              bool       `json:"blocked"`
	SharedAddressAllowed bool       `json:"shared_address_allowed"`
}
