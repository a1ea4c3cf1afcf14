// Package messages holds the user- and operator-facing message catalog.
//
// The catalog is an immutable snapshot behind an atomic pointer: a reload
// builds a new snapshot and swaps the reference, so readers never observe a
// partially mutated map.
package messages

import (
	"fmt"
	"sync/atomic"
)

// Catalog keys referenced by handlers and the Discord bot.
const (
	KeyNotLinked         = "account-not-linked"
	KeyBlocked           = "account-blocked"
	KeyChannelDown       = "bot-not-working"
	KeySecurityCheck     = "security-check"
	KeyWaitBeforeRetry   = "wait-until-verification"
	KeyConfirmWithCode   = "confirm-with-command"
	KeyAlertShared       = "admin-alert-multi-ip"
	KeyAlertBlockedAssoc = "admin-alert-blocked-assoc"
	KeyButtonAllow       = "button-allow"
	KeyButtonBlock       = "button-block"
	KeyLinked            = "successfully-linked"
	KeyUnlinked          = "successfully-unlinked"
	KeyPlayerNotLinked   = "player-was-not-linked"
	KeyAlreadyLinked     = "already-linked"
	KeyActionSuccess     = "action-success"
	KeyActionFailed      = "action-failed"
	KeyInvalidCode       = "invalid-code"
	KeyCodeConfirmed     = "code-confirmed"
	KeyCodeWrongUser     = "code-wrong-user"
	KeyGenericFailure    = "error-occurred"
)

var defaults = map[string]string{
	KeyNotLinked:         "Your account is not linked to Discord. Ask an operator to link it.",
	KeyBlocked:           "Your account is blocked.",
	KeyChannelDown:       "Verification is temporarily unavailable. Try again later.",
	KeySecurityCheck:     "Connection denied: security check.",
	KeyWaitBeforeRetry:   "A code was sent recently. Wait %d more seconds.",
	KeyConfirmWithCode:   "Confirm this address in Discord: /confirm %s",
	KeyAlertShared:       "Player %s connected from %s, an address also trusted by: %s",
	KeyAlertBlockedAssoc: "Player %s shares an address with blocked account %s",
	KeyButtonAllow:       "Allow shared address",
	KeyButtonBlock:       "Block account",
	KeyLinked:            "Player linked.",
	KeyUnlinked:          "Player unlinked.",
	KeyPlayerNotLinked:   "That player is not linked.",
	KeyAlreadyLinked:     "That player name is already linked.",
	KeyActionSuccess:     "Done.",
	KeyActionFailed:      "The action failed. Check the server logs.",
	KeyInvalidCode:       "That code is invalid or expired. Reconnect to request a new one.",
	KeyCodeConfirmed:     "Address confirmed for %s. You can connect now.",
	KeyCodeWrongUser:     "That code was not issued for your account.",
	KeyGenericFailure:    "Something went wrong. Try again later.",
}

type snapshot struct {
	byKey map[string]string
}

// Catalog resolves message keys to configured strings.
type Catalog struct {
	current atomic.Pointer[snapshot]
}

// NewCatalog builds a catalog from the defaults merged with the given
// overrides.
func NewCatalog(overrides map[string]string) *Catalog {
	c := &Catalog{}
	c.Replace(overrides)
	return c
}

// Replace atomically swaps in a new snapshot built from the defaults merged
// with the given overrides. Concurrent readers keep the old snapshot until
// the swap completes.
func (c *Catalog) Replace(overrides map[string]string) {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	c.current.Store(&snapshot{byKey: merged})
}

// Get returns the message for key. An unknown key yields a self-describing
// placeholder rather than an error.
func (c *Catalog) Get(key string) string {
	snap := c.current.Load()
	if msg, ok := snap.byKey[key]; ok {
		return msg
	}
	return fmt.Sprintf("message %q is not configured", key)
}

// Format renders the message for key with fmt verbs applied.
func (c *Catalog) Format(key string, args ...any) string {
	return fmt.Sprintf(c.Get(key), args...)
}
