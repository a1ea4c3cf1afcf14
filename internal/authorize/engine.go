// Package authorize implements the connection authorization decision engine.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Andromedov/DiscordVerificator/internal/accounts"
)

// Store is the subset of the account store the engine consumes.
type Store interface {
	LookupExternalID(ctx context.Context, player string) (string, error)
	GetAccount(ctx context.Context, externalID string) (accounts.Account, error)
	FindOtherAccountsWithAddress(ctx context.Context, address, excludingExternalID string) ([]string, error)
	RecordLoginTimestamp(ctx context.Context, player string) error
	AppendVerificationAttempt(ctx context.Context, externalID, address string) error
	SecondsSinceLastAttempt(ctx context.Context, externalID, address string) (int64, error)
}

// CodeIssuer issues one-time confirmation codes.
type CodeIssuer interface {
	Issue(player, address string) string
}

// Notifier is the engine's view of the notification channel: a readiness
// flag and a fire-and-forget alert sink.
type Notifier interface {
	IsReady() bool
	SendAlert(ctx context.Context, alert Alert)
}

// Engine evaluates connection attempts. One evaluation per attempt, no
// multi-step session; many evaluations may run concurrently.
type Engine struct {
	store           Store
	codes           CodeIssuer
	notifier        Notifier
	throttleSeconds int64
	logger          *slog.Logger
}

// NewEngine creates the decision engine.
func NewEngine(log *slog.Logger, store Store, issuer CodeIssuer, notifier Notifier, throttleSeconds int) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if throttleSeconds <= 0 {
		throttleSeconds = 30
	}
	return &Engine{
		store:           store,
		codes:           issuer,
		notifier:        notifier,
		throttleSeconds: int64(throttleSeconds),
		logger:          log.With(slog.String("service", "authorize")),
	}
}

// Authorize decides a single connection attempt against the current store
// state. Deterministic denials return a Decision with a nil error; a
// non-nil error means a storage failure, and the caller must deny — the
// engine never lets a lower-layer failure produce an allow.
func (e *Engine) Authorize(ctx context.Context, req Request) (Decision, error) {
	externalID, err := e.store.LookupExternalID(ctx, req.Player)
	if errors.Is(err, accounts.ErrNotFound) {
		return deny(ReasonNotLinked), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("authorize: %w", err)
	}

	acct, err := e.store.GetAccount(ctx, externalID)
	if errors.Is(err, accounts.ErrNotFound) {
		return deny(ReasonNotLinked), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("authorize: %w", err)
	}

	// Blocked accounts are rejected before any address work, so they learn
	// nothing about address state.
	if acct.Blocked {
		return deny(ReasonBlocked), nil
	}

	// A challenge that cannot deliver its code is worse than a clear
	// outage message.
	if !e.notifier.IsReady() {
		return deny(ReasonChannelUnavailable), nil
	}

	decision, done, err := e.checkSharedAddress(ctx, req, externalID, acct)
	if err != nil {
		return Decision{}, err
	}
	if done {
		return decision, nil
	}

	if req.Address == acct.AllowedAddress {
		if err := e.store.RecordLoginTimestamp(ctx, req.Player); err != nil {
			e.logger.Warn("record login timestamp failed",
				slog.String("player", req.Player), slog.Any("error", err))
		}
		return Decision{Allow: true, Reason: ReasonAllowed}, nil
	}

	return e.challenge(ctx, req, externalID)
}

// checkSharedAddress runs the cross-account address conflict checks. The
// blocked-association check runs even when the account opted into shared
// addresses; the opt-in only suppresses the plain multi-account escalation.
func (e *Engine) checkSharedAddress(ctx context.Context, req Request, externalID string, acct accounts.Account) (Decision, bool, error) {
	neighbors, err := e.store.FindOtherAccountsWithAddress(ctx, req.Address, externalID)
	if err != nil {
		return Decision{}, false, fmt.Errorf("authorize: %w", err)
	}
	if len(neighbors) == 0 {
		return Decision{}, false, nil
	}

	for _, neighborID := range neighbors {
		neighbor, err := e.store.GetAccount(ctx, neighborID)
		if errors.Is(err, accounts.ErrNotFound) {
			continue
		}
		if err != nil {
			return Decision{}, false, fmt.Errorf("authorize: %w", err)
		}
		if neighbor.Blocked {
			e.notifier.SendAlert(ctx, Alert{
				Kind:            AlertBlockedAssociation,
				Player:          req.Player,
				Address:         req.Address,
				ExternalID:      externalID,
				BlockedNeighbor: neighborID,
			})
			return deny(ReasonSecurityCheck), true, nil
		}
	}

	if !acct.SharedAddressAllowed {
		e.notifier.SendAlert(ctx, Alert{
			Kind:       AlertSharedAddress,
			Player:     req.Player,
			Address:    req.Address,
			ExternalID: externalID,
			Neighbors:  neighbors,
		})
		return deny(ReasonSecurityCheck), true, nil
	}

	return Decision{}, false, nil
}

// challenge handles an address mismatch: throttle repeated requests, or
// issue a fresh code and record the attempt.
func (e *Engine) challenge(ctx context.Context, req Request, externalID string) (Decision, error) {
	elapsed, err := e.store.SecondsSinceLastAttempt(ctx, externalID, req.Address)
	switch {
	case errors.Is(err, accounts.ErrNoHistory):
		// No throttle applies.
	case err != nil:
		return Decision{}, fmt.Errorf("authorize: %w", err)
	case elapsed < e.throttleSeconds:
		d := deny(ReasonThrottled)
		d.WaitSeconds = e.throttleSeconds - elapsed
		return d, nil
	}

	code := e.codes.Issue(req.Player, req.Address)
	if err := e.store.AppendVerificationAttempt(ctx, externalID, req.Address); err != nil {
		// Best-effort: a lost history row only weakens the throttle.
		e.logger.Warn("append verification attempt failed",
			slog.String("external_id", externalID), slog.Any("error", err))
	}

	d := deny(ReasonVerificationRequired)
	d.Code = code
	return d, nil
}
