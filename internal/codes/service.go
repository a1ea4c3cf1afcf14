// Package codes issues and redeems short-lived one-time confirmation codes.
//
// Codes live only in process memory: a restart simply forces the connecting
// player to request a fresh one. The practical validity window is bounded by
// the issuance throttle enforced by the decision engine, not by the codes
// themselves.
package codes

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Grant ties an outstanding code to the player and source address it was
// issued for.
type Grant struct {
	Code     string
	Player   string
	Address  string
	IssuedAt time.Time
}

// Service is the in-memory code issuer. At most one code is live per
// (player, address) pair; issuing again replaces the previous one.
type Service struct {
	codeLen int

	mu     sync.Mutex
	byCode map[string]Grant
	byPair map[pairKey]string
}

type pairKey struct {
	player  string
	address string
}

// NewService creates a code issuer generating codes of the given length
// (clamped to 6..12 characters).
func NewService(codeLen int) *Service {
	if codeLen < 6 {
		codeLen = 6
	}
	if codeLen > 12 {
		codeLen = 12
	}
	return &Service{
		codeLen: codeLen,
		byCode:  map[string]Grant{},
		byPair:  map[pairKey]string{},
	}
}

// Issue generates a fresh code for the (player, address) pair, invalidating
// any code previously issued for the same pair.
func (s *Service) Issue(player, address string) string {
	key := pairKey{player: strings.ToLower(player), address: address}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.generateLocked()
	if prior, ok := s.byPair[key]; ok {
		delete(s.byCode, prior)
	}
	s.byCode[code] = Grant{
		Code:     code,
		Player:   player,
		Address:  address,
		IssuedAt: time.Now().UTC(),
	}
	s.byPair[key] = code
	return code
}

// Redeem consumes the code and returns its grant. A code absent from the
// live mapping is invalid or expired.
func (s *Service) Redeem(code string) (Grant, bool) {
	code = strings.TrimSpace(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.byCode[code]
	if !ok {
		return Grant{}, false
	}
	delete(s.byCode, code)
	delete(s.byPair, pairKey{player: strings.ToLower(grant.Player), address: grant.Address})
	return grant, true
}

// Outstanding reports how many codes are currently live.
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCode)
}

// generateLocked produces a code that collides with no outstanding one.
// Collision probability is negligible at expected volumes; the loop is a
// guard, not a hot path.
func (s *Service) generateLocked() string {
	for {
		code := strings.ReplaceAll(uuid.NewString(), "-", "")[:s.codeLen]
		if _, taken := s.byCode[code]; !taken {
			return code
		}
	}
}
