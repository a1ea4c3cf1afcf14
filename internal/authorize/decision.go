package authorize

// Reason classifies the outcome of a connection attempt.
type Reason string

// Decision reasons, one per terminal branch of the evaluation.
const (
	// ReasonAllowed means the source address matches the trusted address.
	ReasonAllowed Reason = "allowed"
	// ReasonNotLinked means the player name is bound to no external account.
	ReasonNotLinked Reason = "not_linked"
	// ReasonBlocked means the linked account is blocked.
	ReasonBlocked Reason = "blocked"
	// ReasonChannelUnavailable means the notification channel is down, so a
	// confirmation code could not be delivered anyway.
	ReasonChannelUnavailable Reason = "channel_unavailable"
	// ReasonSecurityCheck means an address-sharing conflict was escalated to
	// operators; the attempt is denied without detail.
	ReasonSecurityCheck Reason = "security_check"
	// ReasonThrottled means a code was issued for this pair too recently.
	ReasonThrottled Reason = "throttled"
	// ReasonVerificationRequired means a fresh code was issued and must be
	// confirmed through the external channel.
	ReasonVerificationRequired Reason = "verification_required"
)

// Request is one connection attempt: the player name presented to the game
// server and the network source address it connects from.
type Request struct {
	Player  string
	Address string
}

// Decision is the outcome of evaluating one connection attempt.
type Decision struct {
	Allow  bool
	Reason Reason

	// WaitSeconds is set with ReasonThrottled: how long until a new code
	// may be requested.
	WaitSeconds int64

	// Code is set with ReasonVerificationRequired: the freshly issued
	// confirmation code to relay to the connecting player.
	Code string
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// AlertKind distinguishes the operator alert variants.
type AlertKind string

const (
	// AlertBlockedAssociation reports a connecting player sharing an
	// address with a blocked account.
	AlertBlockedAssociation AlertKind = "blocked_association"
	// AlertSharedAddress reports multiple accounts trusting one address
	// without the shared-address opt-in.
	AlertSharedAddress AlertKind = "shared_address"
)

// Alert is an operator escalation raised during evaluation. Actions offered
// to operators are bound to the connecting account's external id.
type Alert struct {
	Kind       AlertKind
	Player     string
	Address    string
	ExternalID string

	// Neighbors lists the other external ids trusting the address
	// (AlertSharedAddress).
	Neighbors []string

	// BlockedNeighbor is the blocked co-resident account
	// (AlertBlockedAssociation).
	BlockedNeighbor string
}
