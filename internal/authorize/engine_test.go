package authorize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andromedov/DiscordVerificator/internal/accounts"
)

type fakeStore struct {
	links     map[string]string // lowercased player -> external id
	accts     map[string]accounts.Account
	elapsed   map[string]int64 // "extID|addr" -> seconds since last attempt
	appended  []string         // "extID|addr"
	logins    []string
	loginErr  error
	lookupErr error
	findErr   error
}

func (f *fakeStore) LookupExternalID(_ context.Context, player string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	id, ok := f.links[strings.ToLower(player)]
	if !ok {
		return "", accounts.ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) GetAccount(_ context.Context, externalID string) (accounts.Account, error) {
	acct, ok := f.accts[externalID]
	if !ok {
		return accounts.Account{}, accounts.ErrNotFound
	}
	return acct, nil
}

func (f *fakeStore) FindOtherAccountsWithAddress(_ context.Context, address, excluding string) ([]string, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var ids []string
	for id, acct := range f.accts {
		if id != excluding && acct.AllowedAddress != "" && acct.AllowedAddress == address {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) RecordLoginTimestamp(_ context.Context, player string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.logins = append(f.logins, player)
	return nil
}

func (f *fakeStore) AppendVerificationAttempt(_ context.Context, externalID, address string) error {
	f.appended = append(f.appended, externalID+"|"+address)
	return nil
}

func (f *fakeStore) SecondsSinceLastAttempt(_ context.Context, externalID, address string) (int64, error) {
	secs, ok := f.elapsed[externalID+"|"+address]
	if !ok {
		return 0, accounts.ErrNoHistory
	}
	return secs, nil
}

type fakeIssuer struct {
	next   string
	issued []string
}

func (f *fakeIssuer) Issue(player, address string) string {
	f.issued = append(f.issued, player+"|"+address)
	if f.next == "" {
		return "c0ffee42"
	}
	return f.next
}

type fakeNotifier struct {
	ready  bool
	alerts []Alert
}

func (f *fakeNotifier) IsReady() bool                           { return f.ready }
func (f *fakeNotifier) SendAlert(_ context.Context, alert Alert) { f.alerts = append(f.alerts, alert) }

func newTestEngine(store *fakeStore, notifier *fakeNotifier, issuer *fakeIssuer) *Engine {
	return NewEngine(nil, store, issuer, notifier, 30)
}

func TestAuthorizeNotLinked(t *testing.T) {
	store := &fakeStore{links: map[string]string{}, accts: map[string]accounts.Account{}}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Ghost", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonNotLinked, d.Reason)
}

func TestAuthorizeBlockedAccount(t *testing.T) {
	store := &fakeStore{
		links: map[string]string{"steve": "D123"},
		accts: map[string]accounts.Account{
			"D123": {ExternalID: "D123", AllowedAddress: "1.2.3.4", Blocked: true, SharedAddressAllowed: true},
		},
	}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, &fakeIssuer{})

	// Blocked wins regardless of address or shared-address flag.
	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonBlocked, d.Reason)
}

func TestAuthorizeChannelUnavailable(t *testing.T) {
	store := &fakeStore{
		links: map[string]string{"steve": "D123"},
		accts: map[string]accounts.Account{
			"D123": {ExternalID: "D123", AllowedAddress: "1.2.3.4"},
		},
	}
	engine := newTestEngine(store, &fakeNotifier{ready: false}, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonChannelUnavailable, d.Reason)
}

func TestAuthorizeBlockedAssociationPrecedence(t *testing.T) {
	// C opted into shared addresses but is co-resident with blocked A:
	// the blocked-association path wins, never the plain multi-account one.
	store := &fakeStore{
		links: map[string]string{"carol": "C"},
		accts: map[string]accounts.Account{
			"C": {ExternalID: "C", AllowedAddress: "8.8.8.8", SharedAddressAllowed: true},
			"A": {ExternalID: "A", AllowedAddress: "8.8.8.8", Blocked: true},
		},
	}
	notifier := &fakeNotifier{ready: true}
	engine := newTestEngine(store, notifier, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Carol", Address: "8.8.8.8"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonSecurityCheck, d.Reason)

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, AlertBlockedAssociation, alert.Kind)
	assert.Equal(t, "Carol", alert.Player)
	assert.Equal(t, "C", alert.ExternalID)
	assert.Equal(t, "A", alert.BlockedNeighbor)
}

func TestAuthorizeSharedAddressAlert(t *testing.T) {
	store := &fakeStore{
		links: map[string]string{"steve": "D1"},
		accts: map[string]accounts.Account{
			"D1": {ExternalID: "D1", AllowedAddress: "8.8.8.8"},
			"D2": {ExternalID: "D2", AllowedAddress: "8.8.8.8"},
		},
	}
	notifier := &fakeNotifier{ready: true}
	engine := newTestEngine(store, notifier, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "8.8.8.8"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonSecurityCheck, d.Reason)

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, AlertSharedAddress, alert.Kind)
	assert.Equal(t, []string{"D2"}, alert.Neighbors)
	assert.Equal(t, "D1", alert.ExternalID)
}

func TestAuthorizeSharedAddressOptIn(t *testing.T) {
	store := &fakeStore{
		links: map[string]string{"steve": "D1"},
		accts: map[string]accounts.Account{
			"D1": {ExternalID: "D1", AllowedAddress: "8.8.8.8", SharedAddressAllowed: true},
			"D2": {ExternalID: "D2", AllowedAddress: "8.8.8.8"},
		},
	}
	notifier := &fakeNotifier{ready: true}
	engine := newTestEngine(store, notifier, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "8.8.8.8"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Empty(t, notifier.alerts)
	assert.Equal(t, []string{"Steve"}, store.logins)
}

func TestAuthorizeAddressMatch(t *testing.T) {
	store := &fakeStore{
		links: map[string]string{"steve": "D123"},
		accts: map[string]accounts.Account{
			"D123": {ExternalID: "D123", AllowedAddress: "1.2.3.4"},
		},
	}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Equal(t, ReasonAllowed, d.Reason)
	assert.Equal(t, []string{"Steve"}, store.logins)
}

func TestAuthorizeTimestampFailureStillAllows(t *testing.T) {
	store := &fakeStore{
		links:    map[string]string{"steve": "D123"},
		accts:    map[string]accounts.Account{"D123": {ExternalID: "D123", AllowedAddress: "1.2.3.4"}},
		loginErr: errors.New("disk full"),
	}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestAuthorizeFirstAttemptIssuesCode(t *testing.T) {
	store := &fakeStore{
		links:   map[string]string{"steve": "D123"},
		accts:   map[string]accounts.Account{"D123": {ExternalID: "D123"}},
		elapsed: map[string]int64{},
	}
	issuer := &fakeIssuer{next: "abc12345"}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, issuer)

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonVerificationRequired, d.Reason)
	assert.Equal(t, "abc12345", d.Code)
	assert.Equal(t, []string{"Steve|1.2.3.4"}, issuer.issued)
	assert.Equal(t, []string{"D123|1.2.3.4"}, store.appended)
}

func TestAuthorizeThrottled(t *testing.T) {
	store := &fakeStore{
		links:   map[string]string{"steve": "D123"},
		accts:   map[string]accounts.Account{"D123": {ExternalID: "D123"}},
		elapsed: map[string]int64{"D123|1.2.3.4": 5},
	}
	issuer := &fakeIssuer{}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, issuer)

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonThrottled, d.Reason)
	assert.EqualValues(t, 25, d.WaitSeconds)

	// No code issued, no history row appended inside the window.
	assert.Empty(t, issuer.issued)
	assert.Empty(t, store.appended)
}

func TestAuthorizeThrottleExpired(t *testing.T) {
	store := &fakeStore{
		links:   map[string]string{"steve": "D123"},
		accts:   map[string]accounts.Account{"D123": {ExternalID: "D123"}},
		elapsed: map[string]int64{"D123|1.2.3.4": 31},
	}
	issuer := &fakeIssuer{}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, issuer)

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, ReasonVerificationRequired, d.Reason)
	assert.NotEmpty(t, d.Code)
}

func TestAuthorizeStorageFailureNeverAllows(t *testing.T) {
	store := &fakeStore{
		links:     map[string]string{"steve": "D123"},
		accts:     map[string]accounts.Account{"D123": {ExternalID: "D123", AllowedAddress: "1.2.3.4"}},
		lookupErr: errors.New("db locked"),
	}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.Error(t, err)
	assert.False(t, d.Allow)
}

func TestAuthorizeNeighborScanFailure(t *testing.T) {
	store := &fakeStore{
		links:   map[string]string{"steve": "D123"},
		accts:   map[string]accounts.Account{"D123": {ExternalID: "D123", AllowedAddress: "1.2.3.4"}},
		findErr: errors.New("db locked"),
	}
	engine := newTestEngine(store, &fakeNotifier{ready: true}, &fakeIssuer{})

	d, err := engine.Authorize(context.Background(), Request{Player: "Steve", Address: "1.2.3.4"})
	require.Error(t, err)
	assert.False(t, d.Allow)
}
