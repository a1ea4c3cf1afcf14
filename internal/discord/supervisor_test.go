package discord

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andromedov/DiscordVerificator/internal/authorize"
	"github.com/Andromedov/DiscordVerificator/internal/config"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	closeErr error
	blockFor time.Duration // hang Close for this long
	sent     []sentMessage
}

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

func (c *fakeConn) Close() error {
	if c.blockFor > 0 {
		time.Sleep(c.blockFor)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

func (c *fakeConn) SendMessage(channelID string, msg *discordgo.MessageSend) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{channelID: channelID, msg: msg})
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out a fresh fakeConn per dial and keeps the latest
// SessionEvents so tests can drive ready/disconnect transitions.
type fakeDialer struct {
	mu     sync.Mutex
	dials  int
	err    error
	conns  []*fakeConn
	events SessionEvents
}

func (d *fakeDialer) dial(events SessionEvents) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	conn := &fakeConn{}
	d.conns = append(d.conns, conn)
	d.events = events
	return conn, nil
}

func (d *fakeDialer) latestEvents() SessionEvents {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestSupervisor(t *testing.T, dialer *fakeDialer) *Supervisor {
	t.Helper()
	cfg := config.DiscordConfig{AlertChannelID: "chan-1", AlertsPerMinute: 600, AlertBurst: 100}
	s := NewSupervisor(nil, cfg, messages.NewCatalog(nil), dialer.dial)
	s.stopTimeout = 200 * time.Millisecond
	s.reloadTimeout = 200 * time.Millisecond
	return s
}

func TestSupervisorStartBecomesReady(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSupervisor(t, dialer)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsReady(), "not ready before the handshake completes")

	dialer.latestEvents().OnReady()
	assert.True(t, s.IsReady())

	dialer.latestEvents().OnDisconnect()
	assert.False(t, s.IsReady())
}

func TestSupervisorStartFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("invalid token")}
	s := newTestSupervisor(t, dialer)

	require.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsReady())
}

func TestSupervisorStopClosesConn(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSupervisor(t, dialer)
	require.NoError(t, s.Start(context.Background()))
	dialer.latestEvents().OnReady()

	s.Stop(context.Background())
	assert.False(t, s.IsReady())
	assert.True(t, dialer.conns[0].isClosed())
}

func TestSupervisorForcedStop(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSupervisor(t, dialer)
	require.NoError(t, s.Start(context.Background()))
	dialer.conns[0].blockFor = time.Second

	start := time.Now()
	s.Stop(context.Background())
	assert.Less(t, time.Since(start), 800*time.Millisecond, "stop must abandon a hung close")
	assert.False(t, s.IsReady())
}

func TestSupervisorReloadReplacesSession(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSupervisor(t, dialer)
	require.NoError(t, s.Start(context.Background()))
	dialer.latestEvents().OnReady()
	staleEvents := dialer.latestEvents()

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 2, dialer.dialCount())
	assert.True(t, dialer.conns[0].isClosed())

	// The replacement session has not handshaken yet.
	assert.False(t, s.IsReady())

	// A late event from the torn-down session must not flip readiness.
	staleEvents.OnReady()
	assert.False(t, s.IsReady())

	dialer.latestEvents().OnReady()
	assert.True(t, s.IsReady())
}

func TestSupervisorReloadSingleFlight(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSupervisor(t, dialer)
	require.NoError(t, s.Start(context.Background()))
	dialer.latestEvents().OnReady()
	dialer.conns[0].blockFor = 100 * time.Millisecond

	var wg sync.WaitGroup
	var errCount atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Reload(context.Background()); err != nil {
				errCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, errCount.Load())
	// One reload won the flag; the rest were no-ops.
	assert.Equal(t, 2, dialer.dialCount())
}

func TestSupervisorSendAlertRequiresReady(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSupervisor(t, dialer)
	require.NoError(t, s.Start(context.Background()))

	alert := authorize.Alert{Kind: authorize.AlertSharedAddress, Player: "Steve", ExternalID: "D1"}

	s.SendAlert(context.Background(), alert)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, dialer.conns[0].sentCount(), "not ready: alert dropped")

	dialer.latestEvents().OnReady()
	s.SendAlert(context.Background(), alert)
	require.Eventually(t, func() bool {
		return dialer.conns[0].sentCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "chan-1", dialer.conns[0].sent[0].channelID)
}

func TestSupervisorSendAlertRateLimited(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := config.DiscordConfig{AlertChannelID: "chan-1", AlertsPerMinute: 60, AlertBurst: 2}
	s := NewSupervisor(nil, cfg, messages.NewCatalog(nil), dialer.dial)
	require.NoError(t, s.Start(context.Background()))
	dialer.latestEvents().OnReady()

	alert := authorize.Alert{Kind: authorize.AlertSharedAddress, Player: "Steve", ExternalID: "D1"}
	for range 10 {
		s.SendAlert(context.Background(), alert)
	}
	require.Eventually(t, func() bool {
		return dialer.conns[0].sentCount() == 2
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, dialer.conns[0].sentCount(), "burst spent, the rest dropped")
}

func TestSupervisorSendAlertNoChannel(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := config.DiscordConfig{AlertsPerMinute: 600, AlertBurst: 100}
	s := NewSupervisor(nil, cfg, messages.NewCatalog(nil), dialer.dial)
	require.NoError(t, s.Start(context.Background()))
	dialer.latestEvents().OnReady()

	s.SendAlert(context.Background(), authorize.Alert{Kind: authorize.AlertSharedAddress})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, dialer.conns[0].sentCount())
}
