// Package discord owns the lifecycle of the bot session used to deliver
// confirmation codes and operator alerts.
package discord

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/Andromedov/DiscordVerificator/internal/authorize"
	"github.com/Andromedov/DiscordVerificator/internal/config"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

// Session states. Transitions: Disconnected → Connecting → Ready, and back
// to Disconnected on failure, shutdown, or reload.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateReady
)

// Timeouts bounding session teardown. A reload is operator-initiated and
// tolerates more latency than a plain shutdown.
const (
	defaultStopTimeout   = 5 * time.Second
	defaultReloadTimeout = 10 * time.Second
)

// Conn is one live connection to the notification channel.
type Conn interface {
	Close() error
	SendMessage(channelID string, msg *discordgo.MessageSend) error
}

// SessionEvents are the callbacks a dialed connection reports through.
type SessionEvents struct {
	OnReady      func()
	OnDisconnect func()
}

// DialFunc establishes a connection and completes its handshake.
type DialFunc func(events SessionEvents) (Conn, error)

// Supervisor owns the singleton session: at most one live connection, a
// single in-flight lifecycle operation at a time, and a readiness flag that
// is freely readable while lifecycle operations run.
type Supervisor struct {
	logger         *slog.Logger
	dial           DialFunc
	catalog        *messages.Catalog
	alertChannelID string
	limiter        *rate.Limiter

	stopTimeout   time.Duration
	reloadTimeout time.Duration

	lifecycle sync.Mutex // serializes start/stop/reload
	reloading atomic.Bool
	state     atomic.Int32
	gen       atomic.Uint64 // invalidates events from torn-down sessions

	connMu sync.RWMutex
	conn   Conn
}

// NewSupervisor creates the session supervisor. The dial function is
// injected so tests run against fakes.
func NewSupervisor(log *slog.Logger, cfg config.DiscordConfig, catalog *messages.Catalog, dial DialFunc) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	perMinute := cfg.AlertsPerMinute
	if perMinute <= 0 {
		perMinute = config.DefaultAlertsPerMinute
	}
	burst := cfg.AlertBurst
	if burst <= 0 {
		burst = config.DefaultAlertBurst
	}
	return &Supervisor{
		logger:         log.With(slog.String("component", "discord")),
		dial:           dial,
		catalog:        catalog,
		alertChannelID: cfg.AlertChannelID,
		limiter:        rate.NewLimiter(rate.Limit(perMinute)/60, burst),
		stopTimeout:    defaultStopTimeout,
		reloadTimeout:  defaultReloadTimeout,
	}
}

// Start tears down any prior session and establishes a new one. A failed
// handshake leaves the supervisor Disconnected and returns the error; it
// never crashes the host process.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.teardownLocked(ctx, s.stopTimeout)
	return s.startLocked()
}

// Stop requests a graceful shutdown, forcing termination past the timeout.
// Always ends Disconnected.
func (s *Supervisor) Stop(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.teardownLocked(ctx, s.stopTimeout)
}

// Reload atomically stops and restarts the session. At most one reload is
// in flight; a concurrent request is a no-op.
func (s *Supervisor) Reload(ctx context.Context) error {
	if !s.reloading.CompareAndSwap(false, true) {
		s.logger.Info("reload already in progress, ignoring")
		return nil
	}
	defer s.reloading.Store(false)

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.teardownLocked(ctx, s.reloadTimeout)
	return s.startLocked()
}

// IsReady reports whether the session completed its handshake and has not
// disconnected since. Non-blocking; reflects the most recent transition.
func (s *Supervisor) IsReady() bool {
	return s.state.Load() == StateReady
}

// SendAlert delivers an operator alert, fire-and-forget. Skipped when the
// session is not ready or the configured rate limit is exceeded.
func (s *Supervisor) SendAlert(ctx context.Context, alert authorize.Alert) {
	if !s.IsReady() {
		s.logger.Debug("alert skipped, session not ready", slog.String("kind", string(alert.Kind)))
		return
	}
	if s.alertChannelID == "" {
		s.logger.Warn("alert dropped, no alert channel configured", slog.String("kind", string(alert.Kind)))
		return
	}
	if !s.limiter.Allow() {
		s.logger.Warn("alert dropped, rate limit exceeded", slog.String("kind", string(alert.Kind)))
		return
	}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return
	}

	msg := buildAlertMessage(s.catalog, alert)
	go func() {
		if err := conn.SendMessage(s.alertChannelID, msg); err != nil {
			s.logger.Error("alert send failed",
				slog.String("kind", string(alert.Kind)), slog.Any("error", err))
		}
	}()
}

func (s *Supervisor) startLocked() error {
	s.state.Store(StateConnecting)
	gen := s.gen.Load()

	conn, err := s.dial(SessionEvents{
		OnReady: func() {
			if s.gen.Load() == gen {
				s.state.Store(StateReady)
			}
		},
		OnDisconnect: func() {
			if s.gen.Load() == gen {
				s.state.Store(StateDisconnected)
				s.logger.Warn("session disconnected")
			}
		},
	})
	if err != nil {
		s.state.Store(StateDisconnected)
		s.logger.Error("session start failed", slog.Any("error", err))
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// teardownLocked closes the current session, bounded by timeout. The
// readiness flag flips to false before teardown begins, so no decision flow
// observes Ready against a channel that is mid-teardown. Forced termination
// (abandoning a hung close) keeps that guarantee: the flag is already down.
func (s *Supervisor) teardownLocked(ctx context.Context, timeout time.Duration) {
	s.gen.Add(1)
	s.state.Store(StateDisconnected)

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()
	if conn == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- conn.Close() }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("session close failed", slog.Any("error", err))
		}
	case <-time.After(timeout):
		s.logger.Warn("session close timed out, abandoning", slog.Duration("timeout", timeout))
	case <-ctx.Done():
		s.logger.Warn("session close interrupted", slog.Any("error", ctx.Err()))
	}
}
