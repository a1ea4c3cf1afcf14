// Command verificator runs the Discord-gated login verification service: a
// sidecar the game server consults on every pre-login event.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Andromedov/DiscordVerificator/internal/accounts"
	"github.com/Andromedov/DiscordVerificator/internal/authorize"
	"github.com/Andromedov/DiscordVerificator/internal/codes"
	"github.com/Andromedov/DiscordVerificator/internal/config"
	"github.com/Andromedov/DiscordVerificator/internal/db"
	"github.com/Andromedov/DiscordVerificator/internal/discord"
	"github.com/Andromedov/DiscordVerificator/internal/handlers"
	"github.com/Andromedov/DiscordVerificator/internal/logger"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
	"github.com/Andromedov/DiscordVerificator/internal/retention"
	"github.com/Andromedov/DiscordVerificator/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config TOML (default: CONFIG_PATH env or config.toml)")
	flag.Parse()

	fx.New(
		fx.Provide(
			provideConfig(*configPath),
			provideLogger,
			provideDB,
			provideCatalog,
			provideCodes,
			accounts.NewService,

			provideInteractions,
			provideDialer,
			provideSupervisor,
			provideEngine,
			provideSweeper,

			provideReloader(*configPath),
			provideServerHandler(provideAuthorizeHandler),
			provideServerHandler(provideAccountsHandler),
			provideServerHandler(provideReloadHandler),
			provideServerHandler(handlers.NewPingHandler),

			fx.Annotate(provideServer, fx.ParamTags("", "", `group:"server_handlers"`)),
		),
		fx.Invoke(
			importLegacy,
			startSupervisor,
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig(flagPath string) func() (config.Config, error) {
	return func() (config.Config, error) {
		path := flagPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDB(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*sqlx.DB, error) {
	if err := db.Migrate(log, cfg.SQLite.Path, db.Migrations); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return conn.Close()
		},
	})
	return conn, nil
}

func provideCatalog(cfg config.Config) *messages.Catalog {
	return messages.NewCatalog(cfg.Messages)
}

func provideCodes(cfg config.Config) *codes.Service {
	return codes.NewService(cfg.Verify.CodeLength)
}

func provideInteractions(log *slog.Logger, store *accounts.Service, issuer *codes.Service, catalog *messages.Catalog) *discord.Interactions {
	return discord.NewInteractions(log, store, issuer, catalog)
}

func provideDialer(log *slog.Logger, cfg config.Config, interactions *discord.Interactions) *discord.Dialer {
	return discord.NewDialer(log, cfg.Discord, interactions)
}

func provideSupervisor(log *slog.Logger, cfg config.Config, catalog *messages.Catalog, dialer *discord.Dialer) *discord.Supervisor {
	return discord.NewSupervisor(log, cfg.Discord, catalog, dialer.Dial)
}

func provideEngine(log *slog.Logger, store *accounts.Service, issuer *codes.Service, supervisor *discord.Supervisor, cfg config.Config) *authorize.Engine {
	return authorize.NewEngine(log, store, issuer, supervisor, cfg.Verify.ThrottleSeconds)
}

func provideSweeper(log *slog.Logger, store *accounts.Service, cfg config.Config) *retention.Sweeper {
	return retention.NewSweeper(log, store, cfg.Verify.HistoryRetentionDays, cfg.Verify.PruneSchedule)
}

// reloader re-reads the config file and bounces the notification session.
// Mirrors the original in-game reload command: message overrides apply
// immediately, the session picks up a changed token or channel.
type reloader struct {
	path       string
	logger     *slog.Logger
	catalog    *messages.Catalog
	supervisor *discord.Supervisor
}

func (r *reloader) Reload(ctx context.Context) error {
	cfg, err := config.Load(r.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	r.catalog.Replace(cfg.Messages)
	r.logger.Info("configuration reloaded")
	return r.supervisor.Reload(ctx)
}

func provideReloader(flagPath string) func(*slog.Logger, *messages.Catalog, *discord.Supervisor) handlers.Reloader {
	return func(log *slog.Logger, catalog *messages.Catalog, supervisor *discord.Supervisor) handlers.Reloader {
		path := flagPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		return &reloader{path: path, logger: log, catalog: catalog, supervisor: supervisor}
	}
}

func provideReloadHandler(r handlers.Reloader, catalog *messages.Catalog) *handlers.ReloadHandler {
	return handlers.NewReloadHandler(r, catalog)
}

func provideAuthorizeHandler(engine *authorize.Engine, catalog *messages.Catalog) *handlers.AuthorizeHandler {
	return handlers.NewAuthorizeHandler(engine, catalog)
}

func provideAccountsHandler(store *accounts.Service, catalog *messages.Catalog) *handlers.AccountsHandler {
	return handlers.NewAccountsHandler(store, catalog)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideServer(log *slog.Logger, cfg config.Config, serverHandlers []server.Handler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Server.APIToken, serverHandlers...)
}

// importLegacy upserts the legacy flat-file export, if present, before the
// engine serves any attempt.
func importLegacy(log *slog.Logger, cfg config.Config, store *accounts.Service) error {
	_, err := store.ImportLegacy(context.Background(), cfg.SQLite.LegacyJSONPath)
	if err != nil {
		return fmt.Errorf("legacy import: %w", err)
	}
	return nil
}

func startSupervisor(lc fx.Lifecycle, log *slog.Logger, supervisor *discord.Supervisor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// The dial blocks on the gateway handshake; run it off the
			// startup path. Failure leaves the supervisor Disconnected and
			// the engine denying with a clear outage message.
			go func() {
				if err := supervisor.Start(context.Background()); err != nil {
					log.Warn("discord session unavailable at startup", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			supervisor.Stop(ctx)
			return nil
		},
	})
}

func startSweeper(lc fx.Lifecycle, sweeper *retention.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sweeper.Start()
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
