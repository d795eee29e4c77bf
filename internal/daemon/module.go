// Package daemon composes the whole process: configuration, stores,
// pollers, watcher, automation, and the HTTP surface, wired through fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/action"
	"github.com/pvieira/imsgd/internal/api"
	"github.com/pvieira/imsgd/internal/automation"
	"github.com/pvieira/imsgd/internal/bus"
	"github.com/pvieira/imsgd/internal/config"
	"github.com/pvieira/imsgd/internal/lock"
	"github.com/pvieira/imsgd/internal/logging"
	"github.com/pvieira/imsgd/internal/notify"
	"github.com/pvieira/imsgd/internal/outgoing"
	"github.com/pvieira/imsgd/internal/poller"
	"github.com/pvieira/imsgd/internal/session"
	"github.com/pvieira/imsgd/internal/status"
	"github.com/pvieira/imsgd/internal/store"
	"github.com/pvieira/imsgd/internal/watcher"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideAppDB,
			provideChatDB,
			provideManager,
			provideMessenger,
			provideOrchestrator,
			providePollers,
			provideWatcher,
			provideDispatcher,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(p Params) (*config.Daemon, error) {
	return config.LoadDaemon(session.DaemonConfigPath(p.SessionName))
}

func provideBus() *bus.Bus {
	return bus.NewBus()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideAppDB(p Params, logger *zap.Logger) (*store.AppDB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.OpenAppDB(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideChatDB(cfg *config.Daemon, logger *zap.Logger) (*store.ChatDB, error) {
	db, err := store.OpenChatDB(cfg.MessagesDBPath)
	if err != nil {
		return nil, err
	}
	logger.Info("messages database opened", zap.String("path", cfg.MessagesDBPath))
	return db, nil
}

func provideManager(logger *zap.Logger) *outgoing.Manager {
	return outgoing.NewManager(logger)
}

func provideMessenger(logger *zap.Logger) *automation.Messages {
	return automation.NewMessages(automation.NewOsaRunner(logger), logger)
}

func provideOrchestrator(msgs *automation.Messages, mgr *outgoing.Manager, chats *store.ChatDB, app *store.AppDB, b *bus.Bus, cfg *config.Daemon, logger *zap.Logger) *action.Orchestrator {
	return action.New(msgs, mgr, chats, app, b, action.Config{
		TextMatchTimeout:       cfg.TextMatchTimeout(),
		AttachmentMatchTimeout: cfg.AttachmentMatchTimeout(),
		SendOffset:             cfg.SendOffset(),
	}, logger)
}

func providePollers(chats *store.ChatDB, mgr *outgoing.Manager, cfg *config.Daemon, logger *zap.Logger) []watcher.Poller {
	skew := cfg.PollSkew()
	return []watcher.Poller{
		poller.NewMessagePoller(chats, mgr, skew, logger),
		poller.NewOutgoingPoller(chats, mgr, skew, logger),
		poller.NewChatPoller(chats, skew, logger),
	}
}

func provideWatcher(pollers []watcher.Poller, b *bus.Bus, app *store.AppDB, cfg *config.Daemon, logger *zap.Logger) *watcher.Watcher {
	return watcher.New(watcher.Options{
		DBPath:          cfg.MessagesDBPath,
		Debounce:        cfg.Debounce(),
		CacheMaxAge:     cfg.CacheMaxAge(),
		CacheMaxEntries: cfg.CacheMaxEntries,
	}, pollers, b, app, logger)
}

func provideDispatcher(b *bus.Bus, cfg *config.Daemon, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(b, cfg.WebhookURL, logger)
}

func provideServer(p Params, orch *action.Orchestrator, chats *store.ChatDB, app *store.AppDB, b *bus.Bus, machine *status.Machine, cfg *config.Daemon, logger *zap.Logger) *api.Server {
	return api.New(cfg.HTTPAddr, p.SessionName, orch, chats, app, b, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *api.Server, w *watcher.Watcher, d *notify.Dispatcher, lk *lock.Lock, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			_ = machine.Transition(status.Starting)

			if err := w.Start(); err != nil {
				_ = machine.Transition(status.Error)
				return err
			}
			d.Start()
			if err := srv.Start(); err != nil {
				_ = machine.Transition(status.Error)
				return err
			}

			// Run one pass immediately so activity while the daemon was
			// down is picked up before the first filesystem event.
			go w.RunPass()

			_ = machine.Transition(status.Watching)
			logger.Info("daemon running")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Stopping)
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("stopping http server", zap.Error(err))
			}
			w.Stop()
			d.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
