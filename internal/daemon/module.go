package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gabomarinc/konsul-console/internal/bus"
	"github.com/gabomarinc/konsul-console/internal/config"
	"github.com/gabomarinc/konsul-console/internal/dashboard"
	"github.com/gabomarinc/konsul-console/internal/gateway"
	"github.com/gabomarinc/konsul-console/internal/lock"
	"github.com/gabomarinc/konsul-console/internal/logging"
	"github.com/gabomarinc/konsul-console/internal/notify"
	"github.com/gabomarinc/konsul-console/internal/profile"
	"github.com/gabomarinc/konsul-console/internal/readstate"
	"github.com/gabomarinc/konsul-console/internal/status"
	"github.com/gabomarinc/konsul-console/internal/store"
	chatsync "github.com/gabomarinc/konsul-console/internal/sync"
	"github.com/gabomarinc/konsul-console/internal/ws"
)

// Params holds the resolved profile and configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks. This is the process-wide composition root: components get
// their collaborators here, never from ambient globals.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideGateway,
			provideTracker,
			providePresenter,
			provideEngine,
			provideController,
			provideHub,
			provideHandlers,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.StateDBPath(p.Profile)
	db, err := store.Open(dbPath)
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

func provideGateway(p Params, logger *zap.Logger) *gateway.Client {
	return gateway.New(p.Config.Gateway.Token,
		gateway.WithBaseURL(p.Config.Gateway.BaseURL),
		gateway.WithCacheTTL(p.Config.Gateway.CacheTTL.Std()),
		gateway.WithLogger(logger),
	)
}

func provideTracker(p Params, db *store.DB, logger *zap.Logger) *readstate.Tracker {
	return readstate.New(db, p.Config.Gateway.Workspace, logger)
}

func providePresenter(p Params, b *bus.Bus, db *store.DB, logger *zap.Logger) *notify.Presenter {
	return notify.New(p.Config.Notify.MaxEntries, b, db, logger)
}

func provideEngine(p Params, client *gateway.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *chatsync.Engine {
	return chatsync.NewEngine(client, b, m, chatsync.Options{
		Workspace: p.Config.Gateway.Workspace,
		Interval:  p.Config.Sync.Interval.Std(),
		PageSize:  p.Config.Gateway.PageSize,
	}, logger)
}

func provideController(
	p Params,
	b *bus.Bus,
	tracker *readstate.Tracker,
	presenter *notify.Presenter,
	engine *chatsync.Engine,
	client *gateway.Client,
	logger *zap.Logger,
) *dashboard.Controller {
	return dashboard.New(dashboard.Params{
		Bus:       b,
		Tracker:   tracker,
		Presenter: presenter,
		Engine:    engine,
		Gateway:   client,
		Workspace: p.Config.Gateway.Workspace,
		PageSize:  p.Config.Gateway.PageSize,
		Logger:    logger,
	})
}

func provideHub(p Params, b *bus.Bus, logger *zap.Logger) *ws.Hub {
	return ws.NewHub(b, p.Profile, logger)
}

func provideHandlers(
	p Params,
	controller *dashboard.Controller,
	presenter *notify.Presenter,
	tracker *readstate.Tracker,
	engine *chatsync.Engine,
	m *status.Machine,
	client *gateway.Client,
	db *store.DB,
	hub *ws.Hub,
	logger *zap.Logger,
) *Handlers {
	return NewHandlers(HandlerDeps{
		Controller: controller,
		Presenter:  presenter,
		Tracker:    tracker,
		Engine:     engine,
		Machine:    m,
		Client:     client,
		DB:         db,
		Hub:        hub,
		Workspace:  p.Config.Gateway.Workspace,
		Logger:     logger,
	})
}

func provideServer(p Params, h *Handlers, logger *zap.Logger) (*Server, error) {
	return NewServer(p.Config.Server.Listen, h, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	engine *chatsync.Engine,
	controller *dashboard.Controller,
	hub *ws.Hub,
	client *gateway.Client,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			controller.Start(context.Background())
			hub.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("console API server error", zap.Error(err))
				}
			}()

			if !client.HasToken() {
				// The first cycle fails fast with ErrUnauthenticated and parks
				// the daemon in AUTH_REQUIRED without a network call.
				logger.Warn("no gateway token configured, sync will pause for auth")
			}
			return engine.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			controller.Stop()
			hub.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
