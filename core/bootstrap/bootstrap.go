package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"botfleet/core/bots"
	"botfleet/core/broadcast"
	coreconfig "botfleet/core/config"
	coredatabase "botfleet/core/database"
	"botfleet/core/flow"
	"botfleet/core/logger"
	"botfleet/core/menu"
	"botfleet/core/platform"
	"botfleet/core/router"
	"botfleet/core/store"
	"botfleet/core/subscriber"
	"botfleet/core/vault"
)

// Options control the bootstrap pipeline. The hooks exist so tests can
// substitute infrastructure without a running Postgres.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// App holds the wired service graph.
type App struct {
	Config *coreconfig.Config
	DB     *sqlx.DB
	Router *router.Router
	Server *router.Server

	navLog *menu.NavLog
}

// Run initializes the logger, connects to the database, applies migrations,
// and wires the full service graph.
func Run(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	dbCfg := databaseConfig(cfg.Database)
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	v, err := vault.New(cfg.Vault.Key)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: vault init failed: %w", err)
	}

	registry := bots.NewRegistry(
		store.NewBots(db),
		store.NewUsers(db),
		v,
		platform.NewFactory(),
		cfg.Server.PublicURL,
	)

	navLog := menu.NewNavLog(store.NewNavigationEvents(db), menu.NavLogOptions{})
	engine := menu.NewEngine(store.NewMenus(db), store.NewNavigation(db), navLog)

	subscribers := store.NewSubscribers(db)
	rtr := router.New(router.Deps{
		Bots:        registry,
		Subscribers: subscriber.NewService(subscribers),
		Flows:       flow.NewService(store.NewFlowStates(db), cfg.FlowTTL()),
		Menus:       engine,
		Broadcasts: broadcast.NewEngine(store.NewBroadcasts(db), subscribers, broadcast.Options{
			MessagesPerSecond: float64(cfg.Broadcast.MessagesPerSecond),
			ProgressEvery:     cfg.Broadcast.ProgressEvery,
		}),
		RateLimit: rateLimitOptions(cfg.RateLimit),
	})

	return &App{
		Config: cfg,
		DB:     db,
		Router: rtr,
		Server: router.NewServer(cfg.Server, registry, rtr),
		navLog: navLog,
	}, nil
}

// Close flushes the navigation log and releases the database pool. Call it
// after the server has stopped.
func (a *App) Close() error {
	a.navLog.Close()
	return a.DB.Close()
}

// databaseConfig maps the config section onto core/database's own Config.
// The two structs exist so core/config stays a leaf package.
func databaseConfig(cfg coreconfig.DatabaseConfig) coredatabase.Config {
	return coredatabase.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		User:           cfg.User,
		Password:       cfg.Password,
		Name:           cfg.Name,
		SSLMode:        cfg.SSLMode,
		MaxConnections: cfg.MaxConnections,
	}
}

func rateLimitOptions(cfg coreconfig.RateLimitConfig) router.RateLimitOptions {
	opts := router.RateLimitOptions{Interval: cfg.Interval()}
	if len(cfg.ExcludeUpdates) > 0 {
		opts.Exclude = make(map[string]struct{}, len(cfg.ExcludeUpdates))
		for _, kind := range cfg.ExcludeUpdates {
			opts.Exclude[kind] = struct{}{}
		}
	}
	return opts
}
