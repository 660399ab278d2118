package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pricewatch/internal/config"
	"github.com/MrSnakeDoc/pricewatch/internal/extract"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/normalize"
	"github.com/MrSnakeDoc/pricewatch/internal/redis"
	"github.com/MrSnakeDoc/pricewatch/internal/refresh"
	"github.com/MrSnakeDoc/pricewatch/internal/scheduler"
	"github.com/MrSnakeDoc/pricewatch/internal/sources/watchlist"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	redisstore "github.com/MrSnakeDoc/pricewatch/internal/store/redis"
	"github.com/MrSnakeDoc/pricewatch/internal/utils"
	"github.com/MrSnakeDoc/pricewatch/internal/version"
)

// fetchSlack covers normalization, persistence and queueing for a render slot.
const fetchSlack = 15 * time.Second

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	store       store.Store
	redisClient *goredis.Client
	refresher   *scheduler.RefreshScheduler
	gc          *scheduler.OrphanCollector
	importer    *scheduler.WatchlistImporter
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	ctx := context.Background()

	// Store first - fail fast if unavailable
	st, backend, err := openStore(ctx, cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to open %s store: %v", backend, err)
		os.Exit(1)
	}
	loggerClient.Info("store initialized", logger.String("backend", backend))

	// Redis is optional: without it sweeps are only logged.
	var (
		redisClient *goredis.Client
		recorder    refresh.Recorder = refresh.NopRecorder{}
		journal     deps.Journal
	)
	if cfg.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.Connect(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		j := redisstore.NewJournal(redisClient)
		recorder, journal = j, j
		loggerClient.Info("Redis initialized successfully, sweep journal enabled")
	} else {
		loggerClient.Info("Redis not configured, sweep journal disabled")
	}

	registry := newRegistry(cfg, loggerClient)
	if _, err := registry.Get(cfg.DefaultProvider); err != nil {
		loggerClient.Warn("default provider is not registered, owners must configure one",
			logger.String("provider", cfg.DefaultProvider),
			logger.Strings("available", registry.Names()))
	}
	if cfg.DefaultAPIKey == "" {
		loggerClient.Warn("no default provider credential, extraction requires a per-owner config")
	}

	dispatcher := extract.NewDispatcher(registry, st, extract.Default{
		Provider: cfg.DefaultProvider,
		APIKey:   cfg.DefaultAPIKey,
		Model:    cfg.DefaultModel,
	}, cfg.ProviderTimeout, loggerClient)

	orchestrator := refresh.New(
		newRenderer(cfg, loggerClient),
		normalize.New(cfg.MaxContentChars, loggerClient),
		dispatcher,
		st,
		refresh.Options{
			Workers:       cfg.RefreshWorkers,
			RenderTimeout: cfg.RenderTimeout,
			Location:      cfg.Location,
			Recorder:      recorder,
		},
		loggerClient,
	)

	// Manual refresh trigger, coalesced by its buffer of one
	refreshTrigger := make(chan struct{}, 1)

	refresher := scheduler.NewRefreshScheduler(
		orchestrator,
		loggerClient,
		cfg.RefreshInterval,
		cfg.StartupDelay,
		refreshTrigger,
	)

	gc := scheduler.NewOrphanCollector(st, loggerClient, cfg.OrphanGCInterval, cfg.OrphanGCThreshold)

	var importer *scheduler.WatchlistImporter
	if cfg.WatchlistFile != "" {
		loggerClient.Info("watchlist file configured", logger.String("file", cfg.WatchlistFile))
		importer = scheduler.NewWatchlistImporter(
			watchlist.NewLoader(cfg.WatchlistFile, cfg.WatchlistOwner),
			st,
			orchestrator,
			loggerClient,
		)
	}

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		FetchBurst:      cfg.FetchBurst,
		FetchRefillPerM: cfg.FetchRefillPerM,
		RequestTimeout:  10 * time.Second,
		FetchTimeout:    cfg.RenderTimeout + cfg.ProviderTimeout + fetchSlack,
		ProviderTimeout: cfg.ProviderTimeout + 5*time.Second,
		Store:           st,
		Registrar:       orchestrator,
		Providers:       dispatcher.Registry(),
		DefaultProvider: cfg.DefaultProvider,
		Journal:         journal,
		RefreshTrigger:  refreshTrigger,
		SweepRunning:    refresher.Running,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		store:       st,
		redisClient: redisClient,
		refresher:   refresher,
		gc:          gc,
		importer:    importer,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting pricewatch v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("pricewatch %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresh scheduler: %w", err)
	}

	if err := a.gc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orphan collector: %w", err)
	}
	a.logger.Info("orphan collector started",
		logger.Duration("interval", a.cfg.OrphanGCInterval))

	// Watchlist import renders pages, so it runs in the background.
	if a.importer != nil {
		go func() {
			res, err := a.importer.Import(ctx)
			if err != nil {
				a.logger.Error("watchlist import failed", logger.Error(err))
				return
			}
			a.logger.Info("watchlist imported",
				logger.Int("imported", res.Imported),
				logger.Int("skipped", res.Skipped),
				logger.Int("failed", res.Failed))
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Waits for an in-flight sweep; its context is already cancelled.
	a.refresher.Stop()
	a.gc.Stop()

	utils.MustClose(a.store, a.logger)

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ pricewatch stopped cleanly")
	return nil
}
