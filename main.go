package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/orbscreener/config"
	"sjsage522/orbscreener/internal/crawler"
	"sjsage522/orbscreener/internal/dedup"
	"sjsage522/orbscreener/internal/normalize"
	"sjsage522/orbscreener/internal/run"
	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/internal/source/chrome"
	"sjsage522/orbscreener/internal/source/replay"
	"sjsage522/orbscreener/logger"
	"sjsage522/orbscreener/services/cache"
	"sjsage522/orbscreener/services/proxy"
	"sjsage522/orbscreener/services/publisher"
	"sjsage522/orbscreener/services/store"
	"sjsage522/orbscreener/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.LoadTabs(); err != nil {
		log.Fatal().Err(err).Msg("Invalid tabs file")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	loc, err := run.LoadLocation(cfg.TimeZone)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid time zone")
	}
	policy, err := dedup.ParsePolicy(cfg.DedupPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid dedup policy")
	}
	if _, err := proxy.NewSelector(cfg.Proxies); err != nil {
		log.Fatal().Err(err).Msg("Invalid ORB_PROXIES")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("schedule", cfg.Schedule).
		Str("policy", string(policy)).
		Int("tabs", len(cfg.Tabs)).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	pipeline := newPipeline(cfg, loc, policy, services)
	w := worker.NewWorker(pipeline, cfg.Schedule, loc)

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting ORB screener worker")
		workerDone <- w.Start(ctx)
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
			services.Cleanup()
			os.Exit(1)
		}
		log.Info().Msg("Worker exited normally")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Store     *store.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services. It is safe to call more than once.
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
		s.Publisher = nil
	}
	if s.Store != nil {
		s.Store.Close()
		s.Store = nil
	}
}

// initializeServices initializes all required services. Memcache and Redis
// are optional: without memcache, dedup keys are shared through an in-process
// cache instead.
func initializeServices(ctx context.Context, cfg *config.Config, policy dedup.Policy) (*Services, error) {
	services := &Services{}

	// Initialize store
	st, err := store.Open(store.Dialect(cfg.DBDriver), cfg.DBDSN, policy)
	if err != nil {
		return nil, err
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}
	services.Store = st
	logger.Info("Connected to %s database", cfg.DBDriver)

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := cacheService.Ping(); err != nil {
			logger.Warn("Memcache at %s unavailable, dedup keys stay in process: %v", cfg.MemcacheAddr, err)
		} else {
			services.Cache = cacheService
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}
	if services.Cache == nil {
		services.Cache = cache.NewMemoryCache()
	}

	// Initialize publisher
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(ctx); err != nil {
			services.Cleanup()
			redisPublisher.Close()
			return nil, err
		}
		services.Publisher = redisPublisher
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services, nil
}

func newPipeline(cfg *config.Config, loc *time.Location, policy dedup.Policy, services *Services) *worker.Pipeline {
	p := worker.NewPipeline(newOpener(cfg), services.Store, worker.Options{
		Tabs:       crawler.CreateTabs(cfg),
		Crawl:      crawler.NewConfig(cfg),
		Layout:     normalize.DefaultLayout,
		Policy:     policy,
		Location:   loc,
		BulkInsert: cfg.BulkInsert,
		Accuracy: worker.AccuracyOptions{
			PageURL: cfg.AccuracyURL,
			Control: source.XPath(cfg.AccuracyControl),
			Wait:    cfg.AccuracyWait,
		},
	})
	p.WithCache(services.Cache)
	if services.Publisher != nil {
		p.WithPublisher(services.Publisher)
	}
	return p
}

// newOpener returns the source for every run: saved pages when a replay
// directory is configured, a logged-in browser otherwise
func newOpener(cfg *config.Config) worker.Opener {
	if cfg.ReplayDir != "" {
		opts := replay.Options{CellSelector: cfg.CellSelector, NextSelector: cfg.NextSelector}
		return func(ctx context.Context) (source.Adapter, error) {
			a, err := replay.LoadDir(cfg.ReplayDir, opts)
			if err != nil {
				return nil, err
			}
			return a, nil
		}
	}

	opts := chrome.DefaultOptions()
	opts.LoginURL = cfg.LoginURL
	opts.PageURL = cfg.PageURL
	opts.Email = cfg.Email
	opts.Password = cfg.Password
	opts.CellSelector = cfg.CellSelector
	opts.Headless = cfg.Headless
	opts.ExecPath = cfg.ChromePath
	opts.ExtraFlags = cfg.ChromeFlags
	opts.LoginWait = cfg.LoginWait
	opts.PageSettle = cfg.TabSettle

	return func(ctx context.Context) (source.Adapter, error) {
		opts := opts
		if len(cfg.Proxies) > 0 {
			selector, err := proxy.NewSelector(cfg.Proxies)
			if err != nil {
				return nil, err
			}
			fastest, err := selector.Fastest(ctx)
			if err != nil {
				return nil, err
			}
			opts.ProxyServer = fastest.URL()
		}
		a, err := chrome.Open(ctx, opts, logger.ForSource("chrome"))
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}
