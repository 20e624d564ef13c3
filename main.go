package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"renter-registry/internal/api"
	"renter-registry/internal/constants"
	"renter-registry/internal/matching"
	"renter-registry/internal/processor"
	"renter-registry/internal/store"
	"renter-registry/pkg/circuit"
	"renter-registry/pkg/config"
	"renter-registry/pkg/container"
	"renter-registry/pkg/database"
	"renter-registry/pkg/events"
	"renter-registry/pkg/health"
	"renter-registry/pkg/logging"
	"renter-registry/pkg/metrics"
	"renter-registry/pkg/monitoring"
)

// registry is everything the process needs from a profile store.
type registry interface {
	matching.CandidateProvider
	matching.GenericNameHints
	matching.ProfileStore
	matching.ProfileLister
	matching.SuspectRecorder
	api.SuspectLister
	health.Pinger
}

var version = "dev"

func main() {
	c := container.New()
	if err := provide(c); err != nil {
		log.Fatal("container setup:", err)
	}
	if err := run(c); err != nil {
		log.Fatal(err)
	}
}

func provide(c *container.Container) error {
	return errors.Join(
		// Config (validated once at startup; the watcher re-validates on reload)
		container.Provide(c, func(*container.Container) (*config.Config, error) {
			cfg := config.Load()
			return cfg, cfg.Validate()
		}),

		container.Provide(c, func(c *container.Container) (*logging.Logger, error) {
			cfg, err := container.Resolve[*config.Config](c)
			if err != nil {
				return nil, err
			}
			lc := logging.DefaultLogConfig()
			lc.Level = logging.ParseLevel(cfg.LogLevel)
			lc.Format = cfg.LogFormat
			if cfg.EnableFileLogging {
				lc.Output = cfg.LogFile
			}
			l, err := logging.NewLogger(lc)
			if err != nil {
				return nil, err
			}
			c.OnClose("logger", l.Close)
			return l, nil
		}),

		container.Provide(c, func(*container.Container) (*prometheus.Registry, error) {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return reg, nil
		}),

		container.Provide(c, func(c *container.Container) (*metrics.Metrics, error) {
			reg, err := container.Resolve[*prometheus.Registry](c)
			if err != nil {
				return nil, err
			}
			return metrics.New(reg), nil
		}),

		container.Provide(c, func(c *container.Container) (matching.Policy, error) {
			cfg, err := container.Resolve[*config.Config](c)
			if err != nil {
				return matching.Policy{}, err
			}
			return config.LoadPolicy(cfg.PolicyFile, DefaultPolicy())
		}),

		container.Provide(c, func(c *container.Container) (*database.DB, error) {
			cfg, err := container.Resolve[*config.Config](c)
			if err != nil {
				return nil, err
			}
			db, err := database.NewWithConfig(cfg.DatabaseURL, cfg.PoolConfig())
			if err != nil {
				return nil, err
			}
			c.OnClose("database", db.Close)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := db.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
			return db, nil
		}),

		container.Provide(c, func(c *container.Container) (registry, error) {
			cfg, err := container.Resolve[*config.Config](c)
			if err != nil {
				return nil, err
			}
			if cfg.StoreDriver == "memory" {
				return store.NewMemory(cfg.GenericNameMinCount), nil
			}
			db, err := container.Resolve[*database.DB](c)
			if err != nil {
				return nil, err
			}
			return store.NewMySQL(db, cfg.GenericNameMinCount), nil
		}),

		// Event store; nil when EVENTS_ENABLED=false
		container.Provide(c, func(c *container.Container) (events.EventStore, error) {
			cfg, err := container.Resolve[*config.Config](c)
			if err != nil || !cfg.EventsEnabled {
				return nil, err
			}
			if cfg.StoreDriver == "memory" {
				return events.NewMemoryStore(), nil
			}
			db, err := container.Resolve[*database.DB](c)
			if err != nil {
				return nil, err
			}
			return events.NewSQLEventStore(db), nil
		}),

		container.Provide(c, func(c *container.Container) (*matching.Service, error) {
			reg, err := container.Resolve[registry](c)
			if err != nil {
				return nil, err
			}
			es, err := container.Resolve[events.EventStore](c)
			if err != nil {
				return nil, err
			}
			policy, err := container.Resolve[matching.Policy](c)
			if err != nil {
				return nil, err
			}
			logger := container.MustResolve[*logging.Logger](c)
			m := container.MustResolve[*metrics.Metrics](c)
			lookups := store.NewGuarded(reg, circuit.New(circuit.Config{
				Name:              "candidates",
				OpenFor:           constants.BreakerOpenForDefault,
				MaxConsecFailures: constants.BreakerMaxConsecFailures,
				FailureRate:       constants.BreakerFailureRateDefault,
				SlowCallThreshold: constants.BreakerSlowCallDefault,
			}, circuit.WithLogger(logger), circuit.WithMetrics(m)))
			return matching.NewService(lookups, policy,
				matching.WithHints(lookups),
				matching.WithProfileStore(reg),
				matching.WithEventStore(es),
				matching.WithLogger(logger),
				matching.WithMetrics(m),
			)
		}),

		// Duplicate sweeper; nil when SWEEP_ENABLED=false
		container.Provide(c, func(c *container.Container) (*processor.Sweeper, error) {
			cfg, err := container.Resolve[*config.Config](c)
			if err != nil || !cfg.SweepEnabled {
				return nil, err
			}
			svc, err := container.Resolve[*matching.Service](c)
			if err != nil {
				return nil, err
			}
			reg := container.MustResolve[registry](c)
			sc := processor.DefaultSweepConfig()
			sc.Interval = cfg.SweepInterval
			sc.Workers = cfg.SweepWorkers
			sc.RPS = cfg.SweepRPS
			sc.Burst = cfg.SweepBurst
			sc.BatchSize = cfg.SweepBatchSize
			sc.Lookback = cfg.SweepLookback
			return processor.NewSweeper(svc, reg, reg, sc,
				processor.WithSweepLogger(container.MustResolve[*logging.Logger](c)),
				processor.WithSweepMetrics(container.MustResolve[*metrics.Metrics](c)),
				processor.WithSweepEvents(container.MustResolve[events.EventStore](c)),
			), nil
		}),

		container.Provide(c, func(c *container.Container) (*health.Manager, error) {
			hm := health.NewManager(health.Config{Timeout: constants.HealthTimeoutDefault, Version: version},
				container.MustResolve[*logging.Logger](c))
			hm.Register(health.NewPingChecker("store", container.MustResolve[registry](c)))
			if sw := container.MustResolve[*processor.Sweeper](c); sw != nil {
				hm.Register(health.NewStatsChecker("sweeper", sw.GetStats, func(st processor.SweepStats) bool {
					return st.ProfilesChecked > 0 && st.FailedJobs*2 > st.ProfilesChecked
				}))
			}
			return hm, nil
		}),

		container.Provide(c, func(c *container.Container) (*config.Watcher, error) {
			snap := config.Snapshot{
				Env:    container.MustResolve[*config.Config](c),
				Policy: container.MustResolve[matching.Policy](c),
			}
			w, err := config.NewWatcher(snap, DefaultPolicy(),
				config.WithWatcherLogger(container.MustResolve[*logging.Logger](c)),
				config.WithWatcherMetrics(container.MustResolve[*metrics.Metrics](c)))
			if err != nil {
				return nil, err
			}
			c.OnClose("config watcher", func() error { w.Close(); return nil })
			return w, nil
		}),
	)
}

func run(c *container.Container) error {
	cfg, err := container.Resolve[*config.Config](c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := container.Resolve[*logging.Logger](c)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()
	appLog := logger.WithComponent("main")
	appLog.Info("starting renter registry",
		logging.String("version", version),
		logging.Any("config", cfg.GetConfigSummary()))

	svc, err := container.Resolve[*matching.Service](c)
	if err != nil {
		return fmt.Errorf("matching service: %w", err)
	}
	sweeper, err := container.Resolve[*processor.Sweeper](c)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	hm, err := container.Resolve[*health.Manager](c)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	watcher, err := container.Resolve[*config.Watcher](c)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	// Hot reload: policy changes swap the engine; sweep rates apply live.
	watcher.Start()
	changes := watcher.Subscribe()
	go func() {
		for chg := range changes {
			if chg.Err != nil {
				continue
			}
			if err := svc.ApplyConfig(chg.New.Policy); err != nil {
				appLog.Error("match policy rejected", err)
				continue
			}
			if sweeper != nil {
				sweeper.ApplyRate(chg.New.Env.SweepRPS, chg.New.Env.SweepBurst)
			}
			appLog.Info("configuration applied", logging.Strings("fields", chg.Fields))
		}
	}()

	if sweeper != nil {
		sweeper.Start(true)
	}

	router := mux.NewRouter()
	router.Use(monitoring.Middleware(container.MustResolve[*metrics.Metrics](c)))
	hm.Routes(router, cfg.HealthCheckPath)
	if cfg.MetricsEnabled {
		router.Handle(cfg.MetricsPath, metrics.Handler(container.MustResolve[*prometheus.Registry](c))).Methods(http.MethodGet)
	}
	h := &api.Handlers{
		Matcher:  svc,
		Events:   container.MustResolve[events.EventStore](c),
		Suspects: container.MustResolve[registry](c),
		Logger:   logger,
	}
	if sweeper != nil {
		h.Stats = func() any { return sweeper.GetStats() }
	} else {
		h.Suspects = nil
	}
	h.Routes(router, "/api")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		appLog.Info("server starting", logging.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var adminServer *http.Server
	if cfg.ProfilingEnabled {
		monitoring.EnableProfiling(true)
		mx := http.NewServeMux()
		monitoring.RegisterPprof(mx)
		adminServer = &http.Server{Addr: ":" + cfg.ProfilingPort, Handler: mx, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			appLog.Info("admin server (pprof) starting", logging.String("port", cfg.ProfilingPort))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.Error("admin HTTP server error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

wait:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				appLog.Info("received SIGHUP, reloading configuration")
				watcher.Reload()
				continue
			}
			appLog.Info("received shutdown signal", logging.String("signal", sig.String()))
			break wait
		case err := <-serverErr:
			appLog.Error("HTTP server error", err)
			break wait
		}
	}

	if sweeper != nil {
		if err := sweeper.Stop(constants.GracefulShutdownTimeoutDefault); err != nil {
			appLog.Error("sweeper shutdown error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown error", err)
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			appLog.Error("admin HTTP server shutdown error", err)
		}
	}
	appLog.Info("application shutdown complete")
	return nil
}
