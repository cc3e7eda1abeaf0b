package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/alertstream/common/config"
	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/common/messaging"
	natsclient "github.com/telhawk-systems/alertstream/common/messaging/nats"
	"github.com/telhawk-systems/alertstream/consumer/internal/broker"
	"github.com/telhawk-systems/alertstream/consumer/internal/handlers"
	"github.com/telhawk-systems/alertstream/consumer/internal/livefeed"
	"github.com/telhawk-systems/alertstream/consumer/internal/orchestrator"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
	"github.com/telhawk-systems/alertstream/consumer/internal/server"
	"github.com/telhawk-systems/alertstream/consumer/internal/sink"
)

var (
	serveAddr   string
	serveDryRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the consumers and the admin API",
	Long: `Starts one consumer per active source and serves the admin API
(/healthz, /metrics, /api/v1/consumers, /api/v1/livefeed) until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "keep records in memory instead of writing to OpenSearch")
	rootCmd.AddCommand(serveCmd)
}

// cleanupStack runs registered cleanups in reverse order.
type cleanupStack []func()

func (c *cleanupStack) push(fn func()) { *c = append(*c, fn) }

func (c cleanupStack) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveDryRun {
		cfg.Consumer.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanups cleanupStack
	defer cleanups.run()

	reg, fileReg, checks, err := openRegistry(ctx, cfg, &cleanups)
	if err != nil {
		return err
	}

	store, storeChecks, err := buildSink(ctx, cfg, &cleanups)
	if err != nil {
		return err
	}
	checks = append(checks, storeChecks...)

	feed := livefeed.New(cfg.Consumer.LiveFeedCapacity)
	cleanups.push(feed.Close)

	dialer := broker.NewDialer(broker.Options{
		MinBytes:          cfg.Consumer.MinBytes,
		MaxBytes:          cfg.Consumer.MaxBytes,
		MaxWait:           cfg.Consumer.MaxWait,
		NATSMaxReconnects: cfg.NATS.MaxReconnects,
		NATSReconnectWait: cfg.NATS.ReconnectWait,
		Logger:            logger,
	})

	orch := orchestrator.New(reg, dialer, store, feed, orchestrator.Config{
		RetryBackoff: cfg.Consumer.RetryBackoff,
		StoreTimeout: cfg.Consumer.StoreTimeout,
	}, logger)

	handler := handlers.NewConsumerHandler(orch, cfg.Consumer.StopTimeout, logger)
	for _, c := range checks {
		handler.AddCheck(c.name, c.check)
	}

	if cfg.NATS.ForwardLiveFeed {
		check, err := startForwarder(ctx, cfg, feed, &cleanups)
		if err != nil {
			return err
		}
		handler.AddCheck(check.name, check.check)
	}

	if fileReg != nil && cfg.Registry.Watch {
		fileReg.OnChange(func() {
			refreshCtx, cancel := context.WithTimeout(ctx, cfg.Consumer.StopTimeout)
			defer cancel()
			if err := orch.Refresh(refreshCtx); err != nil {
				logger.Error("Refresh after registry change failed", logging.Error(err))
			}
		})
		go func() {
			if err := fileReg.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Registry watch stopped", logging.Error(err))
			}
		}()
	}

	if err := orch.Start(ctx); err != nil {
		// The admin API stays up so consumers can be started once the registry recovers.
		logger.Error("Failed to start consumers", logging.Error(err))
	}

	listenAddr := cfg.Server.Addr()
	if serveAddr != "" {
		listenAddr = serveAddr
	}
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Admin API listening", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.Error("Admin API failed", logging.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Consumer.StopTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown of admin API failed", logging.Error(err))
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Warn("Consumers did not stop cleanly", logging.Error(err))
	}
	logger.Info("Consumer service stopped")
	return nil
}

type namedCheck struct {
	name  string
	check func(context.Context) error
}

// openRegistry builds the configured registry backend. fileReg is non-nil for
// the file backend so the caller can watch it.
func openRegistry(ctx context.Context, cfg *config.Config, cleanups *cleanupStack) (registry.SourceRegistry, *registry.FileRegistry, []namedCheck, error) {
	switch cfg.Registry.Backend {
	case "file":
		fr, err := registry.NewFileRegistry(cfg.Registry.FilePath, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open file registry: %w", err)
		}
		logger.Info("Using file registry", "path", cfg.Registry.FilePath, "sources", len(fr.Sources()))
		return fr, fr, nil, nil
	case "memory":
		logger.Warn("Using empty in-memory registry")
		return registry.NewMemoryRegistry(), nil, nil, nil
	default:
		connString := cfg.Database.Postgres.ConnString()
		if cfg.Database.AutoMigrate {
			if err := migrateUp(cfg.Database.MigrationsDir, connString); err != nil {
				return nil, nil, nil, err
			}
		}
		pg, err := registry.NewPostgresRegistry(ctx, connString)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to registry database: %w", err)
		}
		cleanups.push(pg.Close)
		return pg, nil, []namedCheck{{name: "registry", check: pg.Ping}}, nil
	}
}

func buildSink(ctx context.Context, cfg *config.Config, cleanups *cleanupStack) (sink.AnalyticalSink, []namedCheck, error) {
	if cfg.Consumer.DryRun {
		logger.Warn("Dry run: records are kept in memory only")
		return sink.NewMemorySink(), nil, nil
	}

	osSink, err := sink.NewOpenSearchSink(sink.OpenSearchConfig{
		URL:             cfg.OpenSearch.URL,
		Username:        cfg.OpenSearch.Username,
		Password:        cfg.OpenSearch.Password,
		TLSSkipVerify:   cfg.OpenSearch.TLSSkipVerify,
		IndexPrefix:     cfg.OpenSearch.IndexPrefix,
		ShardCount:      cfg.OpenSearch.ShardCount,
		ReplicaCount:    cfg.OpenSearch.ReplicaCount,
		RefreshInterval: cfg.OpenSearch.RefreshInterval,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := osSink.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	if !cfg.Redis.Enabled {
		return osSink, nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	cleanups.push(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, dedup will fail open until it recovers", logging.Error(err))
	}

	checks := []namedCheck{{name: "redis", check: func(ctx context.Context) error { return client.Ping(ctx).Err() }}}
	return sink.NewDedupSink(osSink, client, cfg.Redis.DedupTTL, logger), checks, nil
}

func startForwarder(ctx context.Context, cfg *config.Config, feed *livefeed.Feed, cleanups *cleanupStack) (namedCheck, error) {
	ncfg := natsclient.DefaultConfig()
	ncfg.URL = cfg.NATS.URL
	ncfg.Name = "alertstream-livefeed"
	ncfg.MaxReconnects = cfg.NATS.MaxReconnects
	ncfg.ReconnectWait = cfg.NATS.ReconnectWait
	ncfg.Logger = logger

	client, err := natsclient.NewClient(ncfg)
	if err != nil {
		return namedCheck{}, fmt.Errorf("live feed forwarder: %w", err)
	}
	cleanups.push(func() { _ = client.Drain() })

	fw := livefeed.NewForwarder(client, cfg.NATS.LiveFeedSubject, logger)
	go fw.Run(ctx, feed.Subscribe())
	logger.Info("Forwarding live feed", "subject", messaging.LiveFeedSubject(cfg.NATS.LiveFeedSubject, "*"))

	return namedCheck{name: "nats", check: func(ctx context.Context) error {
		status := messaging.CheckClientHealth(ctx, client)
		if status.Error != "" {
			return errors.New(status.Error)
		}
		return nil
	}}, nil
}
