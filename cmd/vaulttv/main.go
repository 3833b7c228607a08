package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voyagen/vaulttv/internal/cache"
	"github.com/voyagen/vaulttv/internal/config"
	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/fetcher"
	"github.com/voyagen/vaulttv/internal/logging"
	"github.com/voyagen/vaulttv/internal/service"
	"github.com/voyagen/vaulttv/internal/store"
	"github.com/voyagen/vaulttv/internal/worker"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "vaulttv",
	Short:         "Sync IPTV providers into a local replica and keep streams playing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	rootCmd.AddCommand(serveCmd, migrateCmd, syncCmd, providersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vaulttv: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config or the environment and configures logging.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, nil); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return cfg, nil
}

// app is everything a command needs after startup. close releases it in
// reverse order.
type app struct {
	cfg    *config.Config
	store  store.Store
	redis  *cache.Redis
	parser *worker.Task
	coord  *service.Coordinator
}

func (a *app) close() {
	if a.parser != nil {
		a.parser.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// bootstrap follows the startup order config → migrate → store → redis →
// parse worker → coordinator. pub receives sync events; nil discards them.
func bootstrap(ctx context.Context, pub events.Publisher) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a.store = db

	var opts []service.Option
	if cfg.RedisURL != "" {
		rds, err := cache.New(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rds
		if err := rds.Ping(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.store = store.NewCachedStore(db, rds)
		opts = append(opts, service.WithLocker(cache.NewSyncLocker(rds, 0)))
		logrus.Info("redis connected (caching and sync locks enabled)")
	} else {
		logrus.Info("redis disabled (REDIS_URL not set)")
	}

	task, err := worker.New(worker.Options{Workers: cfg.ParseWorkers, Timeout: cfg.ParseTimeout})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("parse worker: %w", err)
	}
	a.parser = task

	client := fetcher.NewClient(fetcher.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		RPS:       cfg.UpstreamRPS,
	})
	a.coord = service.NewCoordinator(a.store, fetcher.NewFactory(client, task), pub, opts...)
	return a, nil
}

// jobQueue picks the Redis list queue when Redis is configured.
func (a *app) jobQueue() service.Queue {
	if a.redis != nil {
		return cache.NewRedisQueue(a.redis, 5*time.Second)
	}
	return service.NewMemoryQueue(0)
}
