// Command server runs the policy migration gateway: the HTTP API, the
// policy location registry, the migration pipelines, and the WAL feed
// worker. Business logic lives in the internal packages; main only wires
// dependencies and owns the process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"policybridge/internal/collab"
	httpapi "policybridge/internal/http"
	"policybridge/internal/migration"
	migrationhandler "policybridge/internal/migration/handler"
	migrationmetrics "policybridge/internal/migration/metrics"
	"policybridge/internal/platform/config"
	"policybridge/internal/platform/httpserver"
	"policybridge/internal/platform/logger"
	platformredis "policybridge/internal/platform/redis"
	"policybridge/internal/reconcile"
	reconcilehandler "policybridge/internal/reconcile/handler"
	registryhandler "policybridge/internal/registry/handler"
	registrymetrics "policybridge/internal/registry/metrics"
	registryservice "policybridge/internal/registry/service"
	registrystore "policybridge/internal/registry/store"
	"policybridge/internal/resolver"
	"policybridge/internal/saga"
	"policybridge/internal/validation"
	validationhandler "policybridge/internal/validation/handler"
	validationmetrics "policybridge/internal/validation/metrics"
	"policybridge/internal/wal"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	// Durable stores when Postgres is configured, in-memory otherwise.
	var (
		regStore registrystore.Store
		walStore wal.Store
		health   []httpapi.HealthCheck
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if err := registrystore.EnsureSchema(ctx, db); err != nil {
			return err
		}
		if err := wal.EnsureSchema(ctx, db); err != nil {
			return err
		}
		regStore = registrystore.NewPostgres(db)
		walStore = wal.NewPostgres(db)
		health = append(health, httpapi.HealthCheck{Name: "postgres", Check: db.PingContext})
		log.Info("using postgres stores")
	} else {
		regStore = registrystore.NewInMemory()
		walStore = wal.NewInMemory()
		log.Warn("using in-memory stores; state will not survive a restart")
	}

	// Redis backs saga state and the WAL replay queue feed when configured.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var (
		sagaStore saga.Store = saga.NewMemoryStore()
		walSink   wal.Sink   = walStore
		feeder    *wal.Feeder
	)
	if redisClient != nil {
		defer redisClient.Close()
		sagaStore = saga.NewRedisStore(redisClient.Client)
		health = append(health, httpapi.HealthCheck{Name: "redis", Check: redisClient.Health})
		log.Info("redis configured", "saga_store", "redis")
	}

	// The replay feed prefers Kafka when brokers are configured and falls
	// back to Redis queues. Without either, intents are durable in the WAL
	// store but nothing streams them to the replay consumer.
	var feed wal.Feed
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers...))
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
		if err := kafkaClient.Ping(ctx); err != nil {
			return err
		}
		kafkaFeed := wal.NewKafkaFeed(kafkaClient)
		if err := kafkaFeed.EnsureTopics(ctx, migration.Targets()...); err != nil {
			return err
		}
		feed = kafkaFeed
		health = append(health, httpapi.HealthCheck{Name: "kafka", Check: kafkaClient.Ping})
		log.Info("kafka wal feed configured", "brokers", cfg.KafkaBrokers)
	} else if redisClient != nil {
		feed = wal.NewRedisFeed(redisClient.Client)
		log.Info("redis wal feed configured")
	}
	if feed != nil {
		outbox := make(chan wal.Entry, 1024)
		walSink = wal.NewTee(walStore, outbox, log)
		feeder = wal.NewFeeder(feed, outbox, log)
	}

	registry, err := registryservice.New(regStore,
		registryservice.WithLogger(log),
		registryservice.WithMetrics(registrymetrics.New()),
	)
	if err != nil {
		return err
	}

	// Collaborators resolve through discovery first, then direct
	// construction. The in-process fakes stand in for the real external
	// services until those are deployed.
	discovery := resolver.NewDiscovery()
	discovery.Register(migration.SvcContentStore, collab.NewFakeContentStore())
	discovery.Register(migration.SvcFileParser, &collab.FakeFileParser{})
	discovery.Register(migration.SvcSchemaMapper, &collab.FakeSchemaMapper{})
	discovery.Register(migration.SvcRoutingEngine, &collab.FakeRoutingEngine{})
	discovery.Register(migration.SvcDocumentStore, collab.NewFakeDocumentStore())

	construction := resolver.NewConstruction()
	construction.RegisterFactory(migration.SvcLineageRecorder, func(context.Context) (any, error) {
		return collab.NewFakeLineageRecorder(), nil
	})

	pipelines, err := migration.New(resolver.NewChain(discovery, construction), registry, walSink,
		migration.WithLogger(log),
		migration.WithMetrics(migrationmetrics.New()),
		migration.WithSagaStore(sagaStore),
	)
	if err != nil {
		return err
	}

	validator, err := validation.New(registry,
		validation.WithLogger(log),
		validation.WithMetrics(validationmetrics.New()),
	)
	if err != nil {
		return err
	}

	reconciler, err := reconcile.New(registry, reconcile.WithLogger(log))
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:      log,
		CallTimeout: cfg.CallTimeout,
		Handlers: []httpapi.Registrar{
			registryhandler.New(registry, log),
			migrationhandler.New(pipelines, log),
			validationhandler.New(validator, log),
			reconcilehandler.New(reconciler, log),
		},
		Health: health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting policybridge", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if feeder != nil {
		g.Go(func() error {
			if err := feeder.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
