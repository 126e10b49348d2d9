// Command server runs the fieldbook observation service: the lifecycle
// engine, the discovery confirmation workflow, the session synchronizer, and
// the HTTP API in one process.
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
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"fieldbook/internal/collection"
	"fieldbook/internal/discovery"
	"fieldbook/internal/observation/engine"
	obshandler "fieldbook/internal/observation/handler"
	obsmetrics "fieldbook/internal/observation/metrics"
	obsstore "fieldbook/internal/observation/store"
	"fieldbook/internal/platform/config"
	"fieldbook/internal/platform/httpserver"
	"fieldbook/internal/platform/kafka"
	"fieldbook/internal/platform/logger"
	platmetrics "fieldbook/internal/platform/metrics"
	platredis "fieldbook/internal/platform/redis"
	profstore "fieldbook/internal/profile/store"
	"fieldbook/internal/recognition"
	"fieldbook/internal/session"
	"fieldbook/internal/session/feed"
	sesshandler "fieldbook/internal/session/handler"
	"fieldbook/internal/species"
	spechandler "fieldbook/internal/species/handler"
	"fieldbook/internal/token"
	httptransport "fieldbook/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		observations obsstore.Store
		profiles     profstore.Store
		db           *sql.DB
	)
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		obsPg := obsstore.NewPostgres(db)
		if err := obsPg.Migrate(ctx); err != nil {
			return err
		}
		profPg := profstore.NewPostgres(db)
		if err := profPg.Migrate(ctx); err != nil {
			return err
		}
		observations, profiles = obsPg, profPg
		log.Info("using postgres stores")
	} else {
		observations, profiles = obsstore.NewInMemory(), profstore.NewInMemory()
		log.Warn("no POSTGRES_DSN configured, using in-memory stores")
	}

	redisClient, err := platredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Recognition dispatch and identity feed: Kafka when brokers are
	// configured, in-process fallbacks otherwise.
	var (
		publisher    recognition.Publisher
		identityFeed feed.IdentityFeed
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka.IdentityTopic, cfg.Kafka.RecognitionTopic); err != nil {
			return err
		}
		consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.IdentityTopic)
		if err != nil {
			return err
		}
		defer consumer.Close()
		publisher = recognition.NewKafkaPublisher(producer, cfg.Kafka.RecognitionTopic)
		identityFeed = feed.NewKafka(consumer, log)
		log.Info("using kafka transport", "brokers", cfg.Kafka.Brokers)
	} else {
		publisher = recognition.NewLogPublisher(log)
		identityFeed = feed.NewMemory()
		log.Warn("no KAFKA_BROKERS configured, recognition requests are log-only")
	}

	// Domain services.
	engineMetrics := obsmetrics.New()
	obsEngine := engine.New(observations, publisher, engineMetrics, log)
	confirmer := discovery.New(observations, profiles, discovery.NewMetrics(), log)
	collections := collection.New(observations)
	syncer := session.NewSynchronizer(profiles, identityFeed, log)
	catalog := species.New(cfg.Catalog.BaseURL, nil, cfg.Catalog.CacheTTL, redisClient, log)

	tokens := token.NewService(cfg.Server.JWTSigningKey, "fieldbook")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		HTTPMetrics:    platmetrics.New(),
		TokenValidator: token.NewMiddlewareAdapter(tokens),
		MediatorSecret: cfg.Server.MediatorSecret,
		Observations:   obshandler.New(obsEngine, confirmer, collections, log),
		Session:        sesshandler.New(syncer, log),
		Species:        spechandler.New(catalog, log),
		Health: func(ctx context.Context) error {
			if db != nil {
				if err := db.PingContext(ctx); err != nil {
					return err
				}
			}
			if redisClient != nil {
				return redisClient.Health(ctx)
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting fieldbook server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Recognition.Timeout > 0 {
		group.Go(func() error {
			err := obsEngine.RunSweeper(ctx, cfg.Recognition.Timeout, cfg.Recognition.SweepInterval)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return group.Wait()
}
