package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_fashionary/internal/bulk"
	"github.com/fjod/go_fashionary/internal/cache"
	"github.com/fjod/go_fashionary/internal/circuitbreaker"
	"github.com/fjod/go_fashionary/internal/config"
	"github.com/fjod/go_fashionary/internal/consumer"
	"github.com/fjod/go_fashionary/internal/courier"
	appgrpc "github.com/fjod/go_fashionary/internal/grpc"
	apphttp "github.com/fjod/go_fashionary/internal/http"
	"github.com/fjod/go_fashionary/internal/journal"
	"github.com/fjod/go_fashionary/internal/publisher"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/fjod/go_fashionary/internal/scan"
	"github.com/fjod/go_fashionary/internal/validation"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC health endpoint and the Kafka workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log.Info("backoffice starting...")

	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	grpcServer := appgrpc.NewServer(log)
	grpcServer.AddProbe("orders", func(ctx context.Context) error {
		_, err := repo.ListOrders(ctx, repository.Filter{Limit: 1})
		return err
	})

	var orderCache cache.OrderCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		log.WithField("addr", cfg.RedisAddr).Info("redis ping succeeded")
		orderCache = cache.NewRedisCache(redisClient, cfg.Scan.CacheTTL)
		grpcServer.AddProbe("cache", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	orders := validation.NewService(repo, orderCache, log)

	var dispatches journal.Journal = journal.NewMemoryJournal()
	if cfg.MongoURI != "" {
		db, err := journal.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		mj := journal.NewMongoJournal(db)
		defer func() {
			if err := mj.Close(context.Background()); err != nil {
				log.WithError(err).Warn("error disconnecting from MongoDB")
			}
		}()
		if err := mj.CreateIndexes(ctx); err != nil {
			return err
		}
		log.WithField("database", cfg.MongoDBName).Info("dispatch journal stored in MongoDB")
		dispatches = mj
		grpcServer.AddProbe("journal", func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		})
	}

	actions := bulk.NewOrderActions(
		repo,
		repo,
		courier.NewMockClient(cfg.Courier.Name, cfg.Courier.RPS, cfg.Courier.Burst),
		orders,
		bulk.Breakers{
			Orders:  newBreaker("orders", cfg.Breaker, log),
			Courier: newBreaker("courier", cfg.Breaker, log),
		},
		log,
	)
	dispatcher := bulk.NewDispatcher(actions, dispatches, log)

	registry := scan.NewRegistry(orders, scan.RegistryOptions{
		Controller: scan.Options{
			Cooldown:          cfg.Scan.Cooldown,
			ValidationTimeout: cfg.Scan.ValidationTimeout,
			MaxHistory:        cfg.Scan.MaxHistory,
		},
		IdleTTL:         cfg.Scan.SessionIdleTTL,
		CleanupInterval: cfg.Scan.CleanupInterval,
	}, log)
	defer registry.Close()

	router := apphttp.NewRouter(
		apphttp.RouterConfig{RequestTimeout: cfg.RequestTimeout},
		apphttp.NewOrdersHandler(orders, cfg.RequestTimeout, cfg.MaxRequestBodySize, log),
		apphttp.NewScanHandler(registry, dispatcher, dispatches, cfg.RequestTimeout, cfg.MaxRequestBodySize, log),
		log,
	)

	// Background workers stop when workerCtx is cancelled.
	var wg sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	wg.Add(1)
	go func() {
		defer wg.Done()
		grpcServer.RunProbes(workerCtx, appgrpc.DefaultProbeInterval)
	}()

	var poller *publisher.OutboxPoller
	var intake *consumer.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		poller = publisher.NewOutboxPoller(repo, cfg.StatusEventTopic, log, cfg.KafkaBrokers...)
		intake = consumer.NewConsumer(repo, cfg.IntakeTopic, cfg.IntakeGroupID, log, cfg.KafkaBrokers...)
		wg.Add(2)
		go func() {
			defer wg.Done()
			poller.Run(workerCtx)
		}()
		go func() {
			defer wg.Done()
			intake.Run(workerCtx)
		}()
		log.WithField("brokers", cfg.KafkaBrokers).Info("kafka workers started")
	} else {
		log.Info("KAFKA_BROKERS not set, status events stay in the outbox")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	serveErr := make(chan error, 2)
	go func() {
		log.WithField("port", cfg.HTTPPort).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down backoffice...")
	case runErr = <-serveErr:
		log.WithError(runErr).Error("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server forced to shutdown")
	}
	grpcServer.GracefulStop()
	stopWorkers()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("workers didn't stop in time")
	}

	if poller != nil {
		if err := poller.Close(); err != nil {
			log.WithError(err).Warn("error closing kafka writer")
		}
	}
	if intake != nil {
		intake.Close()
	}

	log.Info("backoffice stopped")
	return runErr
}

func newBreaker(name string, cfg config.Breaker, log *logrus.Entry) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Settings{
		Name:         name,
		MaxFailures:  cfg.MaxFailures,
		OpenTimeout:  cfg.OpenTimeout,
		IsSuccessful: bulk.IsBusinessError,
	}, log)
}
