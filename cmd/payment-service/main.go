package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/orderstack/platform/internal/config"
	"github.com/orderstack/platform/internal/idempotency"
	"github.com/orderstack/platform/internal/logger"
	"github.com/orderstack/platform/internal/messaging/rabbitmq"
	"github.com/orderstack/platform/internal/metrics"
	"github.com/orderstack/platform/internal/payment"
)

func main() {
	logger.Init()
	log := logger.Component("payment-service")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open failed")
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq publisher init failed")
	}
	defer func() { _ = publisher.Close() }()

	svc := payment.NewService(payment.NewRepository(db), payment.NewSimulatedGateway(), publisher, logger.Logger)

	guard := idempotency.NewRedisGuard(rdb, cfg.IdempotencyTTL, logger.Logger)
	consumer := rabbitmq.NewConsumer(rabbitmq.Config{
		RabbitURL:    cfg.RabbitURL,
		Exchange:     cfg.RabbitExchange,
		Queue:        "payment-service.main",
		BindKeys:     payment.BindKeys,
		Prefetch:     10,
		Tag:          "payment-service",
		MaxRetries:   cfg.ConsumerMaxRetries,
		InitialDelay: cfg.ConsumerInitialDelay,
		MaxDelay:     cfg.ConsumerMaxDelay,
	}, guard, logger.Logger)
	payment.RegisterHandlers(consumer, svc)

	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("consumer start failed")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("payment service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = consumer.Stop(shutdownCtx)
}
