package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"blast/internal/awsutil"
	"blast/internal/config"
	"blast/internal/dispatch"
	"blast/internal/httpserver"
	"blast/internal/logging"
	"blast/internal/observability"
	sqsqueue "blast/internal/queue/sqs"
	"blast/internal/store/pg"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	observability.Register(prometheus.DefaultRegisterer)

	checkpoints := pg.New(db)

	var limiter *rate.Limiter
	if cfg.SendRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook-relay",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})

	orch := &dispatch.Orchestrator{
		Relay:               dispatch.NewRelayTransport(cfg.HeloDomain, cfg.RelayDialTimeout, cfg.RelayIOTimeout),
		Webhook:             dispatch.NewWebhookTransport(&http.Client{Timeout: cfg.WebhookTimeout}, breaker),
		Checkpoints:         checkpoints,
		Limiter:             limiter,
		ControlledBatchSize: cfg.ControlledBatchSize,
		MaxBatchSize:        cfg.MaxBatchSize,
		ControlledDelay:     cfg.ControlledDelay,
	}

	api := &httpserver.API{
		Runner:      orch,
		Checkpoints: checkpoints,
	}

	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		api.Queue = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	}

	s := httpserver.New()
	api.Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	handler := httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}
