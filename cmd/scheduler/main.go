// Package main is the entry point for the scheduler — it keeps one cron job
// per active source and emits a poll.source command on every firing.
//
// Dependencies:
//   - Postgres: sources (read only)
//   - NATS: consumes new.source and removed.source, publishes poll.source
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/config"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/readiness"
	"github.com/gsantopaolo/sentinel-AI/internal/registry"
	"github.com/gsantopaolo/sentinel-AI/internal/scheduler"
	"github.com/gsantopaolo/sentinel-AI/internal/telemetry"
)

const serviceName = "scheduler"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), serviceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Error("OTel tracer init failed", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registryStore, err := registry.NewStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Postgres connection failed", zap.Error(err))
	}
	defer registryStore.Close()

	client, err := broker.NewClient(broker.Config{
		URL:            cfg.NATS.URL,
		ConnectTimeout: cfg.NATS.ConnectTimeout(),
		ReconnectWait:  cfg.NATS.ReconnectWait(),
		MaxReconnects:  cfg.NATS.MaxReconnectAttempts,
	}, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer client.Close()

	pollPub, err := broker.NewPublisher(client, event.PollSourceStream, event.PollSourceSubject, logger)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}

	sched := scheduler.New(registryStore, pollPub, cfg.Scheduler.DefaultPollInterval(), logger)
	if err := sched.Bootstrap(ctx); err != nil {
		logger.Fatal("scheduler bootstrap failed", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	beacon := readiness.NewBeacon(cfg.ReadinessTimeout())

	newSourceSub, err := broker.NewSubscriber(client, broker.SubscriberConfig{
		Stream:     event.NewSourceStream,
		Subject:    event.NewSourceSubject,
		AckWait:    30 * time.Second,
		MaxDeliver: 5,
		Heartbeat:  beacon.UpdateLastSeen,
	}, logger)
	if err != nil {
		logger.Fatal("subscriber setup failed", zap.Error(err))
	}
	removedSourceSub, err := broker.NewSubscriber(client, broker.SubscriberConfig{
		Stream:     event.RemovedSourceStream,
		Subject:    event.RemovedSourceSubject,
		AckWait:    30 * time.Second,
		MaxDeliver: 5,
		Heartbeat:  beacon.UpdateLastSeen,
	}, logger)
	if err != nil {
		logger.Fatal("subscriber setup failed", zap.Error(err))
	}

	go newSourceSub.Run(ctx, sched.HandleNewSource)
	go removedSourceSub.Run(ctx, sched.HandleRemovedSource)

	e := echo.New()
	e.HideBanner = true
	beacon.Mount(e)
	go func() {
		if err := e.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	logger.Info("scheduler running", zap.Int("jobs", sched.JobCount()))
	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("scheduler shut down cleanly")
}
