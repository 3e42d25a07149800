// Package main is the entry point for the connector — it scrapes a source on
// every poll.source command and emits one raw.events message per item never
// seen before.
//
// Dependencies:
//   - Postgres: processed_items (dedup ledger)
//   - NATS: consumes poll.source, publishes raw.events
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
	"github.com/gsantopaolo/sentinel-AI/internal/connector"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/readiness"
	"github.com/gsantopaolo/sentinel-AI/internal/registry"
	"github.com/gsantopaolo/sentinel-AI/internal/telemetry"
)

const serviceName = "connector"

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

	rawPub, err := broker.NewPublisher(client, event.RawEventsStream, event.RawEventsSubject, logger)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}

	conn := connector.New(connector.NewWebScraper(), registryStore, rawPub, logger)

	beacon := readiness.NewBeacon(cfg.ReadinessTimeout())

	pollSub, err := broker.NewSubscriber(client, broker.SubscriberConfig{
		Stream:     event.PollSourceStream,
		Subject:    event.PollSourceSubject,
		AckWait:    60 * time.Second,
		MaxDeliver: 3,
		Heartbeat:  beacon.UpdateLastSeen,
	}, logger)
	if err != nil {
		logger.Fatal("subscriber setup failed", zap.Error(err))
	}
	go pollSub.Run(ctx, conn.HandlePollSource)

	e := echo.New()
	e.HideBanner = true
	beacon.Mount(e)
	go func() {
		if err := e.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	logger.Info("connector running")
	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("connector shut down cleanly")
}
