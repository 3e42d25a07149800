// Package main is the entry point for the guardian — the dead-letter
// consumer. It watches the broker's max-deliveries advisories, alerts on
// every exhausted message and removes it from its stream.
//
// Dependencies:
//   - NATS: consumes $JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.>
//   - optional webhook for the fake_message alerter
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

	"github.com/gsantopaolo/sentinel-AI/internal/alert"
	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/config"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
	"github.com/gsantopaolo/sentinel-AI/internal/guardian"
	"github.com/gsantopaolo/sentinel-AI/internal/readiness"
	"github.com/gsantopaolo/sentinel-AI/internal/telemetry"
)

const serviceName = "guardian"

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

	alerters := alert.FromConfig(cfg.Guardian.AlerterNames(), cfg.Guardian.FakeMessageWebhookURL, logger)
	dispatcher := alert.NewDispatcher(alerters, logger)
	g := guardian.New(client.JS, dispatcher, logger)

	beacon := readiness.NewBeacon(cfg.ReadinessTimeout())

	// max_deliver 1 with a synchronous ack: an advisory is handled exactly
	// once or lost, never replayed against an already-deleted message.
	advisorySub, err := broker.NewSubscriber(client, broker.SubscriberConfig{
		Stream:     event.MaxDeliveriesAdvisoryStream,
		Subject:    event.MaxDeliveriesAdvisorySubject,
		AckWait:    30 * time.Second,
		MaxDeliver: 1,
		SyncAck:    true,
		Heartbeat:  beacon.UpdateLastSeen,
	}, logger)
	if err != nil {
		logger.Fatal("subscriber setup failed", zap.Error(err))
	}
	go advisorySub.Run(ctx, g.HandleAdvisory)

	e := echo.New()
	e.HideBanner = true
	beacon.Mount(e)
	go func() {
		if err := e.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	logger.Info("guardian running", zap.Strings("alerters", cfg.Guardian.AlerterNames()))
	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("guardian shut down cleanly")
}
