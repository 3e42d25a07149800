// Package broker wraps NATS JetStream behind a typed publisher and a durable
// pull subscriber. Streams are provisioned lazily with work-queue retention;
// consumers are durable with explicit acks, a visibility timeout and a
// redelivery cap. Messages that exhaust the cap surface on the broker's
// max-deliveries advisory subject for the guardian.
package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config holds the connection and reconnect policy.
type Config struct {
	URL           string
	ConnectTimeout time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	log  *zap.Logger
}

// NewClient connects to NATS with the configured reconnect policy and
// initialises a JetStream context. The connection pings the server on an
// interval so half-open connections are detected between fetches.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.PingInterval(30 * time.Second),
		nats.MaxPingsOutstanding(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", cfg.URL))
	return &Client{Conn: nc, JS: js, log: logger}, nil
}

// EnsureStream idempotently creates the stream binding the given subject with
// work-queue retention. If a stream with the same name exists under an
// incompatible configuration it is destroyed and recreated with the intended
// one, since a wrong retention policy would silently break delivery.
func (c *Client) EnsureStream(stream, subject string) error {
	cfg := &nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	}

	info, err := c.JS.StreamInfo(stream)
	if err == nil {
		if streamCompatible(info.Config, *cfg) {
			return nil
		}
		c.log.Warn("stream exists with a different configuration, recreating",
			zap.String("stream", stream))
		if err := c.JS.DeleteStream(stream); err != nil {
			return fmt.Errorf("failed to delete stream %s: %w", stream, err)
		}
	} else if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to check stream %s: %w", stream, err)
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", stream, err)
	}
	c.log.Info("stream provisioned",
		zap.String("stream", stream),
		zap.String("subject", subject),
	)
	return nil
}

func streamCompatible(existing, wanted nats.StreamConfig) bool {
	if existing.Retention != wanted.Retention {
		return false
	}
	if len(existing.Subjects) != len(wanted.Subjects) {
		return false
	}
	for i, s := range wanted.Subjects {
		if existing.Subjects[i] != s {
			return false
		}
	}
	return true
}

// Close drains the connection so pending publish acks and in-flight
// deliveries are flushed before closing; falls back to Close if the drain
// itself errors.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}
