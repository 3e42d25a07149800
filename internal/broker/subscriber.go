package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// DropError marks a message as undeliverable: it is terminated instead of
// redelivered, because retrying a structurally broken payload would only
// poison the queue.
type DropError struct {
	Reason string
}

func (e *DropError) Error() string { return "drop: " + e.Reason }

// Dropf builds a DropError with a formatted reason.
func Dropf(format string, args ...any) error {
	return &DropError{Reason: fmt.Sprintf(format, args...)}
}

// Handler processes one decoded delivery. Returning nil acks the message,
// a *DropError terminates it, and any other error naks it so the broker
// redelivers after ack_wait, up to max_deliver.
type Handler func(ctx context.Context, msg *nats.Msg) error

// SubscriberConfig describes one durable pull consumer.
type SubscriberConfig struct {
	Stream     string
	Subject    string
	Durable    string
	AckWait    time.Duration
	MaxDeliver int

	// SyncAck makes acknowledgements wait for the broker's confirmation.
	// The guardian uses it so an advisory is never lost between delete
	// and ack.
	SyncAck bool

	// FetchBatch and FetchTimeout bound each pull. Zero values fall back
	// to one message per fetch and a five second wait.
	FetchBatch   int
	FetchTimeout time.Duration

	// Heartbeat is invoked once per fetch cycle so the readiness beacon
	// can observe a live loop. Optional.
	Heartbeat func()
}

// Subscriber is a durable pull consumer bound to one stream and subject.
type Subscriber struct {
	client *Client
	cfg    SubscriberConfig
	log    *zap.Logger
	tracer trace.Tracer
}

// NewSubscriber ensures the stream exists and returns a subscriber for it.
func NewSubscriber(client *Client, cfg SubscriberConfig, logger *zap.Logger) (*Subscriber, error) {
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.Durable == "" {
		cfg.Durable = "worker"
	}
	if err := client.EnsureStream(cfg.Stream, cfg.Subject); err != nil {
		return nil, err
	}
	return &Subscriber{
		client: client,
		cfg:    cfg,
		log:    logger,
		tracer: otel.Tracer(cfg.Stream + "-consumer"),
	}, nil
}

// Run subscribes and fetches until ctx is cancelled. It blocks, making it
// suitable for running inside a goroutine alongside the rest of the service:
//
//	go sub.Run(ctx, handler)
//
// Deliveries to the same durable name are load-balanced across processes;
// no ordering is guaranteed once redelivery kicks in, so handlers must be
// idempotent.
func (s *Subscriber) Run(ctx context.Context, handler Handler) error {
	sub, err := s.client.JS.PullSubscribe(
		s.cfg.Subject,
		s.cfg.Durable,
		nats.BindStream(s.cfg.Stream),
		nats.AckExplicit(),
		nats.ManualAck(),
		nats.AckWait(s.cfg.AckWait),
		nats.MaxDeliver(s.cfg.MaxDeliver),
	)
	if err != nil {
		return fmt.Errorf("pull subscribe %s/%s: %w", s.cfg.Stream, s.cfg.Subject, err)
	}

	s.log.Info("subscribed",
		zap.String("stream", s.cfg.Stream),
		zap.String("subject", s.cfg.Subject),
		zap.String("durable", s.cfg.Durable),
		zap.Int("max_deliver", s.cfg.MaxDeliver),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("subscriber stopping", zap.String("subject", s.cfg.Subject))
			return nil
		default:
		}

		if s.cfg.Heartbeat != nil {
			s.cfg.Heartbeat()
		}

		msgs, err := sub.Fetch(s.cfg.FetchBatch, nats.MaxWait(s.cfg.FetchTimeout))
		if err != nil {
			// An empty queue surfaces as a timeout; anything else is
			// worth logging but never fatal, the durable cursor
			// survives reconnects.
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			s.log.Error("fetch error", zap.String("subject", s.cfg.Subject), zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			s.dispatch(ctx, msg, handler)
		}
	}
}

// dispatch maps the handler's result onto the broker acknowledgement:
// nil → ack, DropError → term, anything else → nak. Each delivery runs
// under its own consumer span so redeliveries show up as separate traces.
func (s *Subscriber) dispatch(ctx context.Context, msg *nats.Msg, handler Handler) {
	ctx, span := s.tracer.Start(ctx, "consume "+msg.Subject,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.subject", msg.Subject),
			attribute.String("messaging.message_type", msg.Header.Get(event.HeaderMessageType)),
			attribute.String("event.id", msg.Header.Get(event.HeaderEventID)),
		),
	)
	defer span.End()

	err := handler(ctx, msg)
	if err == nil {
		s.ack(msg)
		return
	}

	var drop *DropError
	if errors.As(err, &drop) {
		span.RecordError(err)
		span.SetStatus(codes.Error, drop.Reason)
		s.log.Warn("terminating undeliverable message",
			zap.String("subject", msg.Subject),
			zap.String("reason", drop.Reason),
		)
		if termErr := msg.Term(); termErr != nil {
			s.log.Error("term failed", zap.Error(termErr))
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.Error("handler failed, nak for redelivery",
		zap.String("subject", msg.Subject),
		zap.Error(err),
	)
	if nakErr := msg.Nak(); nakErr != nil {
		s.log.Error("nak failed", zap.Error(nakErr))
	}
}

func (s *Subscriber) ack(msg *nats.Msg) {
	var err error
	if s.cfg.SyncAck {
		err = msg.AckSync()
	} else {
		err = msg.Ack()
	}
	if err != nil {
		s.log.Error("ack failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}
