// Package guardian handles the broker's dead-letter advisories. When a
// message exhausts its redelivery cap the broker emits an advisory; the
// guardian pulls the failing message out of its stream, alerts every
// configured channel, and deletes the message so a work-queue stream does
// not hold it forever.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/broker"
	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// unknownMessageType is used when a dead message carries no type header.
const unknownMessageType = "unknown"

// streamReader is the JetStream management slice the guardian needs.
// Satisfied by nats.JetStreamContext.
type streamReader interface {
	GetMsg(stream string, seq uint64, opts ...nats.JSOpt) (*nats.RawStreamMsg, error)
	DeleteMsg(stream string, seq uint64, opts ...nats.JSOpt) error
}

// alertDispatcher fans an alert out to the configured channels.
// Satisfied by alert.Dispatcher.
type alertDispatcher interface {
	Dispatch(ctx context.Context, subject, message string, details map[string]any)
}

// Guardian is the dead-letter consumer.
type Guardian struct {
	js     streamReader
	alerts alertDispatcher
	log    *zap.Logger
}

func New(js streamReader, alerts alertDispatcher, logger *zap.Logger) *Guardian {
	return &Guardian{js: js, alerts: alerts, log: logger}
}

// HandleAdvisory processes one max-deliveries advisory: fetch the dead
// message, alert, delete, then let the subscriber ack_sync. The advisory
// consumer runs with max_deliver 1, so any error here means the advisory
// is gone; the handler therefore prefers acking with a logged loss over
// returning errors for conditions that cannot heal.
func (g *Guardian) HandleAdvisory(ctx context.Context, msg *nats.Msg) error {
	var adv event.MaxDeliveriesAdvisory
	if err := json.Unmarshal(msg.Data, &adv); err != nil {
		return broker.Dropf("malformed advisory: %v", err)
	}
	if adv.Stream == "" || adv.StreamSeq == 0 {
		return broker.Dropf("advisory without stream coordinates")
	}

	g.log.Warn("message exhausted deliveries",
		zap.String("stream", adv.Stream),
		zap.String("consumer", adv.Consumer),
		zap.Uint64("stream_seq", adv.StreamSeq),
		zap.Uint64("deliveries", adv.Deliveries),
	)

	dead, err := g.js.GetMsg(adv.Stream, adv.StreamSeq)
	if err != nil {
		// already gone, nothing to alert on beyond the advisory itself
		g.log.Warn("dead message not retrievable",
			zap.String("stream", adv.Stream),
			zap.Uint64("stream_seq", adv.StreamSeq),
			zap.Error(err),
		)
		g.alerts.Dispatch(ctx, "pipeline message lost",
			"a message exhausted its redeliveries and could not be retrieved",
			map[string]any{
				"stream":     adv.Stream,
				"consumer":   adv.Consumer,
				"stream_seq": adv.StreamSeq,
			})
		return nil
	}

	messageType := dead.Header.Get(event.HeaderMessageType)
	if messageType == "" {
		messageType = unknownMessageType
	}

	details := map[string]any{
		"stream":       adv.Stream,
		"consumer":     adv.Consumer,
		"stream_seq":   adv.StreamSeq,
		"subject":      dead.Subject,
		"message_type": messageType,
		"deliveries":   adv.Deliveries,
	}
	if decoded, ok := event.Decode(messageType, dead.Data); ok {
		details["payload"] = decoded
	} else {
		details["payload_bytes"] = len(dead.Data)
	}

	g.alerts.Dispatch(ctx, "pipeline message dead-lettered",
		fmt.Sprintf("a %s on %s failed processing %d times and was removed", messageType, dead.Subject, adv.Deliveries),
		details,
	)

	if err := g.js.DeleteMsg(adv.Stream, adv.StreamSeq); err != nil {
		return fmt.Errorf("delete dead message %s/%d: %w", adv.Stream, adv.StreamSeq, err)
	}

	g.log.Info("dead message removed",
		zap.String("stream", adv.Stream),
		zap.Uint64("stream_seq", adv.StreamSeq),
		zap.String("message_type", messageType),
	)
	return nil
}
