package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// Codec turns a wire message into bytes. The default is JSON; the seam exists
// so a binary codec can be swapped in without touching publishers.
type Codec interface {
	Encode(msg any) ([]byte, error)
}

type jsonCodec struct{}

func (jsonCodec) Encode(msg any) ([]byte, error) { return json.Marshal(msg) }

// Publisher publishes typed messages on one subject and guarantees the
// backing stream exists before the first publish.
type Publisher struct {
	client  *Client
	stream  string
	subject string
	codec   Codec
	log     *zap.Logger
}

// NewPublisher ensures the `(stream, subject)` binding exists and returns a
// publisher for it.
func NewPublisher(client *Client, stream, subject string, logger *zap.Logger) (*Publisher, error) {
	if err := client.EnsureStream(stream, subject); err != nil {
		return nil, err
	}
	return &Publisher{
		client:  client,
		stream:  stream,
		subject: subject,
		codec:   jsonCodec{},
		log:     logger,
	}, nil
}

// Publish serialises msg, stamps the message-type header and blocks until the
// broker acknowledges the store. The error surfaces broker unavailability to
// the caller; retries are the broker consumer's job, never the publisher's.
func (p *Publisher) Publish(ctx context.Context, msg any) error {
	data, err := p.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.MessageType(msg), err)
	}

	m := nats.NewMsg(p.subject)
	m.Data = data
	m.Header.Set(event.HeaderMessageType, event.MessageType(msg))
	if id := event.EventID(msg); id != "" {
		m.Header.Set(event.HeaderEventID, id)
	}

	if _, err := p.client.JS.PublishMsg(m, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}

	p.log.Debug("published",
		zap.String("subject", p.subject),
		zap.String("message_type", event.MessageType(msg)),
	)
	return nil
}
