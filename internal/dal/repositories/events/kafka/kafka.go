package kafka

import (
	"context"
	"fmt"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventpublisher"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/kafka"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/message"
	kafkago "github.com/segmentio/kafka-go"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Publisher writes order events to one topic keyed by order id.
type Publisher struct {
	w     writer
	topic string
}

func NewPublisher(client *kafka.Client, topic string) *Publisher {
	return &Publisher{w: client.Writer(), topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, msg message.Message) error {
	err := p.w.WriteMessages(ctx, kafkago.Message{
		Topic: p.topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafkago.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
			{Key: "event_type", Value: []byte(msg.Type)},
			{Key: "content_type", Value: []byte(msg.ContentType)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to topic %s: %w", msg.Type, p.topic, err)
	}

	return nil
}

var _ ieventpublisher.IEventPublisher = (*Publisher)(nil)
