package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventpublisher"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/message"
	"github.com/streadway/amqp"
)

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes order events to a topic exchange, routed by event type.
type Publisher struct {
	ch       channel
	exchange string
}

// NewPublisher creates a publisher on the client's channel.
func NewPublisher(client *rabbitmq.Client, exchange string) *Publisher {
	return &Publisher{ch: client.Channel(), exchange: exchange}
}

// Publish sends msg as a persistent message.
func (p *Publisher) Publish(ctx context.Context, msg message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := p.ch.Publish(
		p.exchange,
		msg.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    time.Now(),
			Type:         msg.Type,
			Headers:      amqp.Table{"order_id": msg.Key},
			Body:         msg.Payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s to exchange %s: %w", msg.Type, p.exchange, err)
	}

	return nil
}

var _ ieventpublisher.IEventPublisher = (*Publisher)(nil)
