package ieventpublisher

import (
	"context"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/message"
)

// IEventPublisher delivers integration messages to a broker.
type IEventPublisher interface {
	Publish(ctx context.Context, msg message.Message) error
}
