package ioutboxrepo

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/outbox"
)

// IOutboxRepository keeps broker messages that still have to be delivered.
type IOutboxRepository interface {
	// Insert stores msg. The repository assigns msg.ID.
	Insert(ctx context.Context, msg outbox.Message) error

	// GetPendingMessages returns up to limit messages due at now that have
	// retries left, oldest due first.
	GetPendingMessages(ctx context.Context, now time.Time, limit int) ([]outbox.Message, error)

	// Delete removes a delivered message.
	Delete(ctx context.Context, id int64) error

	// UpdateRetry records a failed redelivery.
	UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error
}
