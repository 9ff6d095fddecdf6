package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/outbox"
)

// OutboxRepository keeps undelivered messages in memory.
type OutboxRepository struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]outbox.Message
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{messages: make(map[int64]outbox.Message)}
}

func (r *OutboxRepository) Insert(ctx context.Context, msg outbox.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	msg.ID = r.nextID
	msg.Message.Payload = append([]byte(nil), msg.Message.Payload...)
	r.messages[msg.ID] = msg

	return nil
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, now time.Time, limit int) ([]outbox.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []outbox.Message
	for _, msg := range r.messages {
		if !msg.NextRetryAt.After(now) && msg.RetryCount < msg.MaxRetries {
			pending = append(pending, msg)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].NextRetryAt.Equal(pending[j].NextRetryAt) {
			return pending[i].ID < pending[j].ID
		}

		return pending[i].NextRetryAt.Before(pending[j].NextRetryAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (r *OutboxRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)

	return nil
}

func (r *OutboxRepository) UpdateRetry(
	ctx context.Context,
	id int64,
	retryCount int,
	lastError string,
	nextRetryAt time.Time,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("failed to update outbox message %d: not found", id)
	}
	msg.RetryCount = retryCount
	msg.LastError = lastError
	msg.NextRetryAt = nextRetryAt
	msg.UpdatedAt = time.Now()
	r.messages[id] = msg

	return nil
}

// Len returns the number of stored messages.
func (r *OutboxRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.messages)
}
