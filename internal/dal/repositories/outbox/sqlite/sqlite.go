package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/outbox"
)

// OutboxRepository implements the outbox repository for SQLite.
type OutboxRepository struct {
	client *sqlite.Client
}

func NewOutboxRepository(client *sqlite.Client) *OutboxRepository {
	return &OutboxRepository{client: client}
}

func (r *OutboxRepository) Insert(ctx context.Context, msg outbox.Message) error {
	query, args, err := sq.Insert("outbox").
		Columns(
			"message_id", "message_type", "message_key", "content_type", "payload",
			"retry_count", "max_retries", "last_error", "created_at", "updated_at", "next_retry_at",
		).
		Values(
			msg.Message.ID,
			msg.Message.Type,
			msg.Message.Key,
			msg.Message.ContentType,
			msg.Message.Payload,
			msg.RetryCount,
			msg.MaxRetries,
			msg.LastError,
			sqlite.ToMillis(msg.CreatedAt),
			sqlite.ToMillis(msg.UpdatedAt),
			sqlite.ToMillis(msg.NextRetryAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}

	return nil
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, now time.Time, limit int) ([]outbox.Message, error) {
	query, args, err := sq.Select(
		"id", "message_id", "message_type", "message_key", "content_type", "payload",
		"retry_count", "max_retries", "last_error", "created_at", "updated_at", "next_retry_at",
	).
		From("outbox").
		Where(sq.LtOrEq{"next_retry_at": sqlite.ToMillis(now)}).
		Where(sq.Expr("retry_count < max_retries")).
		OrderBy("next_retry_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []outbox.Message
	for rows.Next() {
		var (
			msg                             outbox.Message
			createdAt, updatedAt, nextRetry int64
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.Message.ID,
			&msg.Message.Type,
			&msg.Message.Key,
			&msg.Message.ContentType,
			&msg.Message.Payload,
			&msg.RetryCount,
			&msg.MaxRetries,
			&msg.LastError,
			&createdAt,
			&updatedAt,
			&nextRetry,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.CreatedAt = sqlite.FromMillis(createdAt)
		msg.UpdatedAt = sqlite.FromMillis(updatedAt)
		msg.NextRetryAt = sqlite.FromMillis(nextRetry)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

func (r *OutboxRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.client.DB().ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete outbox message: %w", err)
	}

	return nil
}

func (r *OutboxRepository) UpdateRetry(
	ctx context.Context,
	id int64,
	retryCount int,
	lastError string,
	nextRetryAt time.Time,
) error {
	query, args, err := sq.Update("outbox").
		Set("retry_count", retryCount).
		Set("last_error", lastError).
		Set("next_retry_at", sqlite.ToMillis(nextRetryAt)).
		Set("updated_at", sqlite.ToMillis(time.Now())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox message: %w", err)
	}

	return nil
}

var _ ioutboxrepo.IOutboxRepository = (*OutboxRepository)(nil)
