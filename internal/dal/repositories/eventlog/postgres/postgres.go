package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/postgres"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/uow"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// appendLockKey serializes appends so global positions become visible in
// commit order.
const appendLockKey int64 = 0x6f726465727365

var eventColumns = []string{
	"position",
	"event_id",
	"stream_id",
	"seq",
	"event_type",
	"payload",
	"occurred_at",
}

// EventLog implements the event log on PostgreSQL.
type EventLog struct {
	client *postgres.Client
}

// NewEventLog creates a new Postgres event log.
func NewEventLog(client *postgres.Client) *EventLog {
	return &EventLog{client: client}
}

// Append commits events after expectedSeq inside one transaction.
func (l *EventLog) Append(
	ctx context.Context,
	streamID string,
	expectedSeq int64,
	events []order.Event,
) (int64, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("failed to append to stream %s: no events", streamID)
	}

	insert := sq.Insert("order_events").
		Columns("event_id", "stream_id", "seq", "event_type", "payload", "occurred_at").
		PlaceholderFormat(sq.Dollar)
	for i, e := range events {
		payload, err := e.MarshalPayload()
		if err != nil {
			return 0, err
		}
		id := e.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		occurredAt := e.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}
		insert = insert.Values(id, streamID, expectedSeq+int64(i)+1, string(e.Type), payload, occurredAt)
	}
	insertQuery, insertArgs, err := insert.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build insert query: %w", err)
	}

	headQuery, headArgs, err := sq.Select("COALESCE(MAX(seq), 0)").
		From("order_events").
		Where(sq.Eq{"stream_id": streamID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build head query: %w", err)
	}

	err = uow.Do(ctx, l.client, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockKey); err != nil {
			return fmt.Errorf("failed to acquire append lock: %w", err)
		}

		var head int64
		if err := tx.QueryRow(ctx, headQuery, headArgs...).Scan(&head); err != nil {
			return fmt.Errorf("failed to read stream head: %w", err)
		}
		if head != expectedSeq {
			return fmt.Errorf("%w: stream %s at seq %d, expected %d", ieventlog.ErrConcurrencyConflict, streamID, head, expectedSeq)
		}

		if _, err := tx.Exec(ctx, insertQuery, insertArgs...); err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("%w: stream %s: %v", ieventlog.ErrConcurrencyConflict, streamID, err)
			}
			return fmt.Errorf("failed to insert events: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return expectedSeq + int64(len(events)), nil
}

// ReadFrom returns the stream events after afterSeq.
func (l *EventLog) ReadFrom(ctx context.Context, streamID string, afterSeq int64) ([]order.Event, error) {
	query, args, err := sq.Select(eventColumns...).
		From("order_events").
		Where(sq.Eq{"stream_id": streamID}).
		Where(sq.Gt{"seq": afterSeq}).
		OrderBy("seq ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	return l.query(ctx, query, args...)
}

// ReadAll returns up to limit events after afterPosition.
func (l *EventLog) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]order.Event, error) {
	builder := sq.Select(eventColumns...).
		From("order_events").
		Where(sq.Gt{"position": afterPosition}).
		OrderBy("position ASC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	return l.query(ctx, query, args...)
}

func (l *EventLog) query(ctx context.Context, query string, args ...any) ([]order.Event, error) {
	rows, err := l.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []order.Event
	for rows.Next() {
		var (
			e         order.Event
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&e.Position, &e.ID, &e.OrderID, &e.Seq, &eventType, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = order.EventType(eventType)
		if err := e.UnmarshalPayload(payload); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", e.Position, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

var _ ieventlog.IEventLog = (*EventLog)(nil)
