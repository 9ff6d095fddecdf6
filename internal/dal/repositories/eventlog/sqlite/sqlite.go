package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/google/uuid"
)

var eventColumns = []string{"position", "event_id", "stream_id", "seq", "event_type", "payload", "occurred_at"}

// EventLog implements the event log on SQLite.
type EventLog struct {
	client *sqlite.Client
}

func NewEventLog(client *sqlite.Client) *EventLog {
	return &EventLog{client: client}
}

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
		Columns("event_id", "stream_id", "seq", "event_type", "payload", "occurred_at")
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
		insert = insert.Values(id.String(), streamID, expectedSeq+int64(i)+1, string(e.Type), string(payload), sqlite.ToMillis(occurredAt))
	}
	insertQuery, insertArgs, err := insert.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build insert query: %w", err)
	}

	tx, err := l.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM order_events WHERE stream_id = ?", streamID,
	).Scan(&head); err != nil {
		return 0, fmt.Errorf("failed to read stream head: %w", err)
	}
	if head != expectedSeq {
		return 0, fmt.Errorf("%w: stream %s at seq %d, expected %d", ieventlog.ErrConcurrencyConflict, streamID, head, expectedSeq)
	}

	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		if sqlite.IsConstraintError(err) {
			return 0, fmt.Errorf("%w: stream %s: %v", ieventlog.ErrConcurrencyConflict, streamID, err)
		}
		return 0, fmt.Errorf("failed to insert events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}

	return expectedSeq + int64(len(events)), nil
}

func (l *EventLog) ReadFrom(ctx context.Context, streamID string, afterSeq int64) ([]order.Event, error) {
	query, args, err := sq.Select(eventColumns...).
		From("order_events").
		Where(sq.Eq{"stream_id": streamID}).
		Where(sq.Gt{"seq": afterSeq}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	return l.query(ctx, query, args...)
}

func (l *EventLog) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]order.Event, error) {
	builder := sq.Select(eventColumns...).
		From("order_events").
		Where(sq.Gt{"position": afterPosition}).
		OrderBy("position ASC")
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
	rows, err := l.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []order.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func scanEvent(rows *sql.Rows) (order.Event, error) {
	var (
		e          order.Event
		eventID    string
		eventType  string
		payload    string
		occurredAt int64
	)
	if err := rows.Scan(&e.Position, &eventID, &e.OrderID, &e.Seq, &eventType, &payload, &occurredAt); err != nil {
		return order.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}

	id, err := uuid.Parse(eventID)
	if err != nil {
		return order.Event{}, fmt.Errorf("failed to parse event id %q: %w", eventID, err)
	}
	e.ID = id
	e.Type = order.EventType(eventType)
	e.OccurredAt = sqlite.FromMillis(occurredAt)
	if err := e.UnmarshalPayload([]byte(payload)); err != nil {
		return order.Event{}, fmt.Errorf("failed to decode event %d: %w", e.Position, err)
	}

	return e, nil
}

var _ ieventlog.IEventLog = (*EventLog)(nil)
