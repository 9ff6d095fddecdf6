package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

// EventLog keeps order streams in process memory.
type EventLog struct {
	mu      sync.RWMutex
	streams map[string][]order.Event
	all     []order.Event
}

// NewEventLog creates an empty in-memory event log.
func NewEventLog() *EventLog {
	return &EventLog{streams: make(map[string][]order.Event)}
}

// Append commits events after expectedSeq.
func (l *EventLog) Append(
	ctx context.Context,
	streamID string,
	expectedSeq int64,
	events []order.Event,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("failed to append to stream %s: no events", streamID)
	}
	for _, e := range events {
		if !e.Type.Valid() {
			return 0, fmt.Errorf("failed to append to stream %s: %w: %q", streamID, order.ErrUnknownEventType, e.Type)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	head := int64(len(l.streams[streamID]))
	if head != expectedSeq {
		return 0, fmt.Errorf("%w: stream %s at seq %d, expected %d", ieventlog.ErrConcurrencyConflict, streamID, head, expectedSeq)
	}

	for i, e := range events {
		e.OrderID = streamID
		e.Seq = expectedSeq + int64(i) + 1
		e.Position = int64(len(l.all)) + 1
		l.streams[streamID] = append(l.streams[streamID], e)
		l.all = append(l.all, e)
	}

	return expectedSeq + int64(len(events)), nil
}

// ReadFrom returns the stream events after afterSeq.
func (l *EventLog) ReadFrom(ctx context.Context, streamID string, afterSeq int64) ([]order.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	stream := l.streams[streamID]
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(stream)) {
		return nil, nil
	}

	return append([]order.Event(nil), stream[afterSeq:]...), nil
}

// ReadAll returns up to limit events after afterPosition across all streams.
func (l *EventLog) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]order.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if afterPosition < 0 {
		afterPosition = 0
	}
	if afterPosition >= int64(len(l.all)) {
		return nil, nil
	}
	end := int64(len(l.all))
	if limit > 0 && afterPosition+int64(limit) < end {
		end = afterPosition + int64(limit)
	}

	return append([]order.Event(nil), l.all[afterPosition:end]...), nil
}
