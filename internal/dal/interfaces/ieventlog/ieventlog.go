package ieventlog

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

// ErrConcurrencyConflict is returned by Append when the stream head moved
// past the expected sequence.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// IEventLog is an append-only store of order streams.
type IEventLog interface {
	// Append commits events after expectedSeq and returns the new stream
	// head. Events get consecutive seqs starting at expectedSeq+1 and a
	// global position in commit order. All events are committed or none.
	Append(ctx context.Context, streamID string, expectedSeq int64, events []order.Event) (int64, error)

	// ReadFrom returns the events of a stream with seq greater than afterSeq,
	// in seq order.
	ReadFrom(ctx context.Context, streamID string, afterSeq int64) ([]order.Event, error)

	// ReadAll returns up to limit committed events of all streams with
	// position greater than afterPosition, in position order.
	ReadAll(ctx context.Context, afterPosition int64, limit int) ([]order.Event, error)
}
