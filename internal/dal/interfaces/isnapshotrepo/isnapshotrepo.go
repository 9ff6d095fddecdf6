package isnapshotrepo

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

// ErrNotFound is returned when an order has no snapshot.
var ErrNotFound = errors.New("snapshot not found")

// ISnapshotRepository stores the latest snapshot per order.
type ISnapshotRepository interface {
	// LoadLatest returns the most recent snapshot of the order.
	LoadLatest(ctx context.Context, orderID string) (order.Snapshot, error)

	// Save stores the snapshot unless a snapshot with a greater or equal
	// seq is already stored.
	Save(ctx context.Context, snapshot order.Snapshot) error
}
