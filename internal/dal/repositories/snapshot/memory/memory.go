package memory

import (
	"context"
	"sync"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

// SnapshotRepository keeps the latest snapshot per order in memory.
type SnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]order.Snapshot
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{snapshots: make(map[string]order.Snapshot)}
}

func (r *SnapshotRepository) LoadLatest(ctx context.Context, orderID string) (order.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return order.Snapshot{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.snapshots[orderID]
	if !ok {
		return order.Snapshot{}, isnapshotrepo.ErrNotFound
	}
	s.State = append([]byte(nil), s.State...)

	return s, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot order.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.snapshots[snapshot.OrderID]; ok && current.Seq >= snapshot.Seq {
		return nil
	}
	snapshot.State = append([]byte(nil), snapshot.State...)
	r.snapshots[snapshot.OrderID] = snapshot

	return nil
}
