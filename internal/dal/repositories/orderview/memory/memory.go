package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
)

// OrderViewRepository keeps order views and checkpoints in memory.
type OrderViewRepository struct {
	mu          sync.RWMutex
	views       map[string]orderview.Order
	checkpoints map[string]int64
}

func NewOrderViewRepository() *OrderViewRepository {
	return &OrderViewRepository{
		views:       make(map[string]orderview.Order),
		checkpoints: make(map[string]int64),
	}
}

func (r *OrderViewRepository) Get(ctx context.Context, orderID string) (orderview.Order, error) {
	if err := ctx.Err(); err != nil {
		return orderview.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.views[orderID]
	if !ok {
		return orderview.Order{}, iorderviewrepo.ErrNotFound
	}

	return v.Clone(), nil
}

func (r *OrderViewRepository) Upsert(ctx context.Context, view orderview.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[view.OrderID] = view.Clone()

	return nil
}

func (r *OrderViewRepository) List(ctx context.Context, query orderview.ListQuery) ([]orderview.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = query.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if query.Offset >= len(ids) {
		return []orderview.Order{}, nil
	}
	ids = ids[query.Offset:]
	if len(ids) > query.Limit {
		ids = ids[:query.Limit]
	}

	views := make([]orderview.Order, 0, len(ids))
	for _, id := range ids {
		views = append(views, r.views[id].Clone())
	}

	return views, nil
}

func (r *OrderViewRepository) ListStale(ctx context.Context, after string, limit int) ([]orderview.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var views []orderview.Order
	for _, v := range r.views {
		if v.Stale && v.OrderID > after {
			views = append(views, v.Clone())
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].OrderID < views[j].OrderID })
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}

	return views, nil
}

func (r *OrderViewRepository) Checkpoint(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.checkpoints[name], nil
}

func (r *OrderViewRepository) SaveCheckpoint(ctx context.Context, name string, position int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[name] = position

	return nil
}
