package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/redis"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "orders"

// OrderViewRepository stores order views in Redis.
//
// Layout under prefix p:
//
//	p:view:<id>     JSON view
//	p:views         sorted set of all ids, score 0, so ZRANGE is lexicographic
//	p:views:stale   set of stale ids
//	p:checkpoints   hash of checkpoint name to position
type OrderViewRepository struct {
	rdb    *goredis.Client
	prefix string
}

// NewOrderViewRepository creates a repository using keys under prefix.
func NewOrderViewRepository(client *redis.Client, prefix string) *OrderViewRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &OrderViewRepository{rdb: client.Redis(), prefix: prefix}
}

func (r *OrderViewRepository) viewKey(orderID string) string { return r.prefix + ":view:" + orderID }
func (r *OrderViewRepository) indexKey() string              { return r.prefix + ":views" }
func (r *OrderViewRepository) staleKey() string              { return r.prefix + ":views:stale" }
func (r *OrderViewRepository) checkpointKey() string         { return r.prefix + ":checkpoints" }

func (r *OrderViewRepository) Get(ctx context.Context, orderID string) (orderview.Order, error) {
	data, err := r.rdb.Get(ctx, r.viewKey(orderID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return orderview.Order{}, iorderviewrepo.ErrNotFound
	}
	if err != nil {
		return orderview.Order{}, fmt.Errorf("failed to get order view: %w", err)
	}

	return decodeView(data)
}

func (r *OrderViewRepository) Upsert(ctx context.Context, view orderview.Order) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal order view: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.viewKey(view.OrderID), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), goredis.Z{Score: 0, Member: view.OrderID})
		if view.Stale {
			pipe.SAdd(ctx, r.staleKey(), view.OrderID)
		} else {
			pipe.SRem(ctx, r.staleKey(), view.OrderID)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert order view: %w", err)
	}

	return nil
}

func (r *OrderViewRepository) List(ctx context.Context, q orderview.ListQuery) ([]orderview.Order, error) {
	q = q.Normalize()
	ids, err := r.rdb.ZRange(ctx, r.indexKey(), int64(q.Offset), int64(q.Offset+q.Limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list order ids: %w", err)
	}

	return r.load(ctx, ids)
}

func (r *OrderViewRepository) ListStale(ctx context.Context, after string, limit int) ([]orderview.Order, error) {
	ids, err := r.rdb.SMembers(ctx, r.staleKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list stale order ids: %w", err)
	}
	sort.Strings(ids)
	ids = ids[sort.SearchStrings(ids, after):]
	if len(ids) > 0 && ids[0] == after {
		ids = ids[1:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	return r.load(ctx, ids)
}

func (r *OrderViewRepository) Checkpoint(ctx context.Context, name string) (int64, error) {
	value, err := r.rdb.HGet(ctx, r.checkpointKey(), name).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint %s: %w", name, err)
	}

	position, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse checkpoint %s: %w", name, err)
	}

	return position, nil
}

func (r *OrderViewRepository) SaveCheckpoint(ctx context.Context, name string, position int64) error {
	if err := r.rdb.HSet(ctx, r.checkpointKey(), name, position).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", name, err)
	}

	return nil
}

func (r *OrderViewRepository) load(ctx context.Context, ids []string) ([]orderview.Order, error) {
	views := make([]orderview.Order, 0, len(ids))
	if len(ids) == 0 {
		return views, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.viewKey(id))
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load order views: %w", err)
	}

	for _, value := range values {
		s, ok := value.(string)
		if !ok {
			continue
		}
		v, err := decodeView([]byte(s))
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	return views, nil
}

func decodeView(data []byte) (orderview.Order, error) {
	var v orderview.Order
	if err := json.Unmarshal(data, &v); err != nil {
		return orderview.Order{}, fmt.Errorf("failed to unmarshal order view: %w", err)
	}
	if v.Products == nil {
		v.Products = make(map[string]int)
	}

	return v, nil
}

var _ iorderviewrepo.IOrderViewRepository = (*OrderViewRepository)(nil)
