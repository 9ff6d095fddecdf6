package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
)

var viewColumns = []string{"order_id", "products", "status", "last_seq", "stale", "last_error", "updated_at"}

// OrderViewRepository implements the query store on SQLite.
type OrderViewRepository struct {
	client *sqlite.Client
}

func NewOrderViewRepository(client *sqlite.Client) *OrderViewRepository {
	return &OrderViewRepository{client: client}
}

func (r *OrderViewRepository) Get(ctx context.Context, orderID string) (orderview.Order, error) {
	query, args, err := sq.Select(viewColumns...).
		From("order_views").
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return orderview.Order{}, fmt.Errorf("failed to build select query: %w", err)
	}

	v, err := scanView(r.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return orderview.Order{}, iorderviewrepo.ErrNotFound
	}
	if err != nil {
		return orderview.Order{}, fmt.Errorf("failed to get order view: %w", err)
	}

	return v, nil
}

func (r *OrderViewRepository) Upsert(ctx context.Context, view orderview.Order) error {
	products, err := json.Marshal(view.Products)
	if err != nil {
		return fmt.Errorf("failed to marshal products: %w", err)
	}

	query, args, err := sq.Insert("order_views").
		Columns(viewColumns...).
		Values(
			view.OrderID,
			string(products),
			string(view.Status),
			view.LastSeq,
			view.Stale,
			view.LastError,
			sqlite.ToMillis(view.UpdatedAt),
		).
		Suffix(`ON CONFLICT (order_id) DO UPDATE SET
			products = excluded.products,
			status = excluded.status,
			last_seq = excluded.last_seq,
			stale = excluded.stale,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert order view: %w", err)
	}

	return nil
}

func (r *OrderViewRepository) List(ctx context.Context, q orderview.ListQuery) ([]orderview.Order, error) {
	q = q.Normalize()
	query, args, err := sq.Select(viewColumns...).
		From("order_views").
		OrderBy("order_id ASC").
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	return r.list(ctx, query, args...)
}

func (r *OrderViewRepository) ListStale(ctx context.Context, after string, limit int) ([]orderview.Order, error) {
	builder := sq.Select(viewColumns...).
		From("order_views").
		Where(sq.Eq{"stale": true}).
		Where(sq.Gt{"order_id": after}).
		OrderBy("order_id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	return r.list(ctx, query, args...)
}

func (r *OrderViewRepository) Checkpoint(ctx context.Context, name string) (int64, error) {
	var position int64
	err := r.client.DB().QueryRowContext(ctx,
		"SELECT position FROM projection_checkpoints WHERE name = ?", name,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint %s: %w", name, err)
	}

	return position, nil
}

func (r *OrderViewRepository) SaveCheckpoint(ctx context.Context, name string, position int64) error {
	query, args, err := sq.Insert("projection_checkpoints").
		Columns("name", "position", "updated_at").
		Values(name, position, sqlite.ToMillis(time.Now())).
		Suffix("ON CONFLICT (name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", name, err)
	}

	return nil
}

func (r *OrderViewRepository) list(ctx context.Context, query string, args ...any) ([]orderview.Order, error) {
	rows, err := r.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order views: %w", err)
	}
	defer rows.Close()

	views := make([]orderview.Order, 0)
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order views: %w", err)
	}

	return views, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner) (orderview.Order, error) {
	var (
		v         orderview.Order
		products  string
		status    string
		updatedAt int64
	)
	if err := row.Scan(&v.OrderID, &products, &status, &v.LastSeq, &v.Stale, &v.LastError, &updatedAt); err != nil {
		return orderview.Order{}, err
	}
	v.Status = orderview.Status(status)
	v.UpdatedAt = sqlite.FromMillis(updatedAt)
	v.Products = make(map[string]int)
	if err := json.Unmarshal([]byte(products), &v.Products); err != nil {
		return orderview.Order{}, fmt.Errorf("failed to unmarshal products: %w", err)
	}

	return v, nil
}

var _ iorderviewrepo.IOrderViewRepository = (*OrderViewRepository)(nil)
