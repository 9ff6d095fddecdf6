package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/postgres"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/jackc/pgx/v5"
)

// SnapshotRepository implements the snapshot store on PostgreSQL.
type SnapshotRepository struct {
	client *postgres.Client
}

func NewSnapshotRepository(client *postgres.Client) *SnapshotRepository {
	return &SnapshotRepository{client: client}
}

func (r *SnapshotRepository) LoadLatest(ctx context.Context, orderID string) (order.Snapshot, error) {
	query, args, err := sq.Select("stream_id", "seq", "state", "created_at").
		From("order_snapshots").
		Where(sq.Eq{"stream_id": orderID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Snapshot{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var s order.Snapshot
	err = r.client.Pool().QueryRow(ctx, query, args...).Scan(&s.OrderID, &s.Seq, &s.State, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Snapshot{}, isnapshotrepo.ErrNotFound
	}
	if err != nil {
		return order.Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return s, nil
}

// Save upserts the snapshot; an older snapshot never replaces a newer one.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot order.Snapshot) error {
	query, args, err := sq.Insert("order_snapshots").
		Columns("stream_id", "seq", "state", "created_at").
		Values(snapshot.OrderID, snapshot.Seq, snapshot.State, snapshot.CreatedAt).
		Suffix(`ON CONFLICT (stream_id) DO UPDATE
			SET seq = EXCLUDED.seq, state = EXCLUDED.state, created_at = EXCLUDED.created_at
			WHERE order_snapshots.seq < EXCLUDED.seq`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

var _ isnapshotrepo.ISnapshotRepository = (*SnapshotRepository)(nil)
