package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

// SnapshotRepository implements the snapshot store on SQLite.
type SnapshotRepository struct {
	client *sqlite.Client
}

func NewSnapshotRepository(client *sqlite.Client) *SnapshotRepository {
	return &SnapshotRepository{client: client}
}

func (r *SnapshotRepository) LoadLatest(ctx context.Context, orderID string) (order.Snapshot, error) {
	query, args, err := sq.Select("stream_id", "seq", "state", "created_at").
		From("order_snapshots").
		Where(sq.Eq{"stream_id": orderID}).
		ToSql()
	if err != nil {
		return order.Snapshot{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var (
		s         order.Snapshot
		createdAt int64
	)
	err = r.client.DB().QueryRowContext(ctx, query, args...).Scan(&s.OrderID, &s.Seq, &s.State, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Snapshot{}, isnapshotrepo.ErrNotFound
	}
	if err != nil {
		return order.Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	s.CreatedAt = sqlite.FromMillis(createdAt)

	return s, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot order.Snapshot) error {
	query, args, err := sq.Insert("order_snapshots").
		Columns("stream_id", "seq", "state", "created_at").
		Values(snapshot.OrderID, snapshot.Seq, snapshot.State, sqlite.ToMillis(snapshot.CreatedAt)).
		Suffix(`ON CONFLICT (stream_id) DO UPDATE
			SET seq = excluded.seq, state = excluded.state, created_at = excluded.created_at
			WHERE order_snapshots.seq < excluded.seq`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

var _ isnapshotrepo.ISnapshotRepository = (*SnapshotRepository)(nil)
