package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/postgres"
	"github.com/jackc/pgx/v5"
)

// UnitOfWork groups statements into one Postgres transaction.
type UnitOfWork struct {
	client *postgres.Client
	tx     pgx.Tx
}

func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	return &UnitOfWork{client: client}
}

// Tx returns the open transaction, or nil before Begin.
func (u *UnitOfWork) Tx() pgx.Tx {
	return u.tx
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.client.Pool().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	u.tx = tx

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// Do runs fn in a transaction and commits when fn succeeds.
func Do(ctx context.Context, client *postgres.Client, fn func(tx pgx.Tx) error) error {
	u := NewUnitOfWork(client)
	if err := u.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = u.Rollback(ctx) }()

	if err := fn(u.Tx()); err != nil {
		return err
	}

	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
