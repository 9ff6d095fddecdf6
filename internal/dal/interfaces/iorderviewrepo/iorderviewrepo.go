package iorderviewrepo

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
)

// ErrNotFound is returned when no view exists for an order.
var ErrNotFound = errors.New("order view not found")

// IOrderViewRepository stores order read models and projector checkpoints.
type IOrderViewRepository interface {
	Get(ctx context.Context, orderID string) (orderview.Order, error)
	Upsert(ctx context.Context, view orderview.Order) error

	// List returns views ordered by order id.
	List(ctx context.Context, query orderview.ListQuery) ([]orderview.Order, error)

	// ListStale returns up to limit stale views with an order id greater
	// than after, ordered by order id.
	ListStale(ctx context.Context, after string, limit int) ([]orderview.Order, error)

	// Checkpoint returns the last global position recorded under name, or
	// zero when none was recorded.
	Checkpoint(ctx context.Context, name string) (int64, error)
	SaveCheckpoint(ctx context.Context, name string, position int64) error
}
