package querysvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotFound is returned when the read model has no view for an order yet.
var ErrNotFound = errors.New("order view not found")

// QueryService serves the projected order views. Views lag the event log
// until the projector catches up.
type QueryService struct {
	views iorderviewrepo.IOrderViewRepository
}

// option is a function that configures the QueryService.
type option func(*QueryService)

// MustNewQueryService creates a new QueryService. A view repository is required.
func MustNewQueryService(opts ...option) *QueryService {
	s := &QueryService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.views == nil {
		panic("querysvc: view repository is required")
	}

	return s
}

// WithViewRepository sets the repository views are read from.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithViewRepository(views iorderviewrepo.IOrderViewRepository) option {
	return func(s *QueryService) {
		s.views = views
	}
}

// GetOrder returns the view of a single order.
func (s *QueryService) GetOrder(ctx context.Context, orderID string) (orderview.Order, error) {
	ctx, span := otel.Tracer("querysvc").Start(ctx, "QueryService.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	view, err := s.views.Get(ctx, orderID)
	if errors.Is(err, iorderviewrepo.ErrNotFound) {
		return orderview.Order{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return orderview.Order{}, fmt.Errorf("failed to get order view: %w", err)
	}

	return view, nil
}

// ListOrders returns a page of views ordered by order id.
func (s *QueryService) ListOrders(ctx context.Context, query orderview.ListQuery) ([]orderview.Order, error) {
	ctx, span := otel.Tracer("querysvc").Start(ctx, "QueryService.ListOrders")
	defer span.End()

	query = query.Normalize()
	span.SetAttributes(
		attribute.Int("query.limit", query.Limit),
		attribute.Int("query.offset", query.Offset),
	)

	views, err := s.views.List(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list order views: %w", err)
	}

	return views, nil
}
