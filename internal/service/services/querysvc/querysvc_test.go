package querysvc

import (
	"context"
	"errors"
	"testing"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/orderview/memory"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
)

type brokenViews struct {
	iorderviewrepo.IOrderViewRepository
}

func (brokenViews) Get(context.Context, string) (orderview.Order, error) {
	return orderview.Order{}, errors.New("redis: connection refused")
}

func (brokenViews) List(context.Context, orderview.ListQuery) ([]orderview.Order, error) {
	return nil, errors.New("redis: connection refused")
}

func seed(t *testing.T, ids ...string) *memory.OrderViewRepository {
	t.Helper()
	repo := memory.NewOrderViewRepository()
	for _, id := range ids {
		v := orderview.New(id)
		v.Status = orderview.StatusCreated
		v.LastSeq = 1
		if err := repo.Upsert(context.Background(), v); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	return repo
}

func TestGetOrder(t *testing.T) {
	s := MustNewQueryService(WithViewRepository(seed(t, "A")))

	v, err := s.GetOrder(context.Background(), "A")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.OrderID != "A" || v.Status != orderview.StatusCreated {
		t.Fatalf("view = %+v", v)
	}

	if _, err := s.GetOrder(context.Background(), "B"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersPages(t *testing.T) {
	s := MustNewQueryService(WithViewRepository(seed(t, "c", "a", "b", "d")))

	tests := []struct {
		query orderview.ListQuery
		want  []string
	}{
		{orderview.ListQuery{}, []string{"a", "b", "c", "d"}},
		{orderview.ListQuery{Limit: 2}, []string{"a", "b"}},
		{orderview.ListQuery{Limit: 2, Offset: 3}, []string{"d"}},
		{orderview.ListQuery{Offset: 10}, nil},
	}
	for _, tt := range tests {
		views, err := s.ListOrders(context.Background(), tt.query)
		if err != nil {
			t.Fatalf("list %+v: %v", tt.query, err)
		}
		if len(views) != len(tt.want) {
			t.Fatalf("list %+v = %d views, want %d", tt.query, len(views), len(tt.want))
		}
		for i := range views {
			if views[i].OrderID != tt.want[i] {
				t.Errorf("list %+v [%d] = %s, want %s", tt.query, i, views[i].OrderID, tt.want[i])
			}
		}
	}
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	s := MustNewQueryService(WithViewRepository(brokenViews{}))

	if _, err := s.GetOrder(context.Background(), "A"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected storage error, got %v", err)
	}
	if _, err := s.ListOrders(context.Background(), orderview.ListQuery{}); err == nil {
		t.Fatal("list: expected storage error")
	}
}
