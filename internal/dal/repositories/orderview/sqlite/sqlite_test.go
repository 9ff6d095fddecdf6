package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
)

func openRepo(t *testing.T) *OrderViewRepository {
	t.Helper()
	client, err := sqlite.Open(filepath.Join(t.TempDir(), "views.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return NewOrderViewRepository(client)
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	if _, err := repo.Get(ctx, "A"); !errors.Is(err, iorderviewrepo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	view := orderview.Order{
		OrderID:   "A",
		Products:  map[string]int{"chair": 2},
		Status:    orderview.StatusConfirmed,
		LastSeq:   4,
		UpdatedAt: time.UnixMilli(1_700_000_000_000).UTC(),
	}
	if err := repo.Upsert(ctx, view); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := repo.Get(ctx, "A")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, view) {
		t.Fatalf("got %+v, want %+v", got, view)
	}

	view.Stale = true
	view.LastError = "gap"
	if err := repo.Upsert(ctx, view); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	stale, err := repo.ListStale(ctx, "", 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].LastError != "gap" {
		t.Fatalf("stale = %+v", stale)
	}
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	for _, id := range []string{"c", "a", "b"} {
		if err := repo.Upsert(ctx, orderview.New(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	page, err := repo.List(ctx, orderview.ListQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].OrderID != "b" || page[1].OrderID != "c" {
		t.Fatalf("page = %+v", page)
	}
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	pos, err := repo.Checkpoint(ctx, "projector")
	if err != nil || pos != 0 {
		t.Fatalf("initial checkpoint = %d, %v", pos, err)
	}
	if err := repo.SaveCheckpoint(ctx, "projector", 7); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.SaveCheckpoint(ctx, "projector", 9); err != nil {
		t.Fatalf("save: %v", err)
	}
	if pos, _ := repo.Checkpoint(ctx, "projector"); pos != 9 {
		t.Fatalf("checkpoint = %d, want 9", pos)
	}
}
