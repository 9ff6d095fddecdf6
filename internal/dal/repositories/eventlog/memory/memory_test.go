package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

func created(id string) order.Event {
	return order.Event{OrderID: id, Type: order.EventTypeOrderCreated}
}

func added(id, product string) order.Event {
	return order.Event{OrderID: id, Type: order.EventTypeProductAdded, ProductID: product}
}

func TestAppendAssignsSeqAndPosition(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()

	head, err := log.Append(ctx, "A", 0, []order.Event{created("A"), added("A", "chair")})
	if err != nil {
		t.Fatalf("append A: %v", err)
	}
	if head != 2 {
		t.Fatalf("head = %d, want 2", head)
	}
	if _, err := log.Append(ctx, "B", 0, []order.Event{created("B")}); err != nil {
		t.Fatalf("append B: %v", err)
	}

	all, err := log.ReadAll(ctx, 0, 0)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, e := range all {
		if e.Position != int64(i+1) {
			t.Errorf("event %d position = %d", i, e.Position)
		}
	}
	if all[2].OrderID != "B" || all[2].Seq != 1 {
		t.Fatalf("third event = %+v", all[2])
	}
}

func TestAppendConflict(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	if _, err := log.Append(ctx, "A", 0, []order.Event{created("A")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, err := log.Append(ctx, "A", 0, []order.Event{created("A")})
	if !errors.Is(err, ieventlog.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	events, _ := log.ReadFrom(ctx, "A", 0)
	if len(events) != 1 {
		t.Fatalf("stream length = %d, want 1", len(events))
	}
}

func TestReadFromAndPaging(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	if _, err := log.Append(ctx, "A", 0, []order.Event{created("A"), added("A", "x"), added("A", "y")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	tail, err := log.ReadFrom(ctx, "A", 1)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	if len(tail) != 2 || tail[0].Seq != 2 {
		t.Fatalf("tail = %+v", tail)
	}
	if none, _ := log.ReadFrom(ctx, "A", 3); len(none) != 0 {
		t.Fatalf("expected empty tail, got %d", len(none))
	}
	if none, _ := log.ReadFrom(ctx, "missing", 0); len(none) != 0 {
		t.Fatalf("expected empty stream, got %d", len(none))
	}

	page, _ := log.ReadAll(ctx, 1, 1)
	if len(page) != 1 || page[0].Position != 2 {
		t.Fatalf("page = %+v", page)
	}
}

func TestConcurrentAppendsOneWinner(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(ctx, "A", 0, []order.Event{created("A")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ieventlog.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != 19 {
		t.Fatalf("wins = %d conflicts = %d", wins, conflicts)
	}
}
