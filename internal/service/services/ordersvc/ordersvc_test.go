package ordersvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	eventlogmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/eventlog/memory"
	snapshotmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/snapshot/memory"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/google/uuid"
)

// recordingLog wraps an event log, counting calls and optionally failing or
// racing appends.
type recordingLog struct {
	ieventlog.IEventLog

	mu           sync.Mutex
	appends      int
	readFromSeq  []int64
	beforeAppend func(call int) error
	readErr      error
}

func (l *recordingLog) Append(ctx context.Context, streamID string, expectedSeq int64, events []order.Event) (int64, error) {
	l.mu.Lock()
	l.appends++
	call := l.appends
	hook := l.beforeAppend
	l.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return 0, err
		}
	}

	return l.IEventLog.Append(ctx, streamID, expectedSeq, events)
}

func (l *recordingLog) ReadFrom(ctx context.Context, streamID string, afterSeq int64) ([]order.Event, error) {
	l.mu.Lock()
	l.readFromSeq = append(l.readFromSeq, afterSeq)
	readErr := l.readErr
	l.mu.Unlock()

	if readErr != nil {
		return nil, readErr
	}

	return l.IEventLog.ReadFrom(ctx, streamID, afterSeq)
}

type failingSnapshots struct {
	isnapshotrepo.ISnapshotRepository

	mu    sync.Mutex
	saves int
}

func (f *failingSnapshots) Save(context.Context, order.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++

	return errors.New("snapshot store unavailable")
}

func (f *failingSnapshots) LoadLatest(context.Context, string) (order.Snapshot, error) {
	return order.Snapshot{}, errors.New("snapshot store unavailable")
}

func newService(t *testing.T, opts ...option) *OrderService {
	t.Helper()
	s := MustNewOrderService(opts...)
	t.Cleanup(s.Close)

	return s
}

func mustDispatch(t *testing.T, s *OrderService, cmds ...order.Command) []order.Event {
	t.Helper()
	var all []order.Event
	for _, cmd := range cmds {
		events, err := s.Dispatch(context.Background(), cmd)
		if err != nil {
			t.Fatalf("dispatch %s: %v", cmd.Name(), err)
		}
		all = append(all, events...)
	}

	return all
}

func TestDispatchScenarioShipConfirmed(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	s := newService(t, WithEventLog(log))

	events := mustDispatch(t, s,
		order.CreateOrder{OrderID: "A"},
		order.AddProduct{OrderID: "A", ProductID: "chair"},
		order.ConfirmOrder{OrderID: "A"},
		order.ShipOrder{OrderID: "A"},
	)
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}

	stored, _ := log.ReadFrom(context.Background(), "A", 0)
	want := []order.EventType{
		order.EventTypeOrderCreated,
		order.EventTypeProductAdded,
		order.EventTypeOrderConfirmed,
		order.EventTypeOrderShipped,
	}
	if len(stored) != len(want) {
		t.Fatalf("stored = %d events, want %d", len(stored), len(want))
	}
	for i, e := range stored {
		if e.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Type, want[i])
		}
		if e.ID == uuid.Nil || e.ID != events[i].ID {
			t.Errorf("event %d has no id", i)
		}
	}

	o, err := s.Load(context.Background(), "A")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !o.Confirmed() || !o.Shipped() {
		t.Fatalf("status = %s", o.Status())
	}
}

func TestDispatchScenarioShipUnconfirmed(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	s := newService(t, WithEventLog(log))

	mustDispatch(t, s,
		order.CreateOrder{OrderID: "B"},
		order.AddProduct{OrderID: "B", ProductID: "chair"},
	)

	_, err := s.Dispatch(context.Background(), order.ShipOrder{OrderID: "B"})
	if !errors.Is(err, order.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	stored, _ := log.ReadFrom(context.Background(), "B", 0)
	if len(stored) != 2 {
		t.Fatalf("stored = %d events, want 2", len(stored))
	}
}

func TestDispatchNotFound(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	s := newService(t, WithEventLog(log))

	_, err := s.Dispatch(context.Background(), order.AddProduct{OrderID: "missing", ProductID: "chair"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load: expected ErrNotFound, got %v", err)
	}
	if all, _ := log.ReadAll(context.Background(), 0, 0); len(all) != 0 {
		t.Fatalf("log not empty: %d events", len(all))
	}
}

func TestDispatchValidationFailures(t *testing.T) {
	s := newService(t, WithEventLog(eventlogmemory.NewEventLog()))
	mustDispatch(t, s,
		order.CreateOrder{OrderID: "A"},
		order.AddProduct{OrderID: "A", ProductID: "chair"},
	)

	tests := []struct {
		name string
		cmd  order.Command
		want error
	}{
		{"create existing", order.CreateOrder{OrderID: "A"}, order.ErrAlreadyCreated},
		{"duplicate line", order.AddProduct{OrderID: "A", ProductID: "chair"}, order.ErrDuplicateLine},
		{"missing line", order.IncrementProductCount{OrderID: "A", ProductID: "lamp"}, order.ErrLineNotFound},
		{"empty id", order.ConfirmOrder{}, order.ErrInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.Dispatch(context.Background(), tt.cmd)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !order.IsValidation(err) {
				t.Fatalf("expected validation error, got %T", err)
			}
			if len(events) != 0 {
				t.Fatalf("events = %d", len(events))
			}
		})
	}
}

func TestDispatchIdempotentConfirm(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	s := newService(t, WithEventLog(log))
	mustDispatch(t, s, order.CreateOrder{OrderID: "A"}, order.ConfirmOrder{OrderID: "A"})

	events, err := s.Dispatch(context.Background(), order.ConfirmOrder{OrderID: "A"})
	if err != nil || len(events) != 0 {
		t.Fatalf("second confirm: events %d, err %v", len(events), err)
	}
	if stored, _ := log.ReadFrom(context.Background(), "A", 0); len(stored) != 2 {
		t.Fatalf("stored = %d events, want 2", len(stored))
	}
}

func TestDispatchRetriesAfterConflict(t *testing.T) {
	inner := eventlogmemory.NewEventLog()
	log := &recordingLog{IEventLog: inner}
	s := newService(t, WithEventLog(log))
	mustDispatch(t, s, order.CreateOrder{OrderID: "A"})

	// Another writer commits between our load and append.
	log.beforeAppend = func(call int) error {
		if call != 2 {
			return nil
		}
		_, err := inner.Append(context.Background(), "A", 1, []order.Event{
			{OrderID: "A", Type: order.EventTypeProductAdded, ProductID: "table"},
		})
		return err
	}

	mustDispatch(t, s, order.AddProduct{OrderID: "A", ProductID: "chair"})

	if log.appends != 3 {
		t.Fatalf("appends = %d, want 3", log.appends)
	}
	o, err := s.Load(context.Background(), "A")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if o.LineCount() != 2 || o.Seq() != 3 {
		t.Fatalf("lines = %d seq = %d", o.LineCount(), o.Seq())
	}
}

func TestDispatchGivesUpAfterMaxRetries(t *testing.T) {
	log := &recordingLog{IEventLog: eventlogmemory.NewEventLog()}
	s := newService(t, WithEventLog(log), WithMaxRetries(3))

	log.beforeAppend = func(int) error {
		return ieventlog.ErrConcurrencyConflict
	}

	_, err := s.Dispatch(context.Background(), order.CreateOrder{OrderID: "A"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if log.appends != 4 {
		t.Fatalf("appends = %d, want 4", log.appends)
	}
}

func TestDispatchStorageFailures(t *testing.T) {
	storeErr := errors.New("connection refused")

	t.Run("read", func(t *testing.T) {
		log := &recordingLog{IEventLog: eventlogmemory.NewEventLog(), readErr: storeErr}
		s := newService(t, WithEventLog(log))

		_, err := s.Dispatch(context.Background(), order.ConfirmOrder{OrderID: "A"})
		var sErr *StorageError
		if !errors.As(err, &sErr) || sErr.Op != "read" || sErr.OrderID != "A" {
			t.Fatalf("expected read StorageError, got %v", err)
		}
		if !errors.Is(err, storeErr) {
			t.Fatalf("cause lost: %v", err)
		}
	})

	t.Run("append", func(t *testing.T) {
		log := &recordingLog{IEventLog: eventlogmemory.NewEventLog()}
		s := newService(t, WithEventLog(log))
		mustDispatch(t, s, order.CreateOrder{OrderID: "A"})
		log.beforeAppend = func(int) error { return storeErr }

		_, err := s.Dispatch(context.Background(), order.AddProduct{OrderID: "A", ProductID: "chair"})
		var sErr *StorageError
		if !errors.As(err, &sErr) || sErr.Op != "append" || sErr.ExpectedSeq != 1 {
			t.Fatalf("expected append StorageError at seq 1, got %v", err)
		}
		if log.appends != 2 {
			t.Fatalf("storage failure retried: appends = %d", log.appends)
		}
	})
}

func TestSnapshotTakenAtThresholdAndUsedOnLoad(t *testing.T) {
	inner := eventlogmemory.NewEventLog()
	snapshots := snapshotmemory.NewSnapshotRepository()
	fixed := time.Unix(1_700_000_000, 0)

	s := MustNewOrderService(
		WithEventLog(inner),
		WithSnapshotRepository(snapshots),
		WithSnapshotThreshold(3),
		WithClock(func() time.Time { return fixed }),
	)
	mustDispatch(t, s,
		order.CreateOrder{OrderID: "A"},
		order.AddProduct{OrderID: "A", ProductID: "chair"},
		order.AddProduct{OrderID: "A", ProductID: "table"},
	)
	s.Close()

	snap, err := snapshots.LoadLatest(context.Background(), "A")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.Seq != 3 || !snap.CreatedAt.Equal(fixed) {
		t.Fatalf("snapshot = seq %d at %v, want seq 3", snap.Seq, snap.CreatedAt)
	}

	log := &recordingLog{IEventLog: inner}
	restarted := newService(t, WithEventLog(log), WithSnapshotRepository(snapshots), WithSnapshotThreshold(3))
	mustDispatch(t, restarted, order.IncrementProductCount{OrderID: "A", ProductID: "chair"})

	o, err := restarted.Load(context.Background(), "A")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, after := range log.readFromSeq {
		if after != 3 {
			t.Fatalf("read from seqs = %v, want all 3", log.readFromSeq)
		}
	}
	if l, _ := o.Line("chair"); l.Count() != 2 || o.Seq() != 4 {
		t.Fatalf("chair count = %d seq = %d", l.Count(), o.Seq())
	}
}

func TestSnapshotFailureDoesNotFailCommand(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	snapshots := &failingSnapshots{}
	s := MustNewOrderService(
		WithEventLog(log),
		WithSnapshotRepository(snapshots),
		WithSnapshotThreshold(1),
	)

	mustDispatch(t, s,
		order.CreateOrder{OrderID: "A"},
		order.AddProduct{OrderID: "A", ProductID: "chair"},
	)
	s.Close()

	snapshots.mu.Lock()
	saves := snapshots.saves
	snapshots.mu.Unlock()
	if saves == 0 {
		t.Fatal("expected snapshot attempts")
	}
	if stored, _ := log.ReadFrom(context.Background(), "A", 0); len(stored) != 2 {
		t.Fatalf("stored = %d events, want 2", len(stored))
	}
}

func TestCorruptSnapshotFallsBackToReplay(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	snapshots := snapshotmemory.NewSnapshotRepository()
	s := newService(t, WithEventLog(log))
	mustDispatch(t, s,
		order.CreateOrder{OrderID: "A"},
		order.AddProduct{OrderID: "A", ProductID: "chair"},
	)

	if err := snapshots.Save(context.Background(), order.Snapshot{OrderID: "A", Seq: 2, State: []byte("not json")}); err != nil {
		t.Fatalf("save: %v", err)
	}

	withSnapshots := newService(t, WithEventLog(log), WithSnapshotRepository(snapshots))
	o, err := withSnapshots.Load(context.Background(), "A")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := o.Line("chair"); !ok || o.Seq() != 2 {
		t.Fatalf("order not replayed: seq %d", o.Seq())
	}
}

func TestConcurrentDispatchOnOneOrder(t *testing.T) {
	s := newService(t, WithEventLog(eventlogmemory.NewEventLog()))
	mustDispatch(t, s,
		order.CreateOrder{OrderID: "A"},
		order.AddProduct{OrderID: "A", ProductID: "chair"},
	)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Dispatch(context.Background(), order.IncrementProductCount{OrderID: "A", ProductID: "chair"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	o, err := s.Load(context.Background(), "A")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l, _ := o.Line("chair"); l.Count() != workers+1 {
		t.Fatalf("count = %d, want %d", l.Count(), workers+1)
	}
	if n := s.locks.size(); n != 0 {
		t.Fatalf("locks left behind: %d", n)
	}
}

func TestDispatchHonoursCancelledContext(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	s := newService(t, WithEventLog(log))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Dispatch(ctx, order.CreateOrder{OrderID: "A"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
