package ordersvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultSnapshotThreshold = 250
	defaultMaxRetries        = 3
	defaultSnapshotQueueSize = 256
)

// OrderService loads orders from their streams and dispatches commands
// against them.
type OrderService struct {
	eventLog          ieventlog.IEventLog
	snapshots         isnapshotrepo.ISnapshotRepository
	snapshotThreshold int64
	snapshotQueueSize int
	maxRetries        int
	now               func() time.Time
	newID             func() uuid.UUID

	locks       *keyedMutex
	snapshotter *snapshotter
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService. An event log is required.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		snapshotThreshold: viper.GetInt64("aggregate.order.snapshot_threshold"),
		snapshotQueueSize: viper.GetInt("aggregate.order.snapshot_queue_size"),
		maxRetries:        viper.GetInt("aggregate.order.max_retries"),
		now:               time.Now,
		newID:             uuid.New,
		locks:             newKeyedMutex(),
	}
	if s.snapshotThreshold <= 0 {
		s.snapshotThreshold = defaultSnapshotThreshold
	}
	if s.snapshotQueueSize <= 0 {
		s.snapshotQueueSize = defaultSnapshotQueueSize
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.eventLog == nil {
		panic("ordersvc: event log is required")
	}
	if s.snapshots != nil {
		s.snapshotter = newSnapshotter(s.snapshots, s.now, s.snapshotQueueSize)
	}

	return s
}

// WithEventLog sets the event log the service reads and appends to.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithEventLog(eventLog ieventlog.IEventLog) option {
	return func(s *OrderService) {
		s.eventLog = eventLog
	}
}

// WithSnapshotRepository enables snapshotting.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSnapshotRepository(repo isnapshotrepo.ISnapshotRepository) option {
	return func(s *OrderService) {
		s.snapshots = repo
	}
}

// WithSnapshotThreshold sets how many events since the last snapshot
// trigger a new one.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSnapshotThreshold(threshold int64) option {
	return func(s *OrderService) {
		if threshold > 0 {
			s.snapshotThreshold = threshold
		}
	}
}

// WithMaxRetries sets how many times a command is retried after losing an
// append race.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMaxRetries(retries int) option {
	return func(s *OrderService) {
		if retries >= 0 {
			s.maxRetries = retries
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *OrderService) {
		s.now = now
	}
}

// Close waits for pending snapshots. Snapshots triggered afterwards are skipped.
func (s *OrderService) Close() {
	if s.snapshotter != nil {
		s.snapshotter.close()
	}
}

// Load rebuilds the order from its latest snapshot and the events after it.
func (s *OrderService) Load(ctx context.Context, orderID string) (*order.Order, error) {
	ctx, span := otel.Tracer("ordersvc").Start(ctx, "OrderService.Load")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, _, err := s.load(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return o, nil
}

// load returns the order and the seq of the snapshot it started from.
func (s *OrderService) load(ctx context.Context, orderID string) (*order.Order, int64, error) {
	o, snapshotSeq := s.restoreSnapshot(ctx, orderID)
	if o == nil {
		o = order.New()
	}

	events, err := s.eventLog.ReadFrom(ctx, orderID, o.Seq())
	if err != nil {
		return nil, 0, &StorageError{Op: "read", OrderID: orderID, ExpectedSeq: o.Seq(), Err: err}
	}
	if !o.Initialized() && len(events) == 0 {
		return nil, 0, ErrNotFound
	}
	if err := o.ApplyAll(events); err != nil {
		return nil, 0, &StorageError{Op: "replay", OrderID: orderID, ExpectedSeq: o.Seq(), Err: err}
	}

	return o, snapshotSeq, nil
}

// restoreSnapshot returns nil when there is no usable snapshot.
func (s *OrderService) restoreSnapshot(ctx context.Context, orderID string) (*order.Order, int64) {
	if s.snapshots == nil {
		return nil, 0
	}

	snap, err := s.snapshots.LoadLatest(ctx, orderID)
	if errors.Is(err, isnapshotrepo.ErrNotFound) {
		return nil, 0
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to load snapshot, replaying full stream", "order_id", orderID, "error", err)
		return nil, 0
	}

	o, err := order.FromSnapshot(snap)
	if err != nil {
		slog.WarnContext(ctx, "Discarding unreadable snapshot", "order_id", orderID, "seq", snap.Seq, "error", err)
		return nil, 0
	}

	return o, snap.Seq
}

// Dispatch handles cmd and returns the committed events. Commands for one
// order run one at a time; an append that loses a race is retried from a
// fresh load.
func (s *OrderService) Dispatch(ctx context.Context, cmd order.Command) ([]order.Event, error) {
	ctx, span := otel.Tracer("ordersvc").Start(ctx, "OrderService.Dispatch")
	defer span.End()

	events, err := s.dispatch(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("order.events", len(events)))

	return events, err
}

func (s *OrderService) dispatch(ctx context.Context, cmd order.Command) ([]order.Event, error) {
	if err := order.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	orderID := cmd.AggregateID()
	tracer := otel.Tracer("ordersvc")

	unlock := s.locks.Lock(orderID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		attemptCtx, span := tracer.Start(ctx, "OrderService.attempt")
		span.SetAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.command", cmd.Name()),
			attribute.Int("attempt", attempt),
		)

		events, err := s.attempt(attemptCtx, cmd)
		span.End()
		if err == nil {
			return events, nil
		}
		if !errors.Is(err, ieventlog.ErrConcurrencyConflict) {
			return nil, err
		}
		if attempt >= s.maxRetries {
			slog.WarnContext(ctx, "Giving up after concurrent modifications",
				"order_id", orderID,
				"command", cmd.Name(),
				"attempts", attempt+1,
			)
			return nil, errors.Join(ErrConflict, err)
		}
		slog.DebugContext(ctx, "Append conflict, retrying", "order_id", orderID, "attempt", attempt+1)
	}
}

// attempt runs one load, decide and append cycle.
func (s *OrderService) attempt(ctx context.Context, cmd order.Command) ([]order.Event, error) {
	orderID := cmd.AggregateID()

	o, snapshotSeq, err := s.load(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		if _, ok := cmd.(order.CreateOrder); !ok {
			return nil, ErrNotFound
		}
		o, snapshotSeq, err = order.New(), 0, nil
	}
	if err != nil {
		return nil, err
	}

	events, err := o.Decide(cmd)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	now := s.now()
	for i := range events {
		events[i].ID = s.newID()
		events[i].OccurredAt = now
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expectedSeq := o.Seq()
	if _, err := s.eventLog.Append(ctx, orderID, expectedSeq, events); err != nil {
		if errors.Is(err, ieventlog.ErrConcurrencyConflict) {
			return nil, err
		}
		return nil, &StorageError{Op: "append", OrderID: orderID, ExpectedSeq: expectedSeq, Err: err}
	}

	if err := o.ApplyAll(events); err != nil {
		// Committed already; the next load replays from the log.
		slog.ErrorContext(ctx, "Failed to apply committed events", "order_id", orderID, "error", err)
		return events, nil
	}
	s.maybeSnapshot(o, snapshotSeq)

	return events, nil
}

func (s *OrderService) maybeSnapshot(o *order.Order, snapshotSeq int64) {
	if s.snapshotter == nil || o.Seq()-snapshotSeq < s.snapshotThreshold {
		return
	}
	s.snapshotter.enqueue(o)
}
