package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
	"github.com/spf13/viper"
)

const defaultName = "order_views"

// Worker tails the event log and folds events into order views. Progress is
// kept as a checkpoint of the last handled global position.
type Worker struct {
	eventLog ieventlog.IEventLog
	views    iorderviewrepo.IOrderViewRepository

	name            string
	partitionKey    int
	totalPartitions int
	strategy        PartitionStrategy
	pollInterval    time.Duration
	batchSize       int
	now             func() time.Time

	// repairCursor is the last stale order id Repair visited.
	repairCursor string

	stopCh chan struct{}
}

// option is a function that configures the Worker.
type option func(*Worker)

// NewWorker creates a new projector worker.
func NewWorker(
	eventLog ieventlog.IEventLog,
	views iorderviewrepo.IOrderViewRepository,
	opts ...option,
) *Worker {
	pollIntervalMs := viper.GetInt("projector.poll_interval_ms")
	if pollIntervalMs == 0 {
		pollIntervalMs = 500
	}

	batchSize := viper.GetInt("projector.batch_size")
	if batchSize == 0 {
		batchSize = 200
	}

	w := &Worker{
		eventLog:        eventLog,
		views:           views,
		name:            defaultName,
		totalPartitions: 1,
		strategy:        HashPartitionStrategy{},
		pollInterval:    time.Duration(pollIntervalMs) * time.Millisecond,
		batchSize:       batchSize,
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithName(name string) option {
	return func(w *Worker) {
		w.name = name
	}
}

// WithPartition makes the worker handle only the orders hashed to key out
// of total partitions.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPartition(key, total int) option {
	return func(w *Worker) {
		if total > 0 && key >= 0 && key < total {
			w.partitionKey = key
			w.totalPartitions = total
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithPollInterval(d time.Duration) option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithBatchSize(n int) option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(w *Worker) {
		w.now = now
	}
}

// CheckpointName is the key the worker stores its position under.
func (w *Worker) CheckpointName() string {
	return fmt.Sprintf("%s-%d-of-%d", w.name, w.partitionKey, w.totalPartitions)
}

// Start runs the worker until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Projector started",
		"checkpoint", w.CheckpointName(),
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Projector shutting down", "checkpoint", w.CheckpointName())

			return
		case <-w.stopCh:
			slog.Info("Projector stopped", "checkpoint", w.CheckpointName())

			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) tick(ctx context.Context) {
	// Drain the backlog before waiting for the next tick.
	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			slog.Error("Failed to project events", "checkpoint", w.CheckpointName(), "error", err)
			break
		}
		if n < w.batchSize {
			break
		}
	}

	if _, err := w.Repair(ctx); err != nil {
		slog.Error("Failed to repair stale views", "checkpoint", w.CheckpointName(), "error", err)
	}
}

// ProcessBatch projects up to one batch of events after the checkpoint and
// returns how many events were read. A storage failure stops the batch; the
// checkpoint then covers only the events handled before it.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	name := w.CheckpointName()
	from, err := w.views.Checkpoint(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint %s: %w", name, err)
	}

	events, err := w.eventLog.ReadAll(ctx, from, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read events after position %d: %w", from, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	last := from
	var projectErr error
	for _, e := range events {
		if w.strategy.ShouldProcess(e.OrderID, w.partitionKey, w.totalPartitions) {
			if projectErr = w.project(ctx, e); projectErr != nil {
				break
			}
		}
		last = e.Position
	}

	if last > from {
		if err := w.views.SaveCheckpoint(ctx, name, last); err != nil {
			return len(events), errors.Join(projectErr, fmt.Errorf("failed to save checkpoint %s: %w", name, err))
		}
	}
	if projectErr != nil {
		return len(events), projectErr
	}

	return len(events), nil
}

// project folds one event into its view. Events the view cannot take mark
// it stale instead of failing the batch.
func (w *Worker) project(ctx context.Context, e order.Event) error {
	view, err := w.views.Get(ctx, e.OrderID)
	if errors.Is(err, iorderviewrepo.ErrNotFound) {
		view = orderview.New(e.OrderID)
	} else if err != nil {
		return fmt.Errorf("failed to get view of order %s: %w", e.OrderID, err)
	}

	if view.Stale {
		// Repair catches up from the log.
		return nil
	}

	applied, err := view.Apply(e)
	if err != nil {
		slog.Warn("Marking order view stale",
			"order_id", e.OrderID,
			"seq", e.Seq,
			"event_type", e.Type,
			"error", err,
		)
		view.MarkStale(err, w.now())
	} else if !applied {
		return nil
	} else {
		view.UpdatedAt = w.now()
	}

	if err := w.views.Upsert(ctx, view); err != nil {
		return fmt.Errorf("failed to save view of order %s: %w", e.OrderID, err)
	}

	return nil
}

// Repair brings stale views owned by this worker up to date by re-reading
// their streams from the event log. Each call attempts at most one batch of
// owned views and resumes after the last one seen, so views that cannot be
// repaired yet do not hold back the rest. It returns how many views
// recovered.
func (w *Worker) Repair(ctx context.Context) (int, error) {
	attempted, repaired := 0, 0
	for attempted < w.batchSize {
		stale, err := w.views.ListStale(ctx, w.repairCursor, w.batchSize)
		if err != nil {
			return repaired, fmt.Errorf("failed to list stale views: %w", err)
		}

		for _, view := range stale {
			if attempted == w.batchSize {
				return repaired, nil
			}
			if !w.strategy.ShouldProcess(view.OrderID, w.partitionKey, w.totalPartitions) {
				w.repairCursor = view.OrderID
				continue
			}

			attempted++
			ok, err := w.repair(ctx, view)
			if err != nil {
				return repaired, err
			}
			w.repairCursor = view.OrderID
			if ok {
				repaired++
			}
		}

		if len(stale) < w.batchSize {
			// End of the stale set; start over on the next pass.
			w.repairCursor = ""
			break
		}
	}

	return repaired, nil
}

func (w *Worker) repair(ctx context.Context, view orderview.Order) (bool, error) {
	events, err := w.eventLog.ReadFrom(ctx, view.OrderID, view.LastSeq)
	if err != nil {
		return false, fmt.Errorf("failed to read stream %s: %w", view.OrderID, err)
	}

	fresh := view.Clone()
	var applyErr error
	for _, e := range events {
		if _, applyErr = fresh.Apply(e); applyErr != nil {
			break
		}
	}

	if applyErr != nil {
		// Keep whatever was applied and wait for the next pass.
		fresh.MarkStale(applyErr, w.now())
	} else {
		fresh.Stale = false
		fresh.LastError = ""
		fresh.UpdatedAt = w.now()
	}

	if err := w.views.Upsert(ctx, fresh); err != nil {
		return false, fmt.Errorf("failed to save view of order %s: %w", view.OrderID, err)
	}
	if applyErr != nil {
		slog.Warn("Order view still stale", "order_id", view.OrderID, "last_seq", fresh.LastSeq, "error", applyErr)
		return false, nil
	}

	slog.Info("Order view repaired", "order_id", view.OrderID, "last_seq", fresh.LastSeq)

	return true, nil
}
