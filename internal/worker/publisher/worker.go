package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventpublisher"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/message"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/outbox"
	"github.com/spf13/viper"
)

const checkpointName = "publisher"

type checkpointStore interface {
	Checkpoint(ctx context.Context, name string) (int64, error)
	SaveCheckpoint(ctx context.Context, name string, position int64) error
}

// Worker forwards committed events to the broker in log order. Events the
// broker rejects are parked in the outbox for redelivery.
type Worker struct {
	eventLog      ieventlog.IEventLog
	publisher     ieventpublisher.IEventPublisher
	outboxRepo    ioutboxrepo.IOutboxRepository
	checkpoints   checkpointStore
	pollInterval  time.Duration
	batchSize     int
	maxRetries    int
	retryInterval time.Duration
	now           func() time.Time
	stopCh        chan struct{}
}

// NewWorker creates a new publisher worker.
func NewWorker(
	eventLog ieventlog.IEventLog,
	publisher ieventpublisher.IEventPublisher,
	outboxRepo ioutboxrepo.IOutboxRepository,
	checkpoints checkpointStore,
) *Worker {
	pollIntervalMs := viper.GetInt("messaging.publisher.poll_interval_ms")
	if pollIntervalMs == 0 {
		pollIntervalMs = 500
	}

	batchSize := viper.GetInt("messaging.publisher.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	maxRetries := viper.GetInt("messaging.outbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}

	retryIntervalSeconds := viper.GetInt("messaging.outbox.retry_interval_seconds")
	if retryIntervalSeconds == 0 {
		retryIntervalSeconds = 30
	}

	return &Worker{
		eventLog:      eventLog,
		publisher:     publisher,
		outboxRepo:    outboxRepo,
		checkpoints:   checkpoints,
		pollInterval:  time.Duration(pollIntervalMs) * time.Millisecond,
		batchSize:     batchSize,
		maxRetries:    maxRetries,
		retryInterval: time.Duration(retryIntervalSeconds) * time.Second,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start begins forwarding events.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Event publisher started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event publisher shutting down")

			return
		case <-w.stopCh:
			slog.Info("Event publisher stopped")

			return
		case <-ticker.C:
			for {
				n, err := w.ProcessBatch(ctx)
				if err != nil {
					slog.Error("Failed to publish events", "error", err)
					break
				}
				if n < w.batchSize {
					break
				}
			}
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// ProcessBatch forwards up to one batch of events after the checkpoint and
// returns how many were read.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	from, err := w.checkpoints.Checkpoint(ctx, checkpointName)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	events, err := w.eventLog.ReadAll(ctx, from, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read events after position %d: %w", from, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	last := from
	var forwardErr error
	for _, e := range events {
		if forwardErr = w.forward(ctx, e); forwardErr != nil {
			break
		}
		last = e.Position
	}

	if last > from {
		if err := w.checkpoints.SaveCheckpoint(ctx, checkpointName, last); err != nil {
			return len(events), errors.Join(forwardErr, fmt.Errorf("failed to save checkpoint: %w", err))
		}
	}

	return len(events), forwardErr
}

// forward publishes e, falling back to the outbox. It fails only when the
// event could be neither published nor parked.
func (w *Worker) forward(ctx context.Context, e order.Event) error {
	msg, err := message.FromEvent(e)
	if err != nil {
		slog.Error("Skipping event that cannot be encoded", "order_id", e.OrderID, "seq", e.Seq, "error", err)
		return nil
	}

	publishErr := w.publisher.Publish(ctx, msg)
	if publishErr == nil {
		return nil
	}

	now := w.now()
	err = w.outboxRepo.Insert(ctx, outbox.Message{
		Message:     msg,
		MaxRetries:  w.maxRetries,
		LastError:   publishErr.Error(),
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now.Add(outbox.Backoff(w.retryInterval, 1)),
	})
	if err != nil {
		return fmt.Errorf("failed to park message %s in outbox: %w", msg.ID, errors.Join(publishErr, err))
	}

	slog.Warn("Publish failed, message parked in outbox",
		"order_id", e.OrderID,
		"message_id", msg.ID,
		"error", publishErr,
	)

	return nil
}
