package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventpublisher"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/outbox"
	"github.com/spf13/viper"
)

// Worker redelivers messages parked in the outbox.
type Worker struct {
	outboxRepo    ioutboxrepo.IOutboxRepository
	publisher     ieventpublisher.IEventPublisher
	pollInterval  time.Duration
	batchSize     int
	retryInterval time.Duration
	now           func() time.Time
	stopCh        chan struct{}
}

// NewWorker creates a new outbox worker.
func NewWorker(
	outboxRepo ioutboxrepo.IOutboxRepository,
	publisher ieventpublisher.IEventPublisher,
) *Worker {
	pollIntervalSeconds := viper.GetInt("messaging.outbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 10
	}

	batchSize := viper.GetInt("messaging.outbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	retryIntervalSeconds := viper.GetInt("messaging.outbox.retry_interval_seconds")
	if retryIntervalSeconds == 0 {
		retryIntervalSeconds = 30
	}

	return &Worker{
		outboxRepo:    outboxRepo,
		publisher:     publisher,
		pollInterval:  time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:     batchSize,
		retryInterval: time.Duration(retryIntervalSeconds) * time.Second,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start begins processing messages from the outbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processMessages publishes due messages and reschedules the ones that fail.
func (w *Worker) processMessages(ctx context.Context) {
	now := w.now()
	messages, err := w.outboxRepo.GetPendingMessages(ctx, now, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := w.publisher.Publish(ctx, msg.Message); err != nil {
			w.reschedule(ctx, msg, now, err)

			continue
		}

		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)
		} else {
			slog.Info("Message successfully published and removed from outbox",
				"outbox_id", msg.ID,
				"message_id", msg.Message.ID,
			)
		}
	}
}

func (w *Worker) reschedule(ctx context.Context, msg outbox.Message, now time.Time, publishErr error) {
	retryCount := msg.RetryCount + 1
	nextRetryAt := now.Add(outbox.Backoff(w.retryInterval, retryCount+1))

	if retryCount >= msg.MaxRetries {
		slog.Error("Giving up on outbox message",
			"outbox_id", msg.ID,
			"message_id", msg.Message.ID,
			"retry_count", retryCount,
			"error", publishErr,
		)
	} else {
		slog.Warn("Failed to publish message from outbox, will retry",
			"outbox_id", msg.ID,
			"retry_count", retryCount,
			"next_retry", nextRetryAt,
			"error", publishErr,
		)
	}

	if err := w.outboxRepo.UpdateRetry(ctx, msg.ID, retryCount, publishErr.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
	}
}
