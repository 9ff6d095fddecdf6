package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/message"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/outbox"
)

func TestPendingRetryDelete(t *testing.T) {
	ctx := context.Background()
	client, err := sqlite.Open(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	repo := NewOutboxRepository(client)

	now := time.UnixMilli(1_700_000_000_000).UTC()
	msg := outbox.Message{
		Message: message.Message{
			ID:          "evt-1",
			Type:        "order.created",
			Key:         "A",
			ContentType: message.ContentTypeJSON,
			Payload:     []byte(`{"order_id":"A"}`),
		},
		MaxRetries:  2,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}
	if err := repo.Insert(ctx, msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := repo.GetPendingMessages(ctx, now, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Message.Key != "A" || string(pending[0].Message.Payload) != `{"order_id":"A"}` {
		t.Fatalf("pending = %+v", pending)
	}
	id := pending[0].ID

	if err := repo.UpdateRetry(ctx, id, 1, "broker down", now.Add(time.Minute)); err != nil {
		t.Fatalf("update retry: %v", err)
	}
	if pending, _ := repo.GetPendingMessages(ctx, now, 10); len(pending) != 0 {
		t.Fatalf("message due too early: %+v", pending)
	}
	later, _ := repo.GetPendingMessages(ctx, now.Add(time.Minute), 10)
	if len(later) != 1 || later[0].RetryCount != 1 || later[0].LastError != "broker down" {
		t.Fatalf("later = %+v", later)
	}

	if err := repo.UpdateRetry(ctx, id, 2, "still down", now); err != nil {
		t.Fatalf("update retry: %v", err)
	}
	if exhausted, _ := repo.GetPendingMessages(ctx, now.Add(time.Hour), 10); len(exhausted) != 0 {
		t.Fatalf("exhausted message still pending: %+v", exhausted)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
