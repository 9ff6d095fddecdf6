package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

const ContentTypeJSON = "application/json"

// Message is an integration message published to a broker.
type Message struct {
	ID          string
	Type        string
	Key         string
	ContentType string
	Payload     []byte
}

// OrderEvent is the wire form of a committed order event.
type OrderEvent struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	Seq        int64     `json:"seq"`
	Position   int64     `json:"position"`
	Type       string    `json:"type"`
	ProductID  string    `json:"product_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FromEvent builds the integration message for a committed event. Messages
// are keyed by order id so brokers keep per-order ordering.
func FromEvent(e order.Event) (Message, error) {
	payload, err := json.Marshal(OrderEvent{
		EventID:    e.ID.String(),
		OrderID:    e.OrderID,
		Seq:        e.Seq,
		Position:   e.Position,
		Type:       string(e.Type),
		ProductID:  e.ProductID,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal order event: %w", err)
	}

	return Message{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Key:         e.OrderID,
		ContentType: ContentTypeJSON,
		Payload:     payload,
	}, nil
}
