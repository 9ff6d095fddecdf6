package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a kind of order event.
type EventType string

const (
	EventTypeOrderCreated            EventType = "order.created"
	EventTypeProductAdded            EventType = "order.product_added"
	EventTypeProductCountIncremented EventType = "order.product_count_incremented"
	EventTypeProductCountDecremented EventType = "order.product_count_decremented"
	EventTypeProductRemoved          EventType = "order.product_removed"
	EventTypeOrderConfirmed          EventType = "order.confirmed"
	EventTypeOrderShipped            EventType = "order.shipped"
)

// ErrUnknownEventType is returned for event types outside the closed set.
var ErrUnknownEventType = errors.New("unknown event type")

// EventTypes returns every known event type.
func EventTypes() []EventType {
	return []EventType{
		EventTypeOrderCreated,
		EventTypeProductAdded,
		EventTypeProductCountIncremented,
		EventTypeProductCountDecremented,
		EventTypeProductRemoved,
		EventTypeOrderConfirmed,
		EventTypeOrderShipped,
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeOrderCreated,
		EventTypeProductAdded,
		EventTypeProductCountIncremented,
		EventTypeProductCountDecremented,
		EventTypeProductRemoved,
		EventTypeOrderConfirmed,
		EventTypeOrderShipped:
		return true
	default:
		return false
	}
}

// hasProduct reports whether events of type t carry a product id.
func (t EventType) hasProduct() bool {
	switch t {
	case EventTypeProductAdded,
		EventTypeProductCountIncremented,
		EventTypeProductCountDecremented,
		EventTypeProductRemoved:
		return true
	default:
		return false
	}
}

// Event is an immutable fact recorded in an order stream.
//
// Seq is the 1-based position inside the order's own stream. Position is the
// global commit position assigned by the event log on append and is zero until
// the event has been committed.
type Event struct {
	ID         uuid.UUID
	OrderID    string
	Seq        int64
	Position   int64
	Type       EventType
	ProductID  string
	OccurredAt time.Time
}

type eventPayload struct {
	ProductID string `json:"product_id,omitempty"`
}

// MarshalPayload encodes the type-specific part of the event.
func (e Event) MarshalPayload() ([]byte, error) {
	if !e.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	p := eventPayload{}
	if e.Type.hasProduct() {
		p.ProductID = e.ProductID
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return data, nil
}

// UnmarshalPayload decodes data produced by MarshalPayload into e.
// e.Type must already be set.
func (e *Event) UnmarshalPayload(data []byte) error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	var p eventPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
		}
	}
	if e.Type.hasProduct() && p.ProductID == "" {
		return fmt.Errorf("missing product id in %s payload", e.Type)
	}
	e.ProductID = p.ProductID

	return nil
}
