package orderview

import (
	"errors"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

// Status of an order as seen by the read side.
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
)

var (
	ErrGap            = errors.New("event sequence gap")
	ErrUnknownProduct = errors.New("event references unknown product")
	ErrUnexpected     = errors.New("event unexpected in current view state")
)

// Order is the read model of one order: ordered products and their
// quantities. LastSeq is the seq of the last event folded into the view and
// makes applying an event idempotent.
type Order struct {
	OrderID   string         `json:"order_id"`
	Products  map[string]int `json:"products"`
	Status    Status         `json:"status"`
	LastSeq   int64          `json:"last_seq"`
	Stale     bool           `json:"stale"`
	LastError string         `json:"last_error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New returns an empty view for orderID.
func New(orderID string) Order {
	return Order{OrderID: orderID, Products: make(map[string]int)}
}

// Apply folds e into the view. Events at or below LastSeq are skipped and
// reported as not applied. On error the view is left untouched.
func (v *Order) Apply(e order.Event) (bool, error) {
	if e.Seq <= v.LastSeq {
		return false, nil
	}
	if e.Seq != v.LastSeq+1 {
		return false, fmt.Errorf("%w: order %s expected seq %d, got %d", ErrGap, v.OrderID, v.LastSeq+1, e.Seq)
	}
	if v.Products == nil {
		v.Products = make(map[string]int)
	}

	switch e.Type {
	case order.EventTypeOrderCreated:
		if v.LastSeq != 0 {
			return false, fmt.Errorf("%w: %s at seq %d", ErrUnexpected, e.Type, e.Seq)
		}
		v.Status = StatusCreated

	case order.EventTypeProductAdded:
		v.Products[e.ProductID] = 1

	case order.EventTypeProductCountIncremented:
		qty, ok := v.Products[e.ProductID]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownProduct, e.ProductID)
		}
		v.Products[e.ProductID] = qty + 1

	case order.EventTypeProductCountDecremented:
		qty, ok := v.Products[e.ProductID]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownProduct, e.ProductID)
		}
		if qty <= 1 {
			return false, fmt.Errorf("%w: decrement of %s below one", ErrUnexpected, e.ProductID)
		}
		v.Products[e.ProductID] = qty - 1

	case order.EventTypeProductRemoved:
		if _, ok := v.Products[e.ProductID]; !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownProduct, e.ProductID)
		}
		delete(v.Products, e.ProductID)

	case order.EventTypeOrderConfirmed:
		v.Status = StatusConfirmed

	case order.EventTypeOrderShipped:
		v.Status = StatusShipped

	default:
		return false, fmt.Errorf("%w: %q", order.ErrUnknownEventType, e.Type)
	}
	v.LastSeq = e.Seq

	return true, nil
}

// MarkStale flags the view as needing repair from LastSeq.
func (v *Order) MarkStale(err error, now time.Time) {
	v.Stale = true
	v.LastError = err.Error()
	v.UpdatedAt = now
}

// Clone returns a deep copy of the view.
func (v Order) Clone() Order {
	products := make(map[string]int, len(v.Products))
	for k, qty := range v.Products {
		products[k] = qty
	}
	v.Products = products

	return v
}
