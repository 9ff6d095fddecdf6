package order

import (
	"fmt"
	"sort"
)

// Status is the lifecycle stage of an order.
type Status string

const (
	StatusUninitialized Status = ""
	StatusOpen          Status = "open"
	StatusConfirmed     Status = "confirmed"
	StatusShipped       Status = "shipped"
)

// OrderLine is a product entry of an order. It is only reachable through its
// owning Order.
type OrderLine struct {
	productID string
	count     int
}

func (l OrderLine) ProductID() string { return l.productID }
func (l OrderLine) Count() int        { return l.count }

// Order is the aggregate state rebuilt from an order stream.
//
// The zero value is not usable; call New.
type Order struct {
	id     string
	status Status
	lines  map[string]OrderLine
	seq    int64
}

// New returns an uninitialized order, ready for replay or CreateOrder.
func New() *Order {
	return &Order{lines: make(map[string]OrderLine)}
}

// Replay rebuilds an order from its full stream.
func Replay(events []Event) (*Order, error) {
	o := New()
	if err := o.ApplyAll(events); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Order) ID() string        { return o.id }
func (o *Order) Seq() int64        { return o.seq }
func (o *Order) Status() Status    { return o.status }
func (o *Order) Initialized() bool { return o.status != StatusUninitialized }
func (o *Order) Shipped() bool     { return o.status == StatusShipped }
func (o *Order) Confirmed() bool   { return o.status == StatusConfirmed || o.status == StatusShipped }
func (o *Order) LineCount() int    { return len(o.lines) }
func (o *Order) Line(productID string) (OrderLine, bool) {
	l, ok := o.lines[productID]
	return l, ok
}

// Lines returns the order lines sorted by product id.
func (o *Order) Lines() []OrderLine {
	lines := make([]OrderLine, 0, len(o.lines))
	for _, l := range o.lines {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })

	return lines
}

// ApplyAll applies events in order, stopping at the first failure.
func (o *Order) ApplyAll(events []Event) error {
	for _, e := range events {
		if err := o.Apply(e); err != nil {
			return err
		}
	}

	return nil
}

// Apply folds one event into the state. The event must be the next one in
// the stream.
func (o *Order) Apply(e Event) error {
	if e.Seq != o.seq+1 {
		return fmt.Errorf("%w: order %s at seq %d got seq %d", ErrSequenceGap, o.id, o.seq, e.Seq)
	}
	if o.Initialized() && e.OrderID != o.id {
		return fmt.Errorf("%w: %s applied to %s", ErrWrongOrder, e.OrderID, o.id)
	}

	apply, err := applierFor(e.Type)
	if err != nil {
		return err
	}
	if err := apply(o, e); err != nil {
		return fmt.Errorf("failed to apply %s at seq %d: %w", e.Type, e.Seq, err)
	}
	o.seq = e.Seq

	return nil
}

type applyFunc func(o *Order, e Event) error

// applierFor is the transition table keyed by event type.
func applierFor(t EventType) (applyFunc, error) {
	switch t {
	case EventTypeOrderCreated:
		return applyOrderCreated, nil
	case EventTypeProductAdded:
		return applyProductAdded, nil
	case EventTypeProductCountIncremented:
		return applyProductCountIncremented, nil
	case EventTypeProductCountDecremented:
		return applyProductCountDecremented, nil
	case EventTypeProductRemoved:
		return applyProductRemoved, nil
	case EventTypeOrderConfirmed:
		return applyOrderConfirmed, nil
	case EventTypeOrderShipped:
		return applyOrderShipped, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
}

func applyOrderCreated(o *Order, e Event) error {
	if o.Initialized() {
		return ErrInvalidEvent
	}
	o.id = e.OrderID
	o.status = StatusOpen
	o.lines = make(map[string]OrderLine)

	return nil
}

func applyProductAdded(o *Order, e Event) error {
	if !o.Initialized() {
		return ErrInvalidEvent
	}
	if _, ok := o.lines[e.ProductID]; ok {
		return ErrInvalidEvent
	}
	o.lines[e.ProductID] = OrderLine{productID: e.ProductID, count: 1}

	return nil
}

func applyProductCountIncremented(o *Order, e Event) error {
	l, ok := o.lines[e.ProductID]
	if !ok {
		return ErrInvalidEvent
	}
	l.count++
	o.lines[e.ProductID] = l

	return nil
}

func applyProductCountDecremented(o *Order, e Event) error {
	l, ok := o.lines[e.ProductID]
	if !ok || l.count <= 1 {
		return ErrInvalidEvent
	}
	l.count--
	o.lines[e.ProductID] = l

	return nil
}

func applyProductRemoved(o *Order, e Event) error {
	if _, ok := o.lines[e.ProductID]; !ok {
		return ErrInvalidEvent
	}
	delete(o.lines, e.ProductID)

	return nil
}

func applyOrderConfirmed(o *Order, _ Event) error {
	if !o.Initialized() {
		return ErrInvalidEvent
	}
	if o.status == StatusOpen {
		o.status = StatusConfirmed
	}

	return nil
}

func applyOrderShipped(o *Order, _ Event) error {
	if !o.Confirmed() {
		return ErrInvalidEvent
	}
	o.status = StatusShipped

	return nil
}
