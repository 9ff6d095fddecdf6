package order

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a serialized order state together with the seq of the last
// event it reflects. Snapshots are a cache; the stream stays authoritative.
type Snapshot struct {
	OrderID   string
	Seq       int64
	State     []byte
	CreatedAt time.Time
}

type snapshotState struct {
	ID     string         `json:"id"`
	Status Status         `json:"status"`
	Lines  []snapshotLine `json:"lines"`
}

type snapshotLine struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

// Snapshot serializes the current state.
func (o *Order) Snapshot(now time.Time) (Snapshot, error) {
	if !o.Initialized() {
		return Snapshot{}, fmt.Errorf("failed to snapshot order: %w", ErrNotCreated)
	}

	state := snapshotState{ID: o.id, Status: o.status, Lines: make([]snapshotLine, 0, len(o.lines))}
	for _, l := range o.Lines() {
		state.Lines = append(state.Lines, snapshotLine{ProductID: l.productID, Count: l.count})
	}

	data, err := json.Marshal(state)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return Snapshot{OrderID: o.id, Seq: o.seq, State: data, CreatedAt: now}, nil
}

// FromSnapshot restores the state captured by Snapshot.
func FromSnapshot(s Snapshot) (*Order, error) {
	var state snapshotState
	if err := json.Unmarshal(s.State, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot of order %s: %w", s.OrderID, err)
	}

	switch {
	case state.ID == "" || state.ID != s.OrderID:
		return nil, fmt.Errorf("snapshot id %q does not match order %s", state.ID, s.OrderID)
	case s.Seq < 1:
		return nil, fmt.Errorf("snapshot of order %s has invalid seq %d", s.OrderID, s.Seq)
	}
	switch state.Status {
	case StatusOpen, StatusConfirmed, StatusShipped:
	default:
		return nil, fmt.Errorf("snapshot of order %s has invalid status %q", s.OrderID, state.Status)
	}

	o := New()
	o.id = state.ID
	o.status = state.Status
	o.seq = s.Seq
	for _, l := range state.Lines {
		if l.ProductID == "" || l.Count < 1 {
			return nil, fmt.Errorf("snapshot of order %s has invalid line %q", s.OrderID, l.ProductID)
		}
		if _, ok := o.lines[l.ProductID]; ok {
			return nil, fmt.Errorf("snapshot of order %s has duplicate line %q", s.OrderID, l.ProductID)
		}
		o.lines[l.ProductID] = OrderLine{productID: l.ProductID, count: l.Count}
	}

	return o, nil
}
