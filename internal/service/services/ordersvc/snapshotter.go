package ordersvc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
)

const snapshotSaveTimeout = 5 * time.Second

// snapshotter writes snapshots in the background. Failures are logged and
// dropped; a full queue drops the request.
type snapshotter struct {
	repo  isnapshotrepo.ISnapshotRepository
	now   func() time.Time
	queue chan *order.Order

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func newSnapshotter(repo isnapshotrepo.ISnapshotRepository, now func() time.Time, size int) *snapshotter {
	s := &snapshotter{
		repo:     repo,
		now:      now,
		queue:    make(chan *order.Order, size),
		inFlight: make(map[string]struct{}),
	}
	s.wg.Add(1)
	go s.run()

	return s
}

// enqueue schedules a snapshot of o, which must not be mutated afterwards.
func (s *snapshotter) enqueue(o *order.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.inFlight[o.ID()]; ok {
		return false
	}

	select {
	case s.queue <- o:
		s.inFlight[o.ID()] = struct{}{}
		return true
	default:
		slog.Warn("Snapshot queue full, skipping snapshot", "order_id", o.ID(), "seq", o.Seq())
		return false
	}
}

func (s *snapshotter) run() {
	defer s.wg.Done()

	for o := range s.queue {
		s.save(o)

		s.mu.Lock()
		delete(s.inFlight, o.ID())
		s.mu.Unlock()
	}
}

func (s *snapshotter) save(o *order.Order) {
	snap, err := o.Snapshot(s.now())
	if err != nil {
		slog.Error("Failed to build snapshot", "order_id", o.ID(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()

	if err := s.repo.Save(ctx, snap); err != nil {
		slog.Error("Failed to save snapshot", "order_id", o.ID(), "seq", snap.Seq, "error", err)
		return
	}
	slog.Debug("Snapshot saved", "order_id", o.ID(), "seq", snap.Seq)
}

// close stops accepting work and waits for queued snapshots to finish.
func (s *snapshotter) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}
