package projector

import (
	"context"
	"log/slog"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Group runs one worker per partition.
type Group struct {
	workers []*Worker
}

// NewGroup creates projector.partitions workers sharing the log and the view
// store. opts apply to every worker.
func NewGroup(
	eventLog ieventlog.IEventLog,
	views iorderviewrepo.IOrderViewRepository,
	opts ...option,
) *Group {
	partitions := viper.GetInt("projector.partitions")
	if partitions <= 0 {
		partitions = 1
	}

	g := &Group{workers: make([]*Worker, 0, partitions)}
	for key := 0; key < partitions; key++ {
		workerOpts := append(append([]option{}, opts...), WithPartition(key, partitions))
		g.workers = append(g.workers, NewWorker(eventLog, views, workerOpts...))
	}

	return g
}

// Workers returns the partition workers.
func (g *Group) Workers() []*Worker {
	return g.workers
}

// Start runs all workers and blocks until they return.
func (g *Group) Start(ctx context.Context) {
	slog.Info("Starting projectors", "partitions", len(g.workers))

	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range g.workers {
		w := w
		eg.Go(func() error {
			w.Start(ctx)
			return nil
		})
	}
	_ = eg.Wait()
}

// Stop stops all workers.
func (g *Group) Stop() {
	for _, w := range g.workers {
		w.Stop()
	}
}
