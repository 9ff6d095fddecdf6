package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventlog"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ieventpublisher"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/iorderviewrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/interfaces/isnapshotrepo"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/kafka"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/postgres"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/redis"
	eventlogmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/eventlog/memory"
	eventlogpostgres "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/eventlog/postgres"
	eventlogsqlite "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/eventlog/sqlite"
	kafkaevents "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/events/kafka"
	rabbitevents "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/events/rabbitmq"
	viewmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/orderview/memory"
	viewpostgres "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/orderview/postgres"
	viewredis "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/orderview/redis"
	viewsqlite "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/orderview/sqlite"
	outboxmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/outbox/memory"
	outboxpostgres "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/outbox/postgres"
	outboxsqlite "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/outbox/sqlite"
	snapshotmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/snapshot/memory"
	snapshotpostgres "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/snapshot/postgres"
	snapshotsqlite "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/snapshot/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/dal/sqlite"
	"github.com/corray333/backend-labs/ordercqrs/internal/otel"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/services/querysvc"
	httptransport "github.com/corray333/backend-labs/ordercqrs/internal/transport/http"
	outboxworker "github.com/corray333/backend-labs/ordercqrs/internal/worker/outbox"
	"github.com/corray333/backend-labs/ordercqrs/internal/worker/projector"
	publisherworker "github.com/corray333/backend-labs/ordercqrs/internal/worker/publisher"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// stores holds the repositories selected by storage.driver.
type stores struct {
	eventLog  ieventlog.IEventLog
	snapshots isnapshotrepo.ISnapshotRepository
	views     iorderviewrepo.IOrderViewRepository
	outbox    ioutboxrepo.IOutboxRepository
}

// App represents the application.
type App struct {
	orderSvc  *ordersvc.OrderService
	querySvc  *querysvc.QueryService
	transport *httptransport.HTTPTransport

	projectors      *projector.Group
	publisherWorker *publisherworker.Worker
	outboxWorker    *outboxworker.Worker

	postgresClient *postgres.Client
	sqliteClient   *sqlite.Client
	redisClient    *redis.Client
	rabbitMqClient *rabbitmq.Client
	kafkaClient    *kafka.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	a := &App{}
	if viper.GetBool("tracing.enabled") {
		a.otelController = otel.MustInitOtel()
	}

	st := a.mustInitStorage()
	a.mustInitQueryStore(&st)

	a.orderSvc = ordersvc.MustNewOrderService(
		ordersvc.WithEventLog(st.eventLog),
		ordersvc.WithSnapshotRepository(st.snapshots),
	)
	a.querySvc = querysvc.MustNewQueryService(
		querysvc.WithViewRepository(st.views),
	)

	a.projectors = projector.NewGroup(st.eventLog, st.views)

	if publisher := a.mustInitBroker(); publisher != nil {
		a.publisherWorker = publisherworker.NewWorker(st.eventLog, publisher, st.outbox, st.views)
		a.outboxWorker = outboxworker.NewWorker(st.outbox, publisher)
	}

	a.transport = httptransport.NewHTTPTransport(a.orderSvc, a.querySvc)
	a.transport.RegisterRoutes()

	return a
}

func (a *App) mustInitStorage() stores {
	switch driver := viper.GetString("storage.driver"); driver {
	case "", "memory":
		slog.Warn("Using in-memory storage, state is lost on restart")

		return stores{
			eventLog:  eventlogmemory.NewEventLog(),
			snapshots: snapshotmemory.NewSnapshotRepository(),
			views:     viewmemory.NewOrderViewRepository(),
			outbox:    outboxmemory.NewOutboxRepository(),
		}
	case "postgres":
		a.postgresClient = postgres.MustNewClient()

		return stores{
			eventLog:  eventlogpostgres.NewEventLog(a.postgresClient),
			snapshots: snapshotpostgres.NewSnapshotRepository(a.postgresClient),
			views:     viewpostgres.NewOrderViewRepository(a.postgresClient),
			outbox:    outboxpostgres.NewOutboxRepository(a.postgresClient),
		}
	case "sqlite":
		a.sqliteClient = sqlite.MustNewClient()

		return stores{
			eventLog:  eventlogsqlite.NewEventLog(a.sqliteClient),
			snapshots: snapshotsqlite.NewSnapshotRepository(a.sqliteClient),
			views:     viewsqlite.NewOrderViewRepository(a.sqliteClient),
			outbox:    outboxsqlite.NewOutboxRepository(a.sqliteClient),
		}
	default:
		panic("unknown storage.driver: " + driver)
	}
}

// mustInitQueryStore swaps the view store when query_store.driver is set.
func (a *App) mustInitQueryStore(st *stores) {
	switch driver := viper.GetString("query_store.driver"); driver {
	case "":
	case "redis":
		a.redisClient = redis.MustNewClient()
		st.views = viewredis.NewOrderViewRepository(a.redisClient, viper.GetString("query_store.redis.prefix"))
	default:
		panic("unknown query_store.driver: " + driver)
	}
}

// mustInitBroker returns nil when messaging.broker is none.
func (a *App) mustInitBroker() ieventpublisher.IEventPublisher {
	switch broker := viper.GetString("messaging.broker"); broker {
	case "", "none":
		return nil
	case "rabbitmq":
		a.rabbitMqClient = rabbitmq.MustNewClient()

		exchange := viper.GetString("messaging.rabbitmq.exchange")
		if exchange == "" {
			exchange = "orders"
		}
		if err := a.rabbitMqClient.DeclareExchange(rabbitmq.DeclareExchangeConfig{
			Name:    exchange,
			Durable: true,
		}); err != nil {
			panic("failed to declare exchange: " + err.Error())
		}

		return rabbitevents.NewPublisher(a.rabbitMqClient, exchange)
	case "kafka":
		a.kafkaClient = kafka.MustNewClient()

		topic := viper.GetString("messaging.kafka.topic")
		if topic == "" {
			topic = "order-events"
		}

		return kafkaevents.NewPublisher(a.kafkaClient, topic)
	default:
		panic("unknown messaging.broker: " + broker)
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	eg, ctx := errgroup.WithContext(context.Background())

	eg.Go(func() error {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		a.projectors.Start(ctx)
		return nil
	})

	if a.publisherWorker != nil {
		eg.Go(func() error {
			a.publisherWorker.Start(ctx)
			return nil
		})
		eg.Go(func() error {
			a.outboxWorker.Start(ctx)
			return nil
		})
	}

	select {
	case <-stop:
		slog.Info("Shutdown signal received")
	case <-ctx.Done():
		slog.Error("Component failed, shutting down", "error", context.Cause(ctx))
	}

	a.gracefulShutdown(eg)
}

// gracefulShutdown stops the HTTP server first, then the workers, then
// flushes snapshots and closes the clients.
func (a *App) gracefulShutdown(eg *errgroup.Group) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	a.projectors.Stop()
	if a.publisherWorker != nil {
		a.publisherWorker.Stop()
		a.outboxWorker.Stop()
	}
	if err := eg.Wait(); err != nil {
		slog.Error("Component error", "error", err)
	}
	slog.Info("Workers stopped gracefully")

	a.orderSvc.Close()
	slog.Info("Pending snapshots flushed")

	a.closeClients()

	if a.otelController != nil {
		if err := a.otelController.Shutdown(ctx); err != nil {
			slog.Error("Otel trace provider connection close error", "error", err)
		} else {
			slog.Info("Otel trace provider connection closed gracefully")
		}
	}

	select {
	case <-ctx.Done():
		slog.Warn("Shutdown timeout exceeded")
	default:
		slog.Info("Application shutdown complete")
	}
}

func (a *App) closeClients() {
	if a.rabbitMqClient != nil {
		if err := a.rabbitMqClient.Close(); err != nil {
			slog.Error("RabbitMQ connection close error", "error", err)
		} else {
			slog.Info("RabbitMQ connection closed gracefully")
		}
	}

	if a.kafkaClient != nil {
		if err := a.kafkaClient.Close(); err != nil {
			slog.Error("Kafka writer close error", "error", err)
		} else {
			slog.Info("Kafka writer closed gracefully")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			slog.Error("Redis connection close error", "error", err)
		} else {
			slog.Info("Redis connection closed gracefully")
		}
	}

	if a.postgresClient != nil {
		a.postgresClient.Close()
		slog.Info("Database connection closed gracefully")
	}

	if a.sqliteClient != nil {
		if err := a.sqliteClient.Close(); err != nil {
			slog.Error("SQLite close error", "error", err)
		} else {
			slog.Info("SQLite database closed gracefully")
		}
	}
}
