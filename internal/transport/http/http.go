package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/commands"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/orders"
	"github.com/corray333/backend-labs/ordercqrs/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/ordercqrs/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

type commandService interface {
	Dispatch(ctx context.Context, cmd order.Command) ([]order.Event, error)
}

type queryService interface {
	GetOrder(ctx context.Context, orderID string) (orderview.Order, error)
	ListOrders(ctx context.Context, query orderview.ListQuery) ([]orderview.Order, error)
}

type HTTPTransport struct {
	server   *http.Server
	router   *chi.Mux
	commands commandService
	queries  queryService
}

func NewHTTPTransport(commands commandService, queries queryService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:   server,
		router:   router,
		commands: commands,
		queries:  queries,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler exposes the router.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h.router.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Post("/ship-order", h.shipDemoOrder)
		r.Post("/ship-unconfirmed-order", h.shipUnconfirmedDemoOrder)

		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Post("/confirm", h.confirmOrder)
			r.Post("/ship", h.shipOrder)

			r.Route("/products/{productID}", func(r chi.Router) {
				r.Post("/", h.addProduct)
				r.Post("/increment", h.incrementProductCount)
				r.Post("/decrement", h.decrementProductCount)
			})
		})
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	commands.CreateOrder(w, r, h.commands)
}

func (h *HTTPTransport) shipDemoOrder(w http.ResponseWriter, r *http.Request) {
	commands.ShipDemoOrder(w, r, h.commands)
}

func (h *HTTPTransport) shipUnconfirmedDemoOrder(w http.ResponseWriter, r *http.Request) {
	commands.ShipUnconfirmedDemoOrder(w, r, h.commands)
}

func (h *HTTPTransport) addProduct(w http.ResponseWriter, r *http.Request) {
	commands.AddProduct(w, r, h.commands)
}

func (h *HTTPTransport) incrementProductCount(w http.ResponseWriter, r *http.Request) {
	commands.IncrementProductCount(w, r, h.commands)
}

func (h *HTTPTransport) decrementProductCount(w http.ResponseWriter, r *http.Request) {
	commands.DecrementProductCount(w, r, h.commands)
}

func (h *HTTPTransport) confirmOrder(w http.ResponseWriter, r *http.Request) {
	commands.ConfirmOrder(w, r, h.commands)
}

func (h *HTTPTransport) shipOrder(w http.ResponseWriter, r *http.Request) {
	commands.ShipOrder(w, r, h.commands)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	orders.GetOrder(w, r, h.queries)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	orders.ListOrders(w, r, h.queries)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(trace.NewTraceMiddleware)
	// Recoverer must run inside the logger so panics are logged as 500.
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(middleware.Recoverer)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	port := viper.GetString("server.http.port")
	if port == "" {
		port = "8080"
	}

	return &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
