package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/converters"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// service is an interface for the command side.
type service interface {
	Dispatch(ctx context.Context, cmd order.Command) ([]order.Event, error)
}

type createOrderRequest struct {
	OrderID string `json:"order_id"`
}

// CreateOrder starts a new order. The id is generated when the body omits it.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "Failed to decode request body")

		return
	}
	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}

	dispatch(w, r, service, order.CreateOrder{OrderID: req.OrderID}, http.StatusCreated)
}

func AddProduct(w http.ResponseWriter, r *http.Request, service service) {
	dispatch(w, r, service, order.AddProduct{
		OrderID:   chi.URLParam(r, "orderID"),
		ProductID: chi.URLParam(r, "productID"),
	}, http.StatusOK)
}

func IncrementProductCount(w http.ResponseWriter, r *http.Request, service service) {
	dispatch(w, r, service, order.IncrementProductCount{
		OrderID:   chi.URLParam(r, "orderID"),
		ProductID: chi.URLParam(r, "productID"),
	}, http.StatusOK)
}

func DecrementProductCount(w http.ResponseWriter, r *http.Request, service service) {
	dispatch(w, r, service, order.DecrementProductCount{
		OrderID:   chi.URLParam(r, "orderID"),
		ProductID: chi.URLParam(r, "productID"),
	}, http.StatusOK)
}

func ConfirmOrder(w http.ResponseWriter, r *http.Request, service service) {
	dispatch(w, r, service, order.ConfirmOrder{OrderID: chi.URLParam(r, "orderID")}, http.StatusOK)
}

func ShipOrder(w http.ResponseWriter, r *http.Request, service service) {
	dispatch(w, r, service, order.ShipOrder{OrderID: chi.URLParam(r, "orderID")}, http.StatusOK)
}

// demoProductID is the product the scripted demo orders carry.
const demoProductID = "Deluxe Chair"

// ShipDemoOrder creates an order with one product, confirms it and ships it.
func ShipDemoOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderID := uuid.NewString()
	dispatchAll(w, r, service, orderID, []order.Command{
		order.CreateOrder{OrderID: orderID},
		order.AddProduct{OrderID: orderID, ProductID: demoProductID},
		order.ConfirmOrder{OrderID: orderID},
		order.ShipOrder{OrderID: orderID},
	})
}

// ShipUnconfirmedDemoOrder tries to ship an order that was never confirmed.
// The shipment is rejected; the created order and its product are kept.
func ShipUnconfirmedDemoOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderID := uuid.NewString()
	dispatchAll(w, r, service, orderID, []order.Command{
		order.CreateOrder{OrderID: orderID},
		order.AddProduct{OrderID: orderID, ProductID: demoProductID},
		order.ShipOrder{OrderID: orderID},
	})
}

// dispatchAll runs cmds in order and stops at the first failure.
func dispatchAll(w http.ResponseWriter, r *http.Request, service service, orderID string, cmds []order.Command) {
	var events []order.Event
	for _, cmd := range cmds {
		emitted, err := service.Dispatch(r.Context(), cmd)
		if err != nil {
			response.Error(w, r, err)

			return
		}
		events = append(events, emitted...)
	}

	response.JSON(w, r, http.StatusOK, converters.CommandResponseFromEvents(orderID, events))
}

func dispatch(w http.ResponseWriter, r *http.Request, service service, cmd order.Command, status int) {
	events, err := service.Dispatch(r.Context(), cmd)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, r, status, converters.CommandResponseFromEvents(cmd.AggregateID(), events))
}
