package orders

import (
	"context"
	"net/http"
	"strconv"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/converters"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/response"
	"github.com/go-chi/chi/v5"
)

// service is an interface for the read side.
type service interface {
	GetOrder(ctx context.Context, orderID string) (orderview.Order, error)
	ListOrders(ctx context.Context, query orderview.ListQuery) ([]orderview.Order, error)
}

// GetOrder returns the projected view of one order.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	view, err := service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, r, http.StatusOK, converters.OrderFromView(view))
}

// ListOrders returns a page of order views. Accepts limit and offset.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	query := r.URL.Query()

	var q orderview.ListQuery
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			response.BadRequest(w, r, "limit must be an integer")

			return
		}
		q.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			response.BadRequest(w, r, "offset must be an integer")

			return
		}
		q.Offset = offset
	}
	q = q.Normalize()

	views, err := service.ListOrders(r.Context(), q)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, r, http.StatusOK, converters.ListOrdersResponseFromViews(views, q))
}
