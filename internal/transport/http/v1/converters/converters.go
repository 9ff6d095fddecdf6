package converters

import (
	"sort"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
)

// Event is the JSON form of a committed event.
type Event struct {
	EventID    string    `json:"event_id"`
	Seq        int64     `json:"seq"`
	Type       string    `json:"type"`
	ProductID  string    `json:"product_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandResponse is returned by every command endpoint.
type CommandResponse struct {
	OrderID string  `json:"order_id"`
	Events  []Event `json:"events"`
}

// Product is one line of an order view.
type Product struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

// Order is the JSON form of an order view.
type Order struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Products  []Product `json:"products"`
	Version   int64     `json:"version"`
	Stale     bool      `json:"stale,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListOrdersResponse is a page of order views.
type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

func CommandResponseFromEvents(orderID string, events []order.Event) CommandResponse {
	resp := CommandResponse{OrderID: orderID, Events: make([]Event, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, Event{
			EventID:    e.ID.String(),
			Seq:        e.Seq,
			Type:       string(e.Type),
			ProductID:  e.ProductID,
			OccurredAt: e.OccurredAt,
		})
	}

	return resp
}

// OrderFromView lists products sorted by id.
func OrderFromView(v orderview.Order) Order {
	products := make([]Product, 0, len(v.Products))
	for id, count := range v.Products {
		products = append(products, Product{ProductID: id, Count: count})
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ProductID < products[j].ProductID })

	return Order{
		OrderID:   v.OrderID,
		Status:    string(v.Status),
		Products:  products,
		Version:   v.LastSeq,
		Stale:     v.Stale,
		UpdatedAt: v.UpdatedAt,
	}
}

func ListOrdersResponseFromViews(views []orderview.Order, query orderview.ListQuery) ListOrdersResponse {
	resp := ListOrdersResponse{
		Orders: make([]Order, 0, len(views)),
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	for _, v := range views {
		resp.Orders = append(resp.Orders, OrderFromView(v))
	}

	return resp
}
