package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	eventlogmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/eventlog/memory"
	viewmemory "github.com/corray333/backend-labs/ordercqrs/internal/dal/repositories/orderview/memory"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/orderview"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/services/querysvc"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/converters"
	"github.com/corray333/backend-labs/ordercqrs/internal/transport/http/v1/response"
	"github.com/corray333/backend-labs/ordercqrs/pkg/logger"
)

type failingCommands struct {
	err error
}

func (f failingCommands) Dispatch(context.Context, order.Command) ([]order.Event, error) {
	return nil, f.err
}

type recordingQueries struct {
	views []orderview.Order
	got   orderview.ListQuery
}

func (q *recordingQueries) GetOrder(_ context.Context, id string) (orderview.Order, error) {
	for _, v := range q.views {
		if v.OrderID == id {
			return v, nil
		}
	}

	return orderview.Order{}, querysvc.ErrNotFound
}

func (q *recordingQueries) ListOrders(_ context.Context, query orderview.ListQuery) ([]orderview.Order, error) {
	q.got = query

	return q.views, nil
}

func newTestTransport(t *testing.T, commands commandService, queries queryService) http.Handler {
	t.Helper()
	h := NewHTTPTransport(commands, queries)
	h.RegisterRoutes()

	return h.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}

	return v
}

func TestCommandFlow(t *testing.T) {
	svc := ordersvc.MustNewOrderService(ordersvc.WithEventLog(eventlogmemory.NewEventLog()))
	t.Cleanup(svc.Close)
	queries := querysvc.MustNewQueryService(querysvc.WithViewRepository(viewmemory.NewOrderViewRepository()))
	h := newTestTransport(t, svc, queries)

	rec := do(t, h, http.MethodPost, "/api/orders", `{"order_id":"A"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body)
	}
	created := decode[converters.CommandResponse](t, rec)
	if created.OrderID != "A" || len(created.Events) != 1 || created.Events[0].Type != "order.created" {
		t.Fatalf("create response = %+v", created)
	}

	steps := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/orders/A/products/chair", http.StatusOK, ""},
		{"/api/orders/A/products/chair", http.StatusConflict, "duplicate_line"},
		{"/api/orders/A/products/chair/increment", http.StatusOK, ""},
		{"/api/orders/A/products/lamp/decrement", http.StatusConflict, "line_not_found"},
		{"/api/orders/A/ship", http.StatusConflict, "not_confirmed"},
		{"/api/orders/A/confirm", http.StatusOK, ""},
		{"/api/orders/A/confirm", http.StatusOK, ""},
		{"/api/orders/A/ship", http.StatusOK, ""},
		{"/api/orders/B/confirm", http.StatusNotFound, "not_found"},
	}
	for _, s := range steps {
		rec := do(t, h, http.MethodPost, s.path, "")
		if rec.Code != s.status {
			t.Fatalf("POST %s: status %d, want %d, body %s", s.path, rec.Code, s.status, rec.Body)
		}
		if s.code != "" {
			if body := decode[response.ErrorBody](t, rec); body.Code != s.code {
				t.Fatalf("POST %s: code %q, want %q", s.path, body.Code, s.code)
			}
		}
	}

	o, err := svc.Load(context.Background(), "A")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l, _ := o.Line("chair"); l.Count() != 2 || !o.Shipped() {
		t.Fatalf("order = seq %d status %s", o.Seq(), o.Status())
	}
}

func TestCreateOrderGeneratesID(t *testing.T) {
	svc := ordersvc.MustNewOrderService(ordersvc.WithEventLog(eventlogmemory.NewEventLog()))
	t.Cleanup(svc.Close)
	h := newTestTransport(t, svc, &recordingQueries{})

	rec := do(t, h, http.MethodPost, "/api/orders", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	if resp := decode[converters.CommandResponse](t, rec); resp.OrderID == "" {
		t.Fatal("no order id generated")
	}

	if rec := do(t, h, http.MethodPost, "/api/orders", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", errors.Join(ordersvc.ErrConflict, errors.New("stream moved")), http.StatusConflict, "concurrent_modification"},
		{"storage", &ordersvc.StorageError{Op: "append", OrderID: "A", Err: errors.New("timeout")}, http.StatusServiceUnavailable, "storage_unavailable"},
		{"invalid", &order.ValidationError{Code: order.CodeInvalidCommand, Err: order.ErrInvalidCommand}, http.StatusBadRequest, "invalid_command"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestTransport(t, failingCommands{err: tt.err}, &recordingQueries{})
			rec := do(t, h, http.MethodPost, "/api/orders/A/confirm", "")
			if rec.Code != tt.status {
				t.Fatalf("status %d, want %d", rec.Code, tt.status)
			}
			if body := decode[response.ErrorBody](t, rec); body.Code != tt.code {
				t.Fatalf("code %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestQueries(t *testing.T) {
	queries := &recordingQueries{views: []orderview.Order{{
		OrderID:  "A",
		Status:   orderview.StatusConfirmed,
		Products: map[string]int{"table": 1, "chair": 2},
		LastSeq:  4,
	}}}
	h := newTestTransport(t, failingCommands{}, queries)

	rec := do(t, h, http.MethodGet, "/api/orders/A", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	got := decode[converters.Order](t, rec)
	if got.Status != "confirmed" || got.Version != 4 || len(got.Products) != 2 || got.Products[0].ProductID != "chair" {
		t.Fatalf("order = %+v", got)
	}

	if rec := do(t, h, http.MethodGet, "/api/orders/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/orders?limit=10&offset=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if queries.got != (orderview.ListQuery{Limit: 10, Offset: 20}) {
		t.Fatalf("query = %+v", queries.got)
	}
	if list := decode[converters.ListOrdersResponse](t, rec); len(list.Orders) != 1 {
		t.Fatalf("list = %+v", list)
	}

	if rec := do(t, h, http.MethodGet, "/api/orders?limit=ten", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d", rec.Code)
	}
}

func TestDemoOrders(t *testing.T) {
	log := eventlogmemory.NewEventLog()
	svc := ordersvc.MustNewOrderService(ordersvc.WithEventLog(log))
	t.Cleanup(svc.Close)
	h := newTestTransport(t, svc, &recordingQueries{})

	rec := do(t, h, http.MethodPost, "/api/orders/ship-order", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ship-order: status %d body %s", rec.Code, rec.Body)
	}
	shipped := decode[converters.CommandResponse](t, rec)
	var types []string
	for _, e := range shipped.Events {
		types = append(types, e.Type)
	}
	want := []string{"order.created", "order.product_added", "order.confirmed", "order.shipped"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", types, want)
	}
	o, err := svc.Load(context.Background(), shipped.OrderID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := o.Line("Deluxe Chair"); !ok || !o.Shipped() {
		t.Fatalf("order %s: status %s", shipped.OrderID, o.Status())
	}

	rec = do(t, h, http.MethodPost, "/api/orders/ship-unconfirmed-order", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("ship-unconfirmed-order: status %d body %s", rec.Code, rec.Body)
	}
	if body := decode[response.ErrorBody](t, rec); body.Code != "not_confirmed" {
		t.Fatalf("code %q, want not_confirmed", body.Code)
	}

	all, err := log.ReadAll(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	// Four events of the shipped order, then the unconfirmed order's create and add.
	if len(all) != 6 || all[4].Type != order.EventTypeOrderCreated || all[5].Type != order.EventTypeProductAdded {
		t.Fatalf("log has %d events", len(all))
	}
}

func TestPanicIsLoggedAsServerError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(logger.NewHandler(&logger.Options{Writer: &buf})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tr := NewHTTPTransport(failingCommands{}, &recordingQueries{})
	tr.router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := do(t, tr.Handler(), http.MethodGet, "/boom", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}

	var record map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var r map[string]any
		if err := json.Unmarshal([]byte(line), &r); err == nil && r["msg"] == "request completed" {
			record = r
		}
	}
	if record == nil {
		t.Fatalf("no request record in %q", buf.String())
	}
	if record["status"] != float64(http.StatusInternalServerError) || record["level"] != "ERROR" {
		t.Fatalf("record = %v", record)
	}
}
