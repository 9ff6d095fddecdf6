package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/order"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/ordercqrs/internal/service/services/querysvc"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Error writing response", "path", r.URL.Path, "error", err)
	}
}

// Error maps err to a status code and writes it.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}

	JSON(w, r, status, ErrorBody{Error: err.Error(), Code: code})
}

// BadRequest writes a 400 for malformed input.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	JSON(w, r, http.StatusBadRequest, ErrorBody{Error: msg, Code: string(order.CodeInvalidCommand)})
}

func classify(err error) (int, string) {
	var vErr *order.ValidationError
	var sErr *ordersvc.StorageError

	switch {
	case errors.As(err, &vErr):
		if vErr.Code == order.CodeInvalidCommand {
			return http.StatusBadRequest, string(vErr.Code)
		}
		return http.StatusConflict, string(vErr.Code)
	case errors.Is(err, ordersvc.ErrNotFound), errors.Is(err, querysvc.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ordersvc.ErrConflict):
		return http.StatusConflict, "concurrent_modification"
	case errors.As(err, &sErr):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
