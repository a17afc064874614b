package updatestatus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/restboard/restboard/internal/service/models/order"
)

type service interface {
	UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles the order status change request. Invalid statuses
// are rejected with 400, unknown orders with 404.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		slog.Error("Error parsing order id", "error", err)

		return
	}

	req := updateStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for status update", "error", err)

		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing status value", "error", err, "status", req.Status)

		return
	}

	updated, err := service.UpdateStatus(r.Context(), id, status)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, order.ErrInvalidStatus):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		slog.Error("Error updating order status", "error", err, "order_id", id)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(updated); err != nil {
		slog.Error("Error sending response for status update", "error", err)
	}
}
