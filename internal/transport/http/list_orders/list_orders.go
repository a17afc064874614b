package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"

	"github.com/restboard/restboard/internal/service/models/order"
)

type service interface {
	GetOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

type queryOrdersRequest struct {
	RestaurantID int64   `schema:"restaurant_id,omitempty"`
	Ids          []int64 `schema:"ids,omitempty"`
	Status       string  `schema:"status,omitempty"`
	Since        string  `schema:"since,omitempty"`
	Limit        int     `schema:"limit,omitempty"`
	Offset       int     `schema:"offset,omitempty"`
}

func (q *queryOrdersRequest) ToModel() (order.QueryOrdersModel, error) {
	model := order.QueryOrdersModel{
		RestaurantID: q.RestaurantID,
		Ids:          q.Ids,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}

	if q.Status != "" {
		status, err := order.ParseStatus(q.Status)
		if err != nil {
			return order.QueryOrdersModel{}, err
		}
		model.Statuses = []order.Status{status}
	}

	if q.Since != "" {
		since, err := time.Parse(time.RFC3339, q.Since)
		if err != nil {
			return order.QueryOrdersModel{}, err
		}
		model.Since = since
	}

	return model, nil
}

func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	model, err := query.ToModel()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing query filters", "error", err)

		return
	}

	orders, err := service.GetOrders(r.Context(), model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error getting orders", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
