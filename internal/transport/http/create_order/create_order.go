package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/restboard/restboard/internal/service/models/order"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
}

// createOrderRequest represents a create order request. Items are kept raw
// so heterogeneous encodings get normalized in one place.
type createOrderRequest struct {
	RestaurantID int64           `json:"restaurantId" validate:"gt=0"`
	CustomerName string          `json:"customerName"`
	TableNumber  string          `json:"tableNumber"`
	Items        json.RawMessage `json:"items"        validate:"required"`
	TotalPrice   json.RawMessage `json:"totalPrice"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validator.New().Struct(r)
}

// toModel converts createOrderRequest to order.Order.
func (r *createOrderRequest) toModel() *order.Order {
	o := &order.Order{
		RestaurantID: r.RestaurantID,
		CustomerName: r.CustomerName,
		TableNumber:  r.TableNumber,
		Items:        order.DecodeItems(r.Items),
		TotalPrice:   decimal.Zero,
	}
	if len(r.TotalPrice) > 0 {
		var price decimal.Decimal
		if err := json.Unmarshal(r.TotalPrice, &price); err == nil && !price.IsNegative() {
			o.TotalPrice = price
		}
	}
	return o
}

// CreateOrder handles the order creation request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderReq := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&orderReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for create order", "error", err)

		return
	}

	if err := orderReq.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for create order", "error", err)

		return
	}

	model := orderReq.toModel()
	if len(model.Items) == 0 {
		http.Error(w, "items required", http.StatusBadRequest)
		slog.Error("Create order request without decodable items")

		return
	}

	created, err := service.CreateOrder(r.Context(), *model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error creating order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		slog.Error("Error sending response for create order", "error", err)
	}
}
