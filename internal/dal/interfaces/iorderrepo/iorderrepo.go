package iorderrepo

import (
	"context"

	"github.com/restboard/restboard/internal/service/models/order"
)

// IOrderRepository defines persistence operations for orders.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
}
