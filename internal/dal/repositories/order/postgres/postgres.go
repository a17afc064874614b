package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/restboard/restboard/internal/service/models/order"
)

// OrderDal represents the order data access layer model.
type OrderDal struct {
	Id           int64           `db:"id"`
	RestaurantId int64           `db:"restaurant_id"`
	CustomerName string          `db:"customer_name"`
	TableNumber  string          `db:"table_number"`
	TotalPrice   decimal.Decimal `db:"total_price"`
	Status       string          `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}
	return &order.Order{
		ID:           o.Id,
		RestaurantID: o.RestaurantId,
		CustomerName: o.CustomerName,
		TableNumber:  o.TableNumber,
		TotalPrice:   o.TotalPrice,
		Status:       status,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		Items:        []order.Item{}, // populated separately
	}, nil
}

// ItemDal represents the order item data access layer model.
type ItemDal struct {
	Id       int64           `db:"id"`
	OrderId  int64           `db:"order_id"`
	Name     string          `db:"name"`
	Quantity int             `db:"quantity"`
	Price    decimal.Decimal `db:"price"`
}

func (i *ItemDal) ToModel() order.Item {
	return order.Item{
		Name:     i.Name,
		Quantity: i.Quantity,
		Price:    i.Price,
	}
}

type PostgresOrderRepository struct {
	conn sqlx.ExtContext
}

func NewPostgresOrderRepository(conn sqlx.ExtContext) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

var orderColumns = []string{
	"id",
	"restaurant_id",
	"customer_name",
	"table_number",
	"total_price",
	"status",
	"created_at",
	"updated_at",
}

// Insert persists a new order with its items and returns the order with
// the server-assigned id.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	query, args, err := sq.Insert("orders").
		Columns(
			"restaurant_id",
			"customer_name",
			"table_number",
			"total_price",
			"status",
			"created_at",
			"updated_at",
		).
		Values(
			o.RestaurantID,
			o.CustomerName,
			o.TableNumber,
			o.TotalPrice,
			o.Status.String(),
			o.CreatedAt,
			o.UpdatedAt,
		).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := r.conn.QueryRowxContext(ctx, query, args...).Scan(&o.ID); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	if len(o.Items) > 0 {
		builder := sq.Insert("order_items").
			Columns("order_id", "name", "quantity", "price").
			PlaceholderFormat(sq.Dollar)
		for _, item := range o.Items {
			builder = builder.Values(o.ID, item.Name, item.Quantity, item.Price)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return order.Order{}, fmt.Errorf("failed to build items insert query: %w", err)
		}
		if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
			return order.Order{}, fmt.Errorf("failed to insert order items: %w", err)
		}
	}

	return o, nil
}

// Query retrieves orders based on filter criteria, newest first, with
// their items attached.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.RestaurantID > 0 {
		builder = builder.Where(sq.Eq{"restaurant_id": filter.RestaurantID})
	}
	if len(filter.Ids) > 0 {
		builder = builder.Where(sq.Expr("id = ANY(?)", pq.Array(filter.Ids)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = s.String()
		}
		builder = builder.Where(sq.Expr("status = ANY(?)", pq.Array(statuses)))
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(sq.Gt{"created_at": filter.Since})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		if err := rows.StructScan(&dal); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if len(result) == 0 {
		return []order.Order{}, nil
	}
	if err := r.attachItems(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus flips a pending order to the given status and returns the
// updated row. The update only matches pending rows, so the forward-only
// transition holds even under concurrent requests: order.ErrNotFound when
// no such order exists, order.ErrInvalidStatus when its status already
// advanced.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	query, args, err := sq.Update("orders").
		Set("status", status.String()).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "status": order.StatusPending.String()}).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	var dal OrderDal
	if err := r.conn.QueryRowxContext(ctx, query, args...).StructScan(&dal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.updateConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	model, err := dal.ToModel()
	if err != nil {
		return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
	}

	orders := []order.Order{*model}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// updateConflict distinguishes a missing order from one whose status
// already moved past pending.
func (r *PostgresOrderRepository) updateConflict(ctx context.Context, id int64) error {
	query, args, err := sq.Select("status").
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build status check query: %w", err)
	}

	var status string
	if err := r.conn.QueryRowxContext(ctx, query, args...).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("failed to check order status: %w", err)
	}
	return order.ErrInvalidStatus
}

// attachItems loads the items for the given orders in a single query.
func (r *PostgresOrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	query, args, err := sq.Select("id", "order_id", "name", "quantity", "price").
		From("order_items").
		Where(sq.Expr("order_id = ANY(?)", pq.Array(ids))).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build items select query: %w", err)
	}

	rows, err := r.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dal ItemDal
		if err := rows.StructScan(&dal); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[dal.OrderId]; ok {
			o.Items = append(o.Items, dal.ToModel())
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	return nil
}
