package ordersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/restboard/restboard/internal/dal/interfaces/iorderrepo"
	"github.com/restboard/restboard/internal/dal/interfaces/ioutboxrepo"
	"github.com/restboard/restboard/internal/dal/postgres"
	"github.com/restboard/restboard/internal/dal/uow"
	"github.com/restboard/restboard/internal/service/models/order"
	"github.com/restboard/restboard/internal/service/models/outbox"
)

const (
	eventOrderCreated       = "order.created"
	eventOrderStatusUpdated = "order.status_updated"
)

// broadcaster pushes order events to connected dashboard clients.
type broadcaster interface {
	BroadcastNewOrder(o order.Order)
	BroadcastOrderUpdated(o order.Order)
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	OrderRepository() iorderrepo.IOrderRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// OrderService is a service for managing orders.
type OrderService struct {
	pgClient    *postgres.Client
	broadcaster broadcaster
	uowFactory  func() unitOfWork
}

func (s *OrderService) newUOW() unitOfWork {
	return s.uowFactory()
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
		s.uowFactory = func() unitOfWork {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithBroadcaster sets the push channel used to notify dashboards.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBroadcaster(b broadcaster) option {
	return func(s *OrderService) {
		s.broadcaster = b
	}
}

// orderEventPayload is what ends up on the order events queue.
type orderEventPayload struct {
	EventID    string      `json:"eventId"`
	Type       string      `json:"type"`
	Order      order.Order `json:"order"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// CreateOrder normalizes and persists a new order together with its
// outbox event, then broadcasts NEW_ORDER to connected dashboards.
func (s *OrderService) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	now := time.Now()
	o.Normalize()
	o.Status = order.StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return order.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	inserted, err := work.OrderRepository().Insert(ctx, o)
	if err != nil {
		s.rollback(work)
		return order.Order{}, err
	}

	if err := s.insertEvent(ctx, work, eventOrderCreated, inserted); err != nil {
		s.rollback(work)
		return order.Order{}, err
	}

	if err := work.Commit(); err != nil {
		return order.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastNewOrder(inserted)
	}

	return inserted, nil
}

// GetOrders retrieves orders based on the filter.
func (s *OrderService) GetOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	work := s.newUOW()
	return work.OrderRepository().Query(ctx, &filter)
}

// UpdateStatus moves an order to the given status. Only the forward
// pending-to-completed transition is a valid request; the updated order,
// its outbox event and the ORDER_UPDATED broadcast all carry the
// store-confirmed row.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	if status != order.StatusCompleted {
		return nil, order.ErrInvalidStatus
	}

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	updated, err := work.OrderRepository().UpdateStatus(ctx, id, status)
	if err != nil {
		s.rollback(work)
		return nil, err
	}

	if err := s.insertEvent(ctx, work, eventOrderStatusUpdated, *updated); err != nil {
		s.rollback(work)
		return nil, err
	}

	if err := work.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastOrderUpdated(*updated)
	}

	return updated, nil
}

// insertEvent writes the outbox row for an order event inside the active
// transaction.
func (s *OrderService) insertEvent(ctx context.Context, work unitOfWork, eventType string, o order.Order) error {
	payload, err := json.Marshal(orderEventPayload{
		EventID:    uuid.New().String(),
		Type:       eventType,
		Order:      o,
		OccurredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	maxRetries := viper.GetInt("rabbitmq.outbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}

	queueName := viper.GetString("rabbitmq.order_events.queue_name")
	now := time.Now()

	return work.OutboxRepository().Insert(ctx, outbox.Message{
		QueueName:   queueName,
		RoutingKey:  queueName,
		Payload:     payload,
		ContentType: "application/json",
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	})
}

func (s *OrderService) rollback(work unitOfWork) {
	if err := work.Rollback(); err != nil {
		slog.Error("Transaction rollback error", "error", err)
	}
}
