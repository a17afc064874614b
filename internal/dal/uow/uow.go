package uow

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/restboard/restboard/internal/dal/interfaces/iorderrepo"
	"github.com/restboard/restboard/internal/dal/interfaces/ioutboxrepo"
	"github.com/restboard/restboard/internal/dal/postgres"
	orderrepo "github.com/restboard/restboard/internal/dal/repositories/order/postgres"
	outboxrepo "github.com/restboard/restboard/internal/dal/repositories/outbox/postgres"
)

// unitOfWork binds the order and outbox repositories to a single
// transaction so order mutations and their outbox events commit together.
type unitOfWork struct {
	db         *sqlx.DB
	tx         *sqlx.Tx
	orderRepo  iorderrepo.IOrderRepository
	outboxRepo ioutboxrepo.IOutboxRepository
}

func NewUnitOfWork(db *postgres.Client) *unitOfWork {
	return &unitOfWork{
		db:         db.DB(),
		orderRepo:  orderrepo.NewPostgresOrderRepository(db.DB()),
		outboxRepo: outboxrepo.NewOutboxRepository(db.DB()),
	}
}

func (u *unitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *unitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	u.tx = tx
	// Rebind the repositories onto the transaction.
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.outboxRepo = outboxrepo.NewOutboxRepository(tx)

	return nil
}

func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Commit()
}

func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Rollback()
}
