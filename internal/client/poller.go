package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/restboard/restboard/internal/ledger"
	"github.com/restboard/restboard/internal/service/models/order"
)

// snapshotSource fetches the full order list from the store.
type snapshotSource interface {
	FetchOrders(ctx context.Context) ([]order.Order, error)
}

// Poller periodically fetches order snapshots and reconciles them into
// the ledger. A failed fetch leaves the prior ledger state intact and is
// retried on the next cycle.
type Poller struct {
	source   snapshotSource
	ledger   *ledger.Ledger
	interval time.Duration
}

func NewPoller(source snapshotSource, l *ledger.Ledger, interval time.Duration) *Poller {
	return &Poller{
		source:   source,
		ledger:   l,
		interval: interval,
	}
}

// Run polls until the context is canceled, starting with an immediate
// fetch so the dashboard is not empty for a full interval.
func (p *Poller) Run(ctx context.Context) error {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poller shutting down")

			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	orders, err := p.source.FetchOrders(ctx)
	if err != nil {
		slog.Error("Snapshot fetch failed, keeping previous state", "error", err)

		return
	}
	p.ledger.ReconcileSnapshot(orders)
}
