package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/restboard/restboard/internal/service/models/order"
)

// RevenueSnapshot holds the derived revenue metrics for the orders in
// scope. It is computed on demand and never persisted.
type RevenueSnapshot struct {
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	CompletedCount    int             `json:"completedCount"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
}

// Revenue computes the metrics over confirmed completed orders created
// after the reset boundary. Orders with a missing total fall back to the
// sum of their item prices; missing amounts contribute zero. The average
// is division-guarded and rounded to two decimal places.
func (l *Ledger) Revenue() RevenueSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	count := 0
	for _, e := range l.entries {
		if e.order.Status != order.StatusCompleted || e.optimistic {
			continue
		}
		if !l.inScope(e.order) {
			continue
		}
		total = total.Add(e.order.Amount())
		count++
	}

	average := decimal.Zero
	if count > 0 {
		average = total.Div(decimal.NewFromInt(int64(count))).Round(2)
	}

	return RevenueSnapshot{
		TotalRevenue:      total.Round(2),
		CompletedCount:    count,
		AverageOrderValue: average,
	}
}
