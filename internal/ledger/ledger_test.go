package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restboard/restboard/internal/push"
	"github.com/restboard/restboard/internal/service/models/order"
)

// --- Test helpers ---

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeUpdater struct {
	resp  *order.Order
	err   error
	calls int
}

func (u *fakeUpdater) UpdateStatus(_ context.Context, _ int64, _ order.Status) (*order.Order, error) {
	u.calls++
	return u.resp, u.err
}

type memoryBoundaryStore struct {
	boundary Boundary
	saves    int
}

func (s *memoryBoundaryStore) Load() (Boundary, error) {
	return s.boundary, nil
}

func (s *memoryBoundaryStore) Save(b Boundary) error {
	s.boundary = b
	s.saves++
	return nil
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func makeOrder(id int64, status order.Status, total string, createdAt time.Time) order.Order {
	return order.Order{
		ID:           id,
		RestaurantID: 1,
		CustomerName: "Guest",
		Status:       status,
		TotalPrice:   decimal.RequireFromString(total),
		CreatedAt:    createdAt,
	}
}

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	l, err := New(opts...)
	require.NoError(t, err)
	return l
}

// --- Snapshot reconciliation ---

func TestReconcileSnapshotIdempotent(t *testing.T) {
	l := newTestLedger(t)

	snapshot := []order.Order{
		makeOrder(1, order.StatusPending, "10.00", baseTime),
		makeOrder(2, order.StatusCompleted, "20.00", baseTime.Add(time.Minute)),
	}

	l.ReconcileSnapshot(snapshot)
	first := l.Orders()

	l.ReconcileSnapshot(snapshot)
	second := l.Orders()

	assert.Equal(t, first, second)
	assert.Equal(t, 2, l.Len())
}

func TestReconcileSnapshotOrdering(t *testing.T) {
	l := newTestLedger(t)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "10.00", baseTime),
		makeOrder(3, order.StatusPending, "30.00", baseTime.Add(time.Minute)),
		makeOrder(2, order.StatusPending, "20.00", baseTime.Add(time.Minute)),
	})

	got := l.Orders()
	require.Len(t, got, 3)
	// Newest first; equal timestamps break the tie by id.
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Equal(t, int64(1), got[2].ID)
}

func TestReconcileSnapshotMembership(t *testing.T) {
	l := newTestLedger(t)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "10.00", baseTime),
		makeOrder(2, order.StatusPending, "20.00", baseTime),
	})

	// An order inserted by push but not yet visible in the snapshot must
	// survive the next reconcile instead of flickering out.
	l.ApplyPushEvent(push.Event{
		Type:  push.EventNewOrder,
		Order: makeOrder(3, order.StatusPending, "30.00", baseTime.Add(time.Second)),
	})

	l.ReconcileSnapshot([]order.Order{
		makeOrder(2, order.StatusPending, "20.00", baseTime),
	})

	got := l.Orders()
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestReconcileSnapshotServerAuthoritative(t *testing.T) {
	l := newTestLedger(t)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "10.00", baseTime),
	})

	updated := makeOrder(1, order.StatusCompleted, "12.50", baseTime)
	updated.CustomerName = "Alice"
	l.ReconcileSnapshot([]order.Order{updated})

	got := l.Orders()
	require.Len(t, got, 1)
	assert.Equal(t, order.StatusCompleted, got[0].Status)
	assert.Equal(t, "Alice", got[0].CustomerName)
	assert.True(t, got[0].TotalPrice.Equal(decimal.RequireFromString("12.50")))
}

// --- Push events ---

func TestApplyPushEventNoDuplicateInsert(t *testing.T) {
	notifications := 0
	l := newTestLedger(t, WithNotify(func(order.Order) { notifications++ }))

	o := makeOrder(1, order.StatusPending, "10.00", baseTime)
	l.ReconcileSnapshot([]order.Order{o})

	// The push event races the poll and loses; nothing may change.
	l.ApplyPushEvent(push.Event{Type: push.EventNewOrder, Order: o})

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, notifications)
	assert.False(t, l.Highlighted(1))
}

func TestApplyPushEventNotifiesOnce(t *testing.T) {
	notifications := 0
	l := newTestLedger(t, WithNotify(func(order.Order) { notifications++ }))

	o := makeOrder(1, order.StatusPending, "10.00", baseTime)
	l.ApplyPushEvent(push.Event{Type: push.EventNewOrder, Order: o})
	l.ApplyPushEvent(push.Event{Type: push.EventNewOrder, Order: o})

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 1, notifications)
}

func TestApplyPushEventImplicitInsertOnUpdate(t *testing.T) {
	notifications := 0
	l := newTestLedger(t, WithNotify(func(order.Order) { notifications++ }))

	// The creation event was missed; the update inserts defensively
	// without firing the new-order notification.
	l.ApplyPushEvent(push.Event{
		Type:  push.EventOrderUpdated,
		Order: makeOrder(7, order.StatusCompleted, "15.00", baseTime),
	})

	got := l.Completed()
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, 0, notifications)
	assert.False(t, l.Highlighted(7))
}

func TestStatusNeverReverts(t *testing.T) {
	l := newTestLedger(t)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "10.00", baseTime),
	})

	// A stale push event and a stale snapshot both report pending.
	l.ApplyPushEvent(push.Event{
		Type:  push.EventOrderUpdated,
		Order: makeOrder(1, order.StatusPending, "10.00", baseTime),
	})
	require.Equal(t, order.StatusCompleted, l.Orders()[0].Status)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "10.00", baseTime),
	})
	assert.Equal(t, order.StatusCompleted, l.Orders()[0].Status)
}

func TestPushEventMergesUnionOfFields(t *testing.T) {
	l := newTestLedger(t)

	full := makeOrder(1, order.StatusPending, "10.00", baseTime)
	full.TableNumber = "12"
	full.UpdatedAt = baseTime.Add(time.Minute)
	full.Items = []order.Item{{Name: "Salad", Quantity: 1, Price: decimal.RequireFromString("10.00")}}
	l.ReconcileSnapshot([]order.Order{full})

	// Sparse update: only the status changed; known fields must survive.
	sparse := order.Order{ID: 1, Status: order.StatusCompleted, CreatedAt: baseTime}
	l.ApplyPushEvent(push.Event{Type: push.EventOrderUpdated, Order: sparse})

	got := l.Orders()[0]
	assert.Equal(t, order.StatusCompleted, got.Status)
	assert.Equal(t, int64(1), got.RestaurantID)
	assert.Equal(t, "12", got.TableNumber)
	assert.True(t, got.UpdatedAt.Equal(baseTime.Add(time.Minute)))
	assert.Len(t, got.Items, 1)
	assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("10.00")))
}

// --- Revenue ---

func TestRevenueMetrics(t *testing.T) {
	l := newTestLedger(t)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "45.50", baseTime),
		makeOrder(2, order.StatusCompleted, "28.75", baseTime.Add(time.Minute)),
		makeOrder(3, order.StatusCompleted, "32.00", baseTime.Add(2*time.Minute)),
		makeOrder(4, order.StatusPending, "99.99", baseTime.Add(3*time.Minute)),
	})

	revenue := l.Revenue()
	assert.True(t, revenue.TotalRevenue.Equal(decimal.RequireFromString("106.25")),
		"got %s", revenue.TotalRevenue)
	assert.Equal(t, 3, revenue.CompletedCount)
	assert.True(t, revenue.AverageOrderValue.Equal(decimal.RequireFromString("35.42")),
		"got %s", revenue.AverageOrderValue)
}

func TestRevenueEmptyScope(t *testing.T) {
	l := newTestLedger(t)

	revenue := l.Revenue()
	assert.True(t, revenue.TotalRevenue.IsZero())
	assert.Equal(t, 0, revenue.CompletedCount)
	assert.True(t, revenue.AverageOrderValue.IsZero())
}

func TestRevenueFallsBackToItemSum(t *testing.T) {
	l := newTestLedger(t)

	o := makeOrder(1, order.StatusCompleted, "0", baseTime)
	o.Items = []order.Item{
		{Name: "Pizza", Quantity: 2, Price: decimal.RequireFromString("9.50")},
		{Name: "Cola", Quantity: 1, Price: decimal.RequireFromString("2.00")},
	}
	l.ReconcileSnapshot([]order.Order{o})

	revenue := l.Revenue()
	assert.True(t, revenue.TotalRevenue.Equal(decimal.RequireFromString("21.00")),
		"got %s", revenue.TotalRevenue)
}

// --- Reset ---

func TestResetIsolatesHistory(t *testing.T) {
	clock := &fakeClock{now: baseTime.Add(time.Hour)}
	store := &memoryBoundaryStore{}
	l := newTestLedger(t, WithClock(clock.Now), WithBoundaryStore(store))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "45.50", baseTime),
	})
	require.Equal(t, 1, l.Revenue().CompletedCount)

	require.NoError(t, l.Reset())

	assert.Empty(t, l.Completed())
	assert.True(t, l.Revenue().TotalRevenue.IsZero())
	assert.Equal(t, clock.Now(), store.boundary.ResetAt)

	// The pre-reset order stays excluded even if the store still
	// returns it.
	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "45.50", baseTime),
	})
	assert.Empty(t, l.Completed())
	assert.True(t, l.Revenue().TotalRevenue.IsZero())

	// New activity after the boundary counts again.
	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "45.50", baseTime),
		makeOrder(2, order.StatusCompleted, "10.00", clock.Now().Add(time.Minute)),
	})
	assert.Len(t, l.Completed(), 1)
	assert.True(t, l.Revenue().TotalRevenue.Equal(decimal.RequireFromString("10.00")))
}

func TestResetIdempotent(t *testing.T) {
	clock := &fakeClock{now: baseTime.Add(time.Hour)}
	store := &memoryBoundaryStore{}
	l := newTestLedger(t, WithClock(clock.Now), WithBoundaryStore(store))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "45.50", baseTime),
	})

	require.NoError(t, l.Reset())
	first := l.Orders()
	firstRevenue := l.Revenue()

	require.NoError(t, l.Reset())
	assert.Equal(t, first, l.Orders())
	assert.Equal(t, firstRevenue, l.Revenue())
	assert.Equal(t, 2, store.saves)
}

func TestResetClearsHighlights(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	l := newTestLedger(t, WithClock(clock.Now))

	l.ApplyPushEvent(push.Event{
		Type:  push.EventNewOrder,
		Order: makeOrder(1, order.StatusPending, "10.00", baseTime.Add(time.Second)),
	})
	require.True(t, l.Highlighted(1))

	clock.Advance(time.Minute)
	require.NoError(t, l.Reset())
	assert.False(t, l.Highlighted(1))
}

func TestBoundaryLoadedAtConstruction(t *testing.T) {
	store := &memoryBoundaryStore{boundary: Boundary{ResetAt: baseTime.Add(30 * time.Minute)}}
	l := newTestLedger(t, WithBoundaryStore(store))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "45.50", baseTime),
		makeOrder(2, order.StatusCompleted, "10.00", baseTime.Add(time.Hour)),
	})

	got := l.Completed()
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestPushEventStaleReplayIgnored(t *testing.T) {
	store := &memoryBoundaryStore{boundary: Boundary{ResetAt: baseTime.Add(time.Hour)}}
	notifications := 0
	l := newTestLedger(t, WithBoundaryStore(store), WithNotify(func(order.Order) { notifications++ }))

	l.ApplyPushEvent(push.Event{
		Type:  push.EventNewOrder,
		Order: makeOrder(1, order.StatusPending, "10.00", baseTime),
	})

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, notifications)
}

// --- Highlight expiry ---

func TestHighlightExpiry(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	l := newTestLedger(t, WithClock(clock.Now))

	l.ApplyPushEvent(push.Event{
		Type:  push.EventNewOrder,
		Order: makeOrder(1, order.StatusPending, "10.00", baseTime),
	})
	assert.True(t, l.Highlighted(1))

	clock.Advance(4 * time.Second)
	assert.True(t, l.Highlighted(1))

	clock.Advance(2 * time.Second)
	assert.False(t, l.Highlighted(1))
}

func TestHighlightTimersAreIndependent(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	l := newTestLedger(t, WithClock(clock.Now))

	l.ApplyPushEvent(push.Event{
		Type:  push.EventNewOrder,
		Order: makeOrder(1, order.StatusPending, "10.00", baseTime),
	})

	// A burst of later insertions must not extend the first order's
	// remaining highlight time.
	clock.Advance(3 * time.Second)
	l.ApplyPushEvent(push.Event{
		Type:  push.EventNewOrder,
		Order: makeOrder(2, order.StatusPending, "20.00", baseTime.Add(3*time.Second)),
	})

	clock.Advance(3 * time.Second)
	assert.False(t, l.Highlighted(1))
	assert.True(t, l.Highlighted(2))
}

// --- Optimistic completion ---

func TestMarkCompletedConfirms(t *testing.T) {
	confirmed := makeOrder(1, order.StatusCompleted, "28.75", baseTime)
	updater := &fakeUpdater{resp: &confirmed}
	l := newTestLedger(t, WithStatusUpdater(updater))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "28.75", baseTime),
	})

	got, err := l.MarkCompleted(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
	assert.Equal(t, 1, updater.calls)

	revenue := l.Revenue()
	assert.Equal(t, 1, revenue.CompletedCount)
	assert.True(t, revenue.TotalRevenue.Equal(decimal.RequireFromString("28.75")))
}

func TestMarkCompletedRollsBackOnFailure(t *testing.T) {
	updater := &fakeUpdater{err: errors.New("connection refused")}
	l := newTestLedger(t, WithStatusUpdater(updater))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "28.75", baseTime),
	})

	_, err := l.MarkCompleted(context.Background(), 1)
	require.Error(t, err)

	// The optimistic flip is rolled back and nothing was counted.
	got := l.Pending()
	require.Len(t, got, 1)
	assert.Equal(t, order.StatusPending, got[0].Status)
	assert.Equal(t, 0, l.Revenue().CompletedCount)
}

func TestMarkCompletedUnknownOrder(t *testing.T) {
	l := newTestLedger(t, WithStatusUpdater(&fakeUpdater{}))

	_, err := l.MarkCompleted(context.Background(), 42)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestMarkCompletedAlreadyCompleted(t *testing.T) {
	updater := &fakeUpdater{}
	l := newTestLedger(t, WithStatusUpdater(updater))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusCompleted, "10.00", baseTime),
	})

	_, err := l.MarkCompleted(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, 0, updater.calls)
}

func TestMarkCompletedNotFoundFromStore(t *testing.T) {
	updater := &fakeUpdater{err: order.ErrNotFound}
	l := newTestLedger(t, WithStatusUpdater(updater))

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "10.00", baseTime),
	})

	_, err := l.MarkCompleted(context.Background(), 1)
	require.ErrorIs(t, err, order.ErrNotFound)

	// The entry stays in place; the next poll reconciles actual state.
	assert.Len(t, l.Pending(), 1)
}

// --- End to end ---

func TestPollThenPushScenario(t *testing.T) {
	l := newTestLedger(t)

	l.ReconcileSnapshot([]order.Order{
		makeOrder(1, order.StatusPending, "0", baseTime),
		makeOrder(2, order.StatusPending, "0", baseTime.Add(time.Second)),
	})

	l.ApplyPushEvent(push.Event{
		Type:  push.EventOrderUpdated,
		Order: makeOrder(1, order.StatusCompleted, "28.75", baseTime),
	})

	pending := l.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)

	completed := l.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), completed[0].ID)

	revenue := l.Revenue()
	assert.True(t, revenue.TotalRevenue.Equal(decimal.RequireFromString("28.75")),
		"got %s", revenue.TotalRevenue)
}
