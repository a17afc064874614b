package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/restboard/restboard/internal/push"
	"github.com/restboard/restboard/internal/service/models/order"
)

// DefaultHighlightTTL is how long a freshly pushed order keeps its
// new-order highlight.
const DefaultHighlightTTL = 5 * time.Second

var ErrAlreadyCompleted = errors.New("order already completed")

// Clock supplies the current time; replaceable in tests.
type Clock func() time.Time

// StatusUpdater issues the status change to the order store. MarkCompleted
// flips local state optimistically and reconciles with whatever this
// returns.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
}

// entry is one tracked order plus its local bookkeeping.
type entry struct {
	order order.Order

	// optimistic marks a local status flip that the store has not
	// confirmed yet. Optimistic state wins over snapshots until the
	// confirmation or rejection arrives.
	optimistic bool

	// confirmed is set once a snapshot has reported this order, i.e. the
	// store is known to have it. Unconfirmed entries survive snapshot
	// gaps instead of flickering out.
	confirmed bool

	highlightUntil time.Time
}

// Ledger is the client-side authoritative view of orders. It reconciles
// polled snapshots, push events and local optimistic updates into one
// de-duplicated, ordered state and derives the revenue metrics from it.
// All methods are safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	clock         Clock
	updater       StatusUpdater
	boundaryStore BoundaryStore
	notify        func(order.Order)
	highlightTTL  time.Duration

	boundary Boundary
	entries  map[int64]*entry
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithStatusUpdater sets the store client used by MarkCompleted.
func WithStatusUpdater(updater StatusUpdater) Option {
	return func(l *Ledger) {
		l.updater = updater
	}
}

// WithBoundaryStore sets the durable storage for the reset boundary. The
// boundary is loaded at construction and overwritten on Reset.
func WithBoundaryStore(store BoundaryStore) Option {
	return func(l *Ledger) {
		l.boundaryStore = store
	}
}

// WithNotify sets the one-shot callback fired when a genuinely new order
// is inserted by a push event.
func WithNotify(notify func(order.Order)) Option {
	return func(l *Ledger) {
		l.notify = notify
	}
}

// WithHighlightTTL overrides the new-order highlight duration.
func WithHighlightTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.highlightTTL = ttl
	}
}

// New creates a Ledger, loading the persisted reset boundary when a
// boundary store is configured.
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		clock:        time.Now,
		highlightTTL: DefaultHighlightTTL,
		entries:      make(map[int64]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.boundaryStore != nil {
		boundary, err := l.boundaryStore.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load reset boundary: %w", err)
		}
		l.boundary = boundary
	}

	return l, nil
}

// inScope reports whether an order belongs to the currently displayed
// window, i.e. was created strictly after the reset boundary.
func (l *Ledger) inScope(o order.Order) bool {
	return o.CreatedAt.After(l.boundary.ResetAt)
}

// ReconcileSnapshot merges a full polled order list into the ledger. The
// server is authoritative for fields; membership is defined by the
// snapshot except for unconfirmed entries, which are retained to avoid
// flicker on transient fetch gaps. Applying the same snapshot twice yields
// the same state.
func (l *Ledger) ReconcileSnapshot(orders []order.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		if !l.inScope(o) {
			continue
		}
		seen[o.ID] = struct{}{}

		e, ok := l.entries[o.ID]
		if !ok {
			l.entries[o.ID] = &entry{order: o, confirmed: true}
			continue
		}
		l.merge(e, o)
		e.confirmed = true
	}

	for id, e := range l.entries {
		if _, ok := seen[id]; ok {
			continue
		}
		if e.confirmed {
			delete(l.entries, id)
		}
	}
}

// ApplyPushEvent folds a single push-channel event into the ledger.
//
// NEW_ORDER inserts the order unless its id is already known (a poll may
// have fetched it first) or it predates the reset boundary (stale replay);
// a genuine insert is highlighted and fires the notification callback
// exactly once. ORDER_UPDATED merges fields into the existing entry, and
// falls back to an insert when the creation event was missed.
func (l *Ledger) ApplyPushEvent(event push.Event) {
	l.mu.Lock()

	o := event.Order
	if !l.inScope(o) {
		l.mu.Unlock()
		return
	}

	e, exists := l.entries[o.ID]
	if exists {
		l.merge(e, o)
		l.mu.Unlock()
		return
	}

	ne := &entry{order: o}
	if event.Type == push.EventNewOrder {
		ne.highlightUntil = l.clock().Add(l.highlightTTL)
	}
	l.entries[o.ID] = ne
	notify := l.notify
	l.mu.Unlock()

	if event.Type == push.EventNewOrder && notify != nil {
		notify(o)
	}
}

// merge overwrites e with the incoming order's fields, keeping the union
// of known data: empty incoming fields never erase known ones, and status
// only advances. An unconfirmed optimistic completion survives until its
// request resolves or the store reports completed itself.
func (l *Ledger) merge(e *entry, incoming order.Order) {
	prev := e.order

	if incoming.RestaurantID == 0 {
		incoming.RestaurantID = prev.RestaurantID
	}
	if incoming.CustomerName == "" {
		incoming.CustomerName = prev.CustomerName
	}
	if incoming.TableNumber == "" {
		incoming.TableNumber = prev.TableNumber
	}
	if len(incoming.Items) == 0 {
		incoming.Items = prev.Items
	}
	if incoming.TotalPrice.IsZero() && !prev.TotalPrice.IsZero() {
		incoming.TotalPrice = prev.TotalPrice
	}
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = prev.CreatedAt
	}
	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = prev.UpdatedAt
	}

	// Status never reverts from completed to pending.
	if prev.Status == order.StatusCompleted {
		incoming.Status = order.StatusCompleted
	}

	e.order = incoming

	if incoming.Status == order.StatusCompleted && prev.Status != order.StatusCompleted {
		// The store confirmed the completion on its own; the pending
		// optimistic flip, if any, is settled.
		e.optimistic = false
	}
	if e.optimistic {
		e.order.Status = order.StatusCompleted
	}
}

// MarkCompleted optimistically flips the order to completed, issues the
// status update to the store and reconciles with the response. On failure
// the local flip is rolled back and the error returned; revenue only ever
// counts confirmed completions, so a retried request cannot double-count.
func (l *Ledger) MarkCompleted(ctx context.Context, id int64) (*order.Order, error) {
	if l.updater == nil {
		return nil, errors.New("no status updater configured")
	}

	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		l.mu.Unlock()
		return nil, order.ErrNotFound
	}
	if e.order.Status == order.StatusCompleted {
		l.mu.Unlock()
		return nil, ErrAlreadyCompleted
	}
	e.order.Status = order.StatusCompleted
	e.optimistic = true
	l.mu.Unlock()

	updated, err := l.updater.UpdateStatus(ctx, id, order.StatusCompleted)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok = l.entries[id]
	if err != nil {
		// Roll back the optimistic flip unless something more
		// authoritative confirmed the completion in the meantime.
		if ok && e.optimistic {
			e.order.Status = order.StatusPending
			e.optimistic = false
		}
		return nil, fmt.Errorf("failed to update order %d status: %w", id, err)
	}

	if ok {
		e.optimistic = false
		e.confirmed = true
		if updated != nil {
			l.merge(e, *updated)
		}
		confirmedOrder := e.order
		return &confirmedOrder, nil
	}
	return updated, nil
}

// Reset rebases the ledger: the current time becomes the new reset
// boundary, persisted when a boundary store is configured, and highlights
// are cleared. No server-side order is mutated or deleted; orders at or
// before the boundary merely stop counting toward display and revenue.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.boundary = Boundary{ResetAt: l.clock()}
	for id, e := range l.entries {
		if !l.inScope(e.order) {
			delete(l.entries, id)
			continue
		}
		e.highlightUntil = time.Time{}
	}

	if l.boundaryStore != nil {
		if err := l.boundaryStore.Save(l.boundary); err != nil {
			return fmt.Errorf("failed to persist reset boundary: %w", err)
		}
	}
	return nil
}

// ResetBoundary returns the active boundary.
func (l *Ledger) ResetBoundary() Boundary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.boundary
}

// Highlighted reports whether the order still carries the new-order
// indicator. Each highlight expires on its own per-order deadline,
// independent of later insertions.
func (l *Ledger) Highlighted(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	return ok && e.highlightUntil.After(l.clock())
}

// Orders returns all in-scope orders ordered by creation time descending,
// newest first, with ties broken by id.
func (l *Ledger) Orders() []order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(func(order.Order) bool { return true })
}

// Pending returns the in-scope orders still awaiting completion.
func (l *Ledger) Pending() []order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(func(o order.Order) bool { return o.Status == order.StatusPending })
}

// Completed returns the in-scope completed orders.
func (l *Ledger) Completed() []order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(func(o order.Order) bool { return o.Status == order.StatusCompleted })
}

func (l *Ledger) collect(keep func(order.Order) bool) []order.Order {
	out := make([]order.Order, 0, len(l.entries))
	for _, e := range l.entries {
		if l.inScope(e.order) && keep(e.order) {
			out = append(out, e.order)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Len returns the number of tracked entries, including out-of-scope
// unconfirmed ones.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
