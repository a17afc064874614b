package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/restboard/restboard/internal/ledger"
	"github.com/restboard/restboard/internal/push"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts
// after the push channel drops.
const DefaultReconnectDelay = 3 * time.Second

// Feed consumes push events from the server's websocket endpoint and
// applies them to the ledger. On any disconnect it retries with a fixed
// delay; while disconnected the poller alone keeps the ledger converging,
// so events are delayed, never lost.
type Feed struct {
	url            string
	ledger         *ledger.Ledger
	reconnectDelay time.Duration
}

// feedOption configures the Feed.
type feedOption func(*Feed)

// WithReconnectDelay overrides the wait between reconnect attempts.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithReconnectDelay(delay time.Duration) feedOption {
	return func(f *Feed) {
		f.reconnectDelay = delay
	}
}

func NewFeed(url string, l *ledger.Ledger, opts ...feedOption) *Feed {
	f := &Feed{
		url:            url,
		ledger:         l,
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Run keeps the push channel alive until the context is canceled.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.consume(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Push channel closed, reconnecting", "error", err, "delay", f.reconnectDelay)
		}

		select {
		case <-ctx.Done():
			slog.Info("Push feed shutting down")

			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

// consume dials the endpoint and applies events until the connection
// breaks.
func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("Push channel connected", "url", f.url)

	// Unblock ReadJSON when the context is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var event push.Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}

		switch event.Type {
		case push.EventNewOrder, push.EventOrderUpdated:
			f.ledger.ApplyPushEvent(event)
		default:
			slog.Warn("Ignoring unknown push event", "type", event.Type)
		}
	}
}
