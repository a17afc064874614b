package push

import "github.com/restboard/restboard/internal/service/models/order"

// EventType tags a push-channel message.
type EventType string

const (
	EventNewOrder     EventType = "NEW_ORDER"
	EventOrderUpdated EventType = "ORDER_UPDATED"
)

// Event is the message envelope carried over the push channel.
type Event struct {
	Type  EventType   `json:"type"`
	Order order.Order `json:"order"`
}
