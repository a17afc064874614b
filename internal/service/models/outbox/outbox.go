package outbox

import (
	"time"
)

// Message is one pending event row in the transactional outbox. Rows are
// written in the same transaction as the order mutation they describe and
// published to RabbitMQ by the outbox worker.
type Message struct {
	ID           int64     `db:"id"`
	QueueName    string    `db:"queue_name"`
	ExchangeName string    `db:"exchange_name"`
	RoutingKey   string    `db:"routing_key"`
	Payload      []byte    `db:"payload"`
	ContentType  string    `db:"content_type"`
	RetryCount   int       `db:"retry_count"`
	MaxRetries   int       `db:"max_retries"`
	LastError    string    `db:"last_error"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	NextRetryAt  time.Time `db:"next_retry_at"`
}
