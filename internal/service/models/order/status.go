package order

import (
	"database/sql/driver"
	"errors"
)

// Status is the lifecycle state of an order. Orders only ever move
// from pending to completed, never back.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

var ErrInvalidStatus = errors.New("invalid order status")

func (s Status) String() string {
	return string(s)
}

func (s Status) Value() (driver.Value, error) {
	return s.String(), nil
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next == StatusCompleted
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case StatusPending.String():
		return StatusPending, nil
	case StatusCompleted.String():
		return StatusCompleted, nil
	default:
		return "", ErrInvalidStatus
	}
}
