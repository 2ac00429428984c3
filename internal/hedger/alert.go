// Package hedger implements the per-key delta hedging control loop:
// poll aggregate exposure, compare to target, trade the difference.
package hedger

import (
	"time"

	"hedgerd/internal/gateway/broker"

	"github.com/google/uuid"
)

// AlertStatus is the lifecycle of one hedge order attempt.
type AlertStatus string

const (
	AlertPending AlertStatus = "PENDING"
	AlertFilled  AlertStatus = "FILLED"
	AlertFailed  AlertStatus = "FAILED"
	AlertError   AlertStatus = "ERROR"
)

// Alert records one hedge decision/order attempt. Terminal alerts are
// immutable; a PENDING alert transitions exactly once.
type Alert struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Key        string      `json:"key"`
	Instrument string      `json:"instrument"`
	Action     broker.Side `json:"action"`
	Quantity   int64       `json:"quantity"`
	OrderType  string      `json:"order_type"`
	Status     AlertStatus `json:"status"`
	FillPrice  float64     `json:"fill_price,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

func newAlert(key string, inst string, side broker.Side, qty int64) Alert {
	return Alert{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Key:        key,
		Instrument: inst,
		Action:     side,
		Quantity:   qty,
		OrderType:  "MKT",
		Status:     AlertPending,
	}
}

// Sink receives every alert state for durable storage or notification.
// Implementations must not block the hedge loop for long; failures are
// theirs to log.
type Sink interface {
	Record(alert Alert)
}
