// Package broker defines the abstraction over the brokerage session the
// hedging core depends on. Implementations own transport, retries and
// session state; the core only sees typed requests and responses.
package broker

import (
	"context"
	"errors"

	"hedgerd/internal/instrument"
	"hedgerd/internal/market"
)

// ErrOperation wraps broker roundtrip failures (order submit, position
// fetch). The hedge loop records these per cycle and keeps running.
var ErrOperation = errors.New("broker operation failed")

// Side is an order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus is the broker's order state vocabulary.
type OrderStatus string

const (
	StatusSubmitted     OrderStatus = "Submitted"
	StatusPreSubmitted  OrderStatus = "PreSubmitted"
	StatusPendingSubmit OrderStatus = "PendingSubmit"
	StatusFilled        OrderStatus = "Filled"
	StatusCancelled     OrderStatus = "Cancelled"
	StatusRejected      OrderStatus = "Rejected"
)

// Working reports whether an order in this status is still in flight.
// The hedge loop must not stack a new order on top of a working one.
func (s OrderStatus) Working() bool {
	switch s {
	case StatusSubmitted, StatusPreSubmitted, StatusPendingSubmit:
		return true
	}
	return false
}

// Position is one brokerage holding, re-fetched fresh every poll. The
// core never mutates it.
type Position struct {
	Instrument instrument.Instrument
	Quantity   int64 // signed, positive = long
	AvgCost    float64
}

// Greeks is a best-effort live snapshot for one contract. HasDelta
// distinguishes "delta is 0" from "venue sent nothing".
type Greeks struct {
	Delta    float64
	HasDelta bool
	Quote    market.Quote
}

// Order identifies one working or terminal order at the broker.
type Order struct {
	ID         string
	Instrument instrument.Instrument
	Side       Side
	Quantity   int64
	Status     OrderStatus
}

// OrderResult is the immediate response to an order submission.
type OrderResult struct {
	OrderID      string
	Status       OrderStatus
	AvgFillPrice float64
}

// Broker is the session boundary. Every method must honor ctx and
// return within a bounded time; callbacks that may never arrive are the
// implementation's problem to time out.
type Broker interface {
	// Positions returns fresh holdings matching a position key.
	Positions(ctx context.Context, key string) ([]Position, error)

	// ContractGreeks returns a best-effort live snapshot; partial or
	// empty data is not an error.
	ContractGreeks(ctx context.Context, inst instrument.Instrument) (Greeks, error)

	// PendingOrders returns in-flight orders for an instrument.
	PendingOrders(ctx context.Context, inst instrument.Instrument) ([]Order, error)

	// SubmitOrder places a market order.
	SubmitOrder(ctx context.Context, inst instrument.Instrument, side Side, quantity int64) (OrderResult, error)
}

// ChainProvider lists listed option parameters for an underlying, used
// by the IV calculator to pick the ATM straddle.
type ChainProvider interface {
	OptionChain(ctx context.Context, underlying string) (Chain, error)
}

// Chain is the listed strikes and expiries for one underlying.
type Chain struct {
	Underlying string
	Expiries   []string // YYYYMMDD, ascending
	Strikes    []float64
	Multiplier int
}
