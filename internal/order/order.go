// Package order defines the value types describing a request to buy or
// sell, and its lifecycle state, as it flows through the matching engine.
package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is one of BUY or SELL.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Type distinguishes resting LIMIT orders from immediately-swept MARKET orders.
type Type int

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

// TimeInForce controls what happens to any quantity left over once matching
// against the book completes.
type TimeInForce int

const (
	// GTC rests any residual quantity in the book.
	GTC TimeInForce = iota
	// IOC cancels any residual quantity instead of resting it.
	IOC
	// FOK requires the order to fill completely or not at all.
	FOK
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// Flag is a bitmask of order admission policies.
type Flag uint8

const (
	None Flag = 0
	// PostOnly rejects the order at admission if it would execute as a taker.
	PostOnly Flag = 1 << 0
	// STP (self-trade prevention) skips makers sharing the taker's ClientID.
	STP Flag = 1 << 1
)

// ID is the opaque, caller-supplied order identifier. The core treats it as
// an opaque comparable token; callers may use either a UUID string or a
// short numeric-as-string form.
type ID = string

// Order is a value record describing a buy/sell request and its remaining
// lifecycle state. Once Remaining reaches zero the order is no longer
// addressable by ID (removed from the book's index).
type Order struct {
	OrderID       ID
	ClientID      string // empty means "no self-trade prevention group"
	Side          Side
	Type          Type
	Price         decimal.Decimal // zero-value Price with HasPrice=false means "absent"
	HasPrice      bool
	Quantity      decimal.Decimal // original size, constant after admission
	Remaining     decimal.Decimal // 0 <= Remaining <= Quantity
	TimeInForce   TimeInForce
	Flags         Flag
	Timestamp     float64 // caller-supplied monotonic time-priority key
	UserData      map[string]string
}

// HasFlag reports whether f is set on the order's flag bitmask.
func (o *Order) HasFlag(f Flag) bool {
	return o.Flags&f != 0
}

// IsDone reports whether the order has nothing left to fill.
func (o *Order) IsDone() bool {
	return o.Remaining.Sign() <= 0
}

func (o Order) String() string {
	price := "none"
	if o.HasPrice {
		price = o.Price.String()
	}
	return fmt.Sprintf(
		"Order(id=%s, side=%s, type=%s, price=%s, qty=%s/%s, tif=%s)",
		o.OrderID, o.Side, o.Type, price, o.Remaining, o.Quantity, o.TimeInForce,
	)
}
