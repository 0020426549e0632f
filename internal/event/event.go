// Package event defines the canonical, append-only event model produced by
// the matching engine on every admission, cancel, amend, or match.
package event

import (
	"fmt"

	"github.com/shopspring/decimal"
	"lobengine/internal/order"
)

// Type enumerates the kinds of events the matching core can emit.
type Type int

const (
	New Type = iota
	Trade
	Cancel
	Done
	Reject
	Amend
)

func (t Type) String() string {
	switch t {
	case New:
		return "NEW"
	case Trade:
		return "TRADE"
	case Cancel:
		return "CANCEL"
	case Done:
		return "DONE"
	case Reject:
		return "REJECT"
	case Amend:
		return "AMEND"
	default:
		return "UNKNOWN"
	}
}

// Reason codes emitted on REJECT/CANCEL events. Kept as typed constants so
// call sites get compile-time checking while the wire value stays the exact
// string named by the spec.
type Reason string

const (
	ReasonInvalidQuantity        Reason = "INVALID_QUANTITY"
	ReasonInvalidPrice           Reason = "INVALID_PRICE"
	ReasonLimitMustHavePrice     Reason = "LIMIT_ORDER_MUST_HAVE_PRICE"
	ReasonPostOnlyWouldMatch     Reason = "POST_ONLY_WOULD_MATCH"
	ReasonIOCNoMatch             Reason = "IOC_NO_MATCH"
	ReasonIOCRemaining           Reason = "IOC_REMAINING"
	ReasonFOKNotFilled           Reason = "FOK_NOT_FILLED"
	ReasonOrderNotFound          Reason = "ORDER_NOT_FOUND"
	ReasonOrderNotFoundInBook    Reason = "ORDER_NOT_FOUND_IN_BOOK"
	ReasonMarketOrderCancel      Reason = "MARKET_ORDER_CANCEL"
)

// Event is an immutable record of a single state transition. Events are
// never mutated after emission; a matching call returns them as an owned
// slice in emission order.
type Event struct {
	Type            Type
	OrderID         order.ID
	MatchedOrderID  order.ID // TRADE only
	Price           decimal.Decimal
	HasPrice        bool // TRADE/AMEND
	Quantity        decimal.Decimal
	HasQuantity     bool // TRADE/AMEND
	Reason          Reason
	Timestamp       float64
}

func (e Event) String() string {
	s := fmt.Sprintf("Event(type=%s", e.Type)
	if e.OrderID != "" {
		s += fmt.Sprintf(", order_id=%s", e.OrderID)
	}
	if e.MatchedOrderID != "" {
		s += fmt.Sprintf(", matched_order_id=%s", e.MatchedOrderID)
	}
	if e.HasPrice {
		s += fmt.Sprintf(", price=%s", e.Price)
	}
	if e.HasQuantity {
		s += fmt.Sprintf(", qty=%s", e.Quantity)
	}
	if e.Reason != "" {
		s += fmt.Sprintf(", reason=%s", e.Reason)
	}
	return s + ")"
}

// NewEvent constructs a bare NEW/CANCEL/REJECT/DONE event with no price/quantity.
func NewEvent(typ Type, orderID order.ID, reason Reason, ts float64) Event {
	return Event{Type: typ, OrderID: orderID, Reason: reason, Timestamp: ts}
}

// NewTradeEvent constructs a TRADE event.
func NewTradeEvent(takerID, makerID order.ID, price, qty decimal.Decimal, ts float64) Event {
	return Event{
		Type:           Trade,
		OrderID:        takerID,
		MatchedOrderID: makerID,
		Price:          price,
		HasPrice:       true,
		Quantity:       qty,
		HasQuantity:    true,
		Timestamp:      ts,
	}
}

// NewAmendEvent constructs an AMEND event carrying the new quantity.
func NewAmendEvent(orderID order.ID, qty decimal.Decimal, ts float64) Event {
	return Event{
		Type:        Amend,
		OrderID:     orderID,
		Quantity:    qty,
		HasQuantity: true,
		Timestamp:   ts,
	}
}
