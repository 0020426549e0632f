// Package strategy implements execution strategies that close the loop on
// a matching.OrderBook: each consumes book snapshots and fill
// notifications and emits child orders of its own.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lobengine/internal/event"
	"lobengine/internal/matching"
	"lobengine/internal/order"
)

// Strategy is the capability set every execution strategy implements.
// Modeled as an interface over a closed set of variants (TWAP, VWAP,
// MarketMaker) rather than a tagged union, since Go has no sum types.
type Strategy interface {
	Name() string
	OnMarketData(ts float64, midPrice decimal.Decimal, hasMid bool, book *matching.OrderBook) []*order.Order
	OnFill(events []event.Event)
	IsDone() bool
	Progress() float64
	Side() order.Side
	AvgFillPrice() (decimal.Decimal, bool)
	ExecutedQuantity() decimal.Decimal
	NumTrades() int
	StartEnd() (float64, float64)
}

// base carries the bookkeeping common to every strategy: fill accounting
// and the strategy's own open-order index. Embedded by value so each
// concrete strategy shares the same on_fill accumulation logic.
type base struct {
	name           string
	side           order.Side
	totalQuantity  decimal.Decimal
	startTS        float64
	endTS          float64
	symbol         string

	executedQuantity decimal.Decimal
	avgFillPrice     decimal.Decimal
	hasAvgFillPrice  bool
	totalCost        decimal.Decimal
	numTrades        int
	openOrders       map[order.ID]*order.Order
}

func newBase(name string, side order.Side, totalQuantity decimal.Decimal, startTS, endTS float64, symbol string) base {
	return base{
		name:             name,
		side:             side,
		totalQuantity:    totalQuantity,
		startTS:          startTS,
		endTS:            endTS,
		symbol:           symbol,
		executedQuantity: decimal.Zero,
		totalCost:        decimal.Zero,
		openOrders:       make(map[order.ID]*order.Order),
	}
}

func (b *base) Name() string { return b.name }

// recordFill applies a TRADE event to the running fill accounting, for
// orders the strategy recognizes as its own. Returns the order it updated,
// or nil if the event did not belong to this strategy.
func (b *base) recordFill(e event.Event) *order.Order {
	if e.Type != event.Trade {
		return nil
	}
	o, ok := b.openOrders[e.OrderID]
	if !ok {
		return nil
	}

	b.executedQuantity = b.executedQuantity.Add(e.Quantity)
	b.totalCost = b.totalCost.Add(e.Price.Mul(e.Quantity))
	b.numTrades++
	if b.executedQuantity.Sign() > 0 {
		b.avgFillPrice = b.totalCost.Div(b.executedQuantity)
		b.hasAvgFillPrice = true
	}

	o.Remaining = o.Remaining.Sub(e.Quantity)
	if o.Remaining.Sign() <= 0 {
		delete(b.openOrders, e.OrderID)
	}
	return o
}

func (b *base) OnFill(events []event.Event) {
	for _, e := range events {
		b.recordFill(e)
	}
}

func (b *base) IsDone() bool {
	return b.executedQuantity.GreaterThanOrEqual(b.totalQuantity)
}

func (b *base) Progress() float64 {
	if b.totalQuantity.Sign() == 0 {
		return 1.0
	}
	ratio, _ := b.executedQuantity.Div(b.totalQuantity).Float64()
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}

// AvgFillPrice returns the volume-weighted average fill price seen so far,
// or ok=false if nothing has filled yet.
func (b *base) AvgFillPrice() (decimal.Decimal, bool) {
	return b.avgFillPrice, b.hasAvgFillPrice
}

// Side reports which side of the market the strategy is executing.
func (b *base) Side() order.Side { return b.side }

// ExecutedQuantity reports cumulative filled quantity.
func (b *base) ExecutedQuantity() decimal.Decimal { return b.executedQuantity }

// NumTrades reports how many TRADE events the strategy has recorded.
func (b *base) NumTrades() int { return b.numTrades }

// StartEnd returns the strategy's execution window.
func (b *base) StartEnd() (float64, float64) { return b.startTS, b.endTS }

func spreadMultiplier(side order.Side, mid decimal.Decimal, spreadFactor decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == order.Buy {
		return mid.Mul(one.Sub(spreadFactor))
	}
	return mid.Mul(one.Add(spreadFactor))
}

func bps(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Div(decimal.NewFromInt(10000))
}

func childOrderID(name, symbol string, ts float64, slice int) order.ID {
	return fmt.Sprintf("%s-%s-%v-%d", name, symbol, ts, slice)
}

func clientID(name string) string {
	return "strategy-" + name
}
