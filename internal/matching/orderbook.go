// Package matching implements the single-symbol limit order book: order
// admission, price-time-priority matching, cancel, amend, and depth
// queries. One OrderBook owns exactly one symbol and is safe for
// concurrent use; every mutating call holds a single coarse mutex so the
// order index and both sides of the book never observe a torn update.
package matching

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"lobengine/internal/book"
	"lobengine/internal/event"
	"lobengine/internal/order"
)

// Stats mirrors the book-level counters original_source/core.py keeps
// alongside the book, exposed for monitoring/logging, not for matching
// decisions.
type Stats struct {
	TotalOrders uint64
	TotalTrades uint64
	TotalVolume decimal.Decimal
	LastUpdate  time.Time
}

// OrderBook is the matching engine for a single symbol.
type OrderBook struct {
	Symbol string

	mu     sync.Mutex
	bids   *book.PriceLevels
	asks   *book.PriceLevels
	orders map[order.ID]*order.Order

	totalOrders uint64
	totalTrades uint64
	totalVolume decimal.Decimal
	lastUpdate  time.Time
}

// NewOrderBook constructs an empty book for symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   book.NewBidLevels(),
		asks:   book.NewAskLevels(),
		orders: make(map[order.ID]*order.Order),
	}
}

// AddOrder admits o, validating it, matching it against the book, and
// resting any unfilled residual per its time-in-force. It always returns
// at least one event and never returns a Go error: rejections are
// represented as REJECT events, per the engine's error-handling design.
func (ob *OrderBook) AddOrder(o *order.Order) []event.Event {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.addLocked(o)
}

// addLocked runs admission validation and matching with ob.mu already held.
// Factored out so AmendOrder's cancel-then-resubmit path can reuse it
// without attempting to re-acquire the mutex.
func (ob *OrderBook) addLocked(o *order.Order) []event.Event {
	if o.Quantity.Sign() <= 0 {
		return []event.Event{event.NewEvent(event.Reject, o.OrderID, event.ReasonInvalidQuantity, o.Timestamp)}
	}
	if o.Type == order.Limit && !o.HasPrice {
		return []event.Event{event.NewEvent(event.Reject, o.OrderID, event.ReasonLimitMustHavePrice, o.Timestamp)}
	}
	if o.Type == order.Limit && o.HasPrice && o.Price.Sign() <= 0 {
		return []event.Event{event.NewEvent(event.Reject, o.OrderID, event.ReasonInvalidPrice, o.Timestamp)}
	}

	var events []event.Event
	switch o.Type {
	case order.Market:
		events = ob.matchMarket(o)
	default:
		events = ob.matchLimit(o)
	}

	ob.totalOrders++
	for _, e := range events {
		if e.Type == event.Trade {
			ob.totalTrades++
			ob.totalVolume = ob.totalVolume.Add(e.Quantity)
		}
	}
	ob.lastUpdate = time.Now()
	log.Debug().Str("symbol", ob.Symbol).Str("order_id", o.OrderID).Int("events", len(events)).Msg("order admitted")
	return events
}

func (ob *OrderBook) matchLimit(o *order.Order) []event.Event {
	opposing := ob.asks
	if o.Side == order.Sell {
		opposing = ob.bids
	}

	if o.HasFlag(order.PostOnly) {
		if best, ok := opposing.Best(); ok && crosses(o, best.Price) {
			return []event.Event{event.NewEvent(event.Reject, o.OrderID, event.ReasonPostOnlyWouldMatch, o.Timestamp)}
		}
	}

	best, ok := opposing.Best()
	noCross := !ok || !crosses(o, best.Price)
	if noCross {
		return ob.restOrReject(o)
	}
	return ob.matchAgainstBook(o, opposing)
}

// restOrReject handles a limit order whose price does not cross the book
// at all: it either rests (GTC) or is cancelled/rejected per TIF.
func (ob *OrderBook) restOrReject(o *order.Order) []event.Event {
	switch o.TimeInForce {
	case order.GTC:
		ob.rest(o)
		return []event.Event{event.NewEvent(event.New, o.OrderID, "", o.Timestamp)}
	case order.IOC:
		return []event.Event{event.NewEvent(event.Cancel, o.OrderID, event.ReasonIOCNoMatch, o.Timestamp)}
	default: // FOK
		return []event.Event{event.NewEvent(event.Reject, o.OrderID, event.ReasonFOKNotFilled, o.Timestamp)}
	}
}

func crosses(o *order.Order, opposingPrice decimal.Decimal) bool {
	if o.Side == order.Buy {
		return o.Price.GreaterThanOrEqual(opposingPrice)
	}
	return o.Price.LessThanOrEqual(opposingPrice)
}

func (ob *OrderBook) matchMarket(o *order.Order) []event.Event {
	if o.Side == order.Buy {
		return ob.matchAgainstBook(o, ob.asks)
	}
	return ob.matchAgainstBook(o, ob.bids)
}

// matchAgainstBook walks makerSide head-first, consuming liquidity for the
// taker. For FOK it first checks, without mutating anything, whether total
// available liquidity up to the taker's limit (if any) covers the full
// remaining quantity; that dry run does not honor self-trade prevention.
func (ob *OrderBook) matchAgainstBook(taker *order.Order, makerSide *book.PriceLevels) []event.Event {
	var events []event.Event
	isFOK := taker.TimeInForce == order.FOK

	if isFOK {
		available := decimal.Zero
		makerSide.ScanLevels(func(price, size decimal.Decimal) bool {
			if taker.Type == order.Limit && taker.HasPrice && !withinLimit(taker, price) {
				return false
			}
			available = available.Add(size)
			return available.LessThan(taker.Remaining)
		})
		if available.LessThan(taker.Remaining) {
			return []event.Event{event.NewEvent(event.Reject, taker.OrderID, event.ReasonFOKNotFilled, taker.Timestamp)}
		}
	}

	for taker.Remaining.Sign() > 0 {
		best, ok := makerSide.Best()
		if !ok {
			break
		}
		if taker.Type == order.Limit && taker.HasPrice && !withinLimit(taker, best.Price) {
			break
		}

		for taker.Remaining.Sign() > 0 {
			head, hasHead := peekFront(best)
			if !hasHead {
				break
			}

			if taker.HasFlag(order.STP) && taker.ClientID != "" && head.ClientID == taker.ClientID {
				makerSide.DropFront(best.Price)
				delete(ob.orders, head.OrderID)
				continue
			}

			fillQty := decimal.Min(taker.Remaining, head.Remaining)
			events = append(events, event.NewTradeEvent(taker.OrderID, head.OrderID, best.Price, fillQty, taker.Timestamp))

			_, popped, _ := makerSide.FillFront(best.Price, fillQty)
			taker.Remaining = taker.Remaining.Sub(fillQty)

			if popped {
				delete(ob.orders, head.OrderID)
				events = append(events, event.NewEvent(event.Done, head.OrderID, "", taker.Timestamp))
			}
		}
	}

	events = append(events, ob.handleResidual(taker)...)
	return events
}

// peekFront reports the live head-of-queue order at a level, re-reading it
// fresh each time since a previous iteration may have popped it.
func peekFront(level *book.PriceLevel) (*order.Order, bool) {
	if len(level.Orders) == 0 {
		return nil, false
	}
	return level.Orders[0], true
}

func withinLimit(taker *order.Order, makerPrice decimal.Decimal) bool {
	if taker.Side == order.Buy {
		return taker.Price.GreaterThanOrEqual(makerPrice)
	}
	return taker.Price.LessThanOrEqual(makerPrice)
}

// handleResidual disposes of whatever quantity is left on the taker once
// the matching sweep has stopped, per its time-in-force, and always emits
// a trailing DONE if nothing is left.
func (ob *OrderBook) handleResidual(taker *order.Order) []event.Event {
	var events []event.Event

	if taker.Remaining.Sign() > 0 {
		switch {
		case taker.Type == order.Market:
			// A market order never rests, whatever time-in-force it carries.
			reason := event.ReasonIOCRemaining
			if taker.Remaining.Equal(taker.Quantity) {
				reason = event.ReasonIOCNoMatch
			}
			events = append(events, event.NewEvent(event.Cancel, taker.OrderID, reason, taker.Timestamp))
			return events
		case taker.TimeInForce == order.GTC:
			ob.rest(taker)
			events = append(events, event.NewEvent(event.New, taker.OrderID, "", taker.Timestamp))
			return events
		case taker.TimeInForce == order.IOC:
			events = append(events, event.NewEvent(event.Cancel, taker.OrderID, event.ReasonIOCRemaining, taker.Timestamp))
		case taker.TimeInForce == order.FOK:
			events = append(events, event.NewEvent(event.Reject, taker.OrderID, event.ReasonFOKNotFilled, taker.Timestamp))
		}
	}

	if taker.IsDone() {
		events = append(events, event.NewEvent(event.Done, taker.OrderID, "", taker.Timestamp))
	}
	return events
}

func (ob *OrderBook) rest(o *order.Order) {
	if o.Side == order.Buy {
		ob.bids.AddOrder(o)
	} else {
		ob.asks.AddOrder(o)
	}
	ob.orders[o.OrderID] = o
}

// CancelOrder removes a resting order from the book by ID.
func (ob *OrderBook) CancelOrder(id order.ID) []event.Event {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.cancelLocked(id)
}

func (ob *OrderBook) cancelLocked(id order.ID) []event.Event {
	o, ok := ob.orders[id]
	if !ok {
		return []event.Event{event.NewEvent(event.Reject, id, event.ReasonOrderNotFound, 0)}
	}

	if !o.HasPrice {
		delete(ob.orders, id)
		return []event.Event{event.NewEvent(event.Cancel, id, event.ReasonMarketOrderCancel, 0)}
	}

	side := ob.bids
	if o.Side == order.Sell {
		side = ob.asks
	}

	if !side.RemoveOrder(o.Price, o) {
		return []event.Event{event.NewEvent(event.Reject, id, event.ReasonOrderNotFoundInBook, 0)}
	}
	delete(ob.orders, id)
	return []event.Event{event.NewEvent(event.Cancel, id, "", 0)}
}

// AmendOrder changes a resting order's price and/or quantity. A pure
// quantity decrease is applied in place; any other change is implemented
// as a cancel followed by a fresh admission under the same order ID,
// matching original_source/core.py's amend_order contract.
func (ob *OrderBook) AmendOrder(id order.ID, newPrice decimal.Decimal, hasNewPrice bool, newQuantity decimal.Decimal, hasNewQuantity bool) []event.Event {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.orders[id]
	if !ok {
		return []event.Event{event.NewEvent(event.Reject, id, event.ReasonOrderNotFound, 0)}
	}

	if !hasNewPrice && hasNewQuantity && newQuantity.LessThan(o.Remaining) {
		o.Remaining = newQuantity
		amend := event.NewAmendEvent(id, newQuantity, o.Timestamp)
		amend.Price, amend.HasPrice = o.Price, o.HasPrice
		return []event.Event{amend}
	}

	events := ob.cancelLocked(id)

	price := o.Price
	if hasNewPrice {
		price = newPrice
	}
	quantity := o.Quantity
	if hasNewQuantity {
		quantity = newQuantity
	}

	replacement := &order.Order{
		OrderID:     id,
		ClientID:    o.ClientID,
		Side:        o.Side,
		Type:        o.Type,
		Price:       price,
		HasPrice:    o.HasPrice,
		Quantity:    quantity,
		Remaining:   quantity,
		TimeInForce: o.TimeInForce,
		Flags:       o.Flags,
		Timestamp:   o.Timestamp,
		UserData:    o.UserData,
	}

	return append(events, ob.addLocked(replacement)...)
}

// BestBid returns the best bid (price, aggregate size), or ok=false if the
// bid side is empty.
func (ob *OrderBook) BestBid() (price, size decimal.Decimal, ok bool) {
	level, found := ob.bids.Best()
	if !found {
		return decimal.Zero, decimal.Zero, false
	}
	return level.Price, ob.bids.BestSize(), true
}

// BestAsk returns the best ask (price, aggregate size), or ok=false if the
// ask side is empty.
func (ob *OrderBook) BestAsk() (price, size decimal.Decimal, ok bool) {
	level, found := ob.asks.Best()
	if !found {
		return decimal.Zero, decimal.Zero, false
	}
	return level.Price, ob.asks.BestSize(), true
}

// MidPrice returns the average of the best bid and ask, or ok=false if
// either side is empty.
func (ob *OrderBook) MidPrice() (mid decimal.Decimal, ok bool) {
	bidPrice, _, bidOK := ob.BestBid()
	askPrice, _, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return decimal.Zero, false
	}
	two := decimal.NewFromInt(2)
	return bidPrice.Add(askPrice).Div(two), true
}

// Depth is a snapshot of the top levels on both sides.
type Depth struct {
	Bids []book.Level
	Asks []book.Level
}

// GetDepth returns the top n levels on each side.
func (ob *OrderBook) GetDepth(n int) Depth {
	return Depth{Bids: ob.bids.Levels(n), Asks: ob.asks.Levels(n)}
}

// GetOrder returns the resting order with the given ID, if any.
func (ob *OrderBook) GetOrder(id order.ID) (*order.Order, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	o, ok := ob.orders[id]
	return o, ok
}

// GetStats returns a snapshot of the book's running counters.
func (ob *OrderBook) GetStats() Stats {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return Stats{
		TotalOrders: ob.totalOrders,
		TotalTrades: ob.totalTrades,
		TotalVolume: ob.totalVolume,
		LastUpdate:  ob.lastUpdate,
	}
}
