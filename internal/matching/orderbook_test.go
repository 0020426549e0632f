package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/event"
	"lobengine/internal/order"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func limitOrder(id order.ID, side order.Side, price, qty string) *order.Order {
	return &order.Order{
		OrderID:     id,
		Side:        side,
		Type:        order.Limit,
		Price:       d(price),
		HasPrice:    true,
		Quantity:    d(qty),
		Remaining:   d(qty),
		TimeInForce: order.GTC,
	}
}

func eventTypes(events []event.Event) []event.Type {
	types := make([]event.Type, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestAddOrder_RestsWhenNoCross(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	events := book.AddOrder(limitOrder("b1", order.Buy, "100", "5"))
	assert.Equal(t, []event.Type{event.New}, eventTypes(events))

	price, size, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, price.Equal(d("100")))
	assert.True(t, size.Equal(d("5")))
}

func TestAddOrder_BasicMatch(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "5"))

	events := book.AddOrder(limitOrder("bid1", order.Buy, "100", "5"))
	assert.Equal(t, []event.Type{event.Trade, event.Done, event.Done}, eventTypes(events))

	trade := events[0]
	assert.True(t, trade.Price.Equal(d("100")))
	assert.True(t, trade.Quantity.Equal(d("5")))
	assert.Equal(t, order.ID("bid1"), trade.OrderID)
	assert.Equal(t, order.ID("ask1"), trade.MatchedOrderID)

	_, _, ok := book.BestBid()
	assert.False(t, ok)
	_, _, ok = book.BestAsk()
	assert.False(t, ok)
}

func TestAddOrder_PricePriority(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask-high", order.Sell, "101", "5"))
	book.AddOrder(limitOrder("ask-low", order.Sell, "100", "5"))

	events := book.AddOrder(limitOrder("bid1", order.Buy, "101", "5"))
	trades := filterTradesForTest(events)
	require.Len(t, trades, 1)
	assert.Equal(t, order.ID("ask-low"), trades[0].MatchedOrderID)
}

func TestAddOrder_TimePriorityFIFO(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask-first", order.Sell, "100", "5"))
	book.AddOrder(limitOrder("ask-second", order.Sell, "100", "5"))

	events := book.AddOrder(limitOrder("bid1", order.Buy, "100", "5"))
	trades := filterTradesForTest(events)
	require.Len(t, trades, 1)
	assert.Equal(t, order.ID("ask-first"), trades[0].MatchedOrderID)
}

func TestAddOrder_PartialFillRestsResidual(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "3"))

	events := book.AddOrder(limitOrder("bid1", order.Buy, "100", "5"))
	assert.Equal(t, []event.Type{event.Trade, event.Done, event.New}, eventTypes(events))

	price, size, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, price.Equal(d("100")))
	assert.True(t, size.Equal(d("2")))
}

func TestCancelOrder(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("bid1", order.Buy, "100", "5"))

	events := book.CancelOrder("bid1")
	assert.Equal(t, []event.Type{event.Cancel}, eventTypes(events))

	_, _, ok := book.BestBid()
	assert.False(t, ok)
}

func TestCancelOrder_NotFound(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	events := book.CancelOrder("nope")
	require.Len(t, events, 1)
	assert.Equal(t, event.Reject, events[0].Type)
	assert.Equal(t, event.ReasonOrderNotFound, events[0].Reason)
}

func TestPostOnly_RejectsWhenWouldCross(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "5"))

	bid := limitOrder("bid1", order.Buy, "101", "5")
	bid.Flags = order.PostOnly
	events := book.AddOrder(bid)
	require.Len(t, events, 1)
	assert.Equal(t, event.Reject, events[0].Type)
	assert.Equal(t, event.ReasonPostOnlyWouldMatch, events[0].Reason)
}

func TestPostOnly_AcceptsWhenNoCross(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "5"))

	bid := limitOrder("bid1", order.Buy, "99", "5")
	bid.Flags = order.PostOnly
	events := book.AddOrder(bid)
	assert.Equal(t, []event.Type{event.New}, eventTypes(events))
}

func TestIOC_PartialFillCancelsResidual(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "3"))

	bid := limitOrder("bid1", order.Buy, "100", "5")
	bid.TimeInForce = order.IOC
	events := book.AddOrder(bid)
	assert.Equal(t, []event.Type{event.Trade, event.Done, event.Cancel}, eventTypes(events))
	assert.Equal(t, event.ReasonIOCRemaining, events[2].Reason)
}

func TestIOC_NoMatchCancels(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	bid := limitOrder("bid1", order.Buy, "100", "5")
	bid.TimeInForce = order.IOC
	events := book.AddOrder(bid)
	assert.Equal(t, []event.Type{event.Cancel}, eventTypes(events))
	assert.Equal(t, event.ReasonIOCNoMatch, events[0].Reason)
}

func TestFOK_RejectsWhenInsufficientLiquidity(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "3"))

	bid := limitOrder("bid1", order.Buy, "100", "5")
	bid.TimeInForce = order.FOK
	events := book.AddOrder(bid)
	assert.Equal(t, []event.Type{event.Reject}, eventTypes(events))
	assert.Equal(t, event.ReasonFOKNotFilled, events[0].Reason)

	// Nothing should have traded: the resting ask is untouched.
	price, size, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, price.Equal(d("100")))
	assert.True(t, size.Equal(d("3")))
}

func TestFOK_FillsCompletely(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("ask1", order.Sell, "100", "5"))

	bid := limitOrder("bid1", order.Buy, "100", "5")
	bid.TimeInForce = order.FOK
	events := book.AddOrder(bid)
	assert.Equal(t, []event.Type{event.Trade, event.Done, event.Done}, eventTypes(events))
}

func TestSTP_SkipsSameClientMakerWithoutReinsertion(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	ask := limitOrder("ask1", order.Sell, "100", "5")
	ask.ClientID = "alice"
	book.AddOrder(ask)

	bid := limitOrder("bid1", order.Buy, "100", "5")
	bid.ClientID = "alice"
	bid.Flags = order.STP
	events := book.AddOrder(bid)

	// The maker is skipped (no trade), and since nothing else is resting
	// the taker rests as a fresh bid; the skipped maker is gone for good.
	assert.Equal(t, []event.Type{event.New}, eventTypes(events))
	_, _, ok := book.BestAsk()
	assert.False(t, ok)
	_, ok = book.GetOrder("ask1")
	assert.False(t, ok)
}

func TestMarketOrder_NeverRests(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	market := &order.Order{
		OrderID:     "m1",
		Side:        order.Buy,
		Type:        order.Market,
		Quantity:    d("5"),
		Remaining:   d("5"),
		TimeInForce: order.GTC,
	}
	events := book.AddOrder(market)
	assert.Equal(t, []event.Type{event.Cancel}, eventTypes(events))
	assert.Equal(t, event.ReasonIOCNoMatch, events[0].Reason)

	_, ok := book.GetOrder("m1")
	assert.False(t, ok)
}

func TestGetDepth(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.AddOrder(limitOrder("b1", order.Buy, "99", "5"))
	book.AddOrder(limitOrder("b2", order.Buy, "98", "5"))
	book.AddOrder(limitOrder("a1", order.Sell, "100", "5"))

	depth := book.GetDepth(10)
	require.Len(t, depth.Bids, 2)
	assert.True(t, depth.Bids[0].Price.Equal(d("99")))
	require.Len(t, depth.Asks, 1)
}

func filterTradesForTest(events []event.Event) []event.Event {
	var trades []event.Event
	for _, e := range events {
		if e.Type == event.Trade {
			trades = append(trades, e)
		}
	}
	return trades
}
