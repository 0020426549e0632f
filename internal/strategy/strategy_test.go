package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/event"
	"lobengine/internal/order"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestTWAP_SlicesOnBoundaryCrossing(t *testing.T) {
	twap := NewTWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 5)

	o := twap.OnMarketData(10, dec("50"), true, nil)
	require.Len(t, o, 1)
	assert.True(t, o[0].Quantity.Sign() > 0)
	assert.Equal(t, order.IOC, o[0].TimeInForce)

	// Before the next slice boundary, no new child order is emitted.
	assert.Nil(t, twap.OnMarketData(11, dec("50"), true, nil))
}

func TestTWAP_NoOrderOutsideWindow(t *testing.T) {
	twap := NewTWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 5)
	assert.Nil(t, twap.OnMarketData(200, dec("50"), true, nil))
}

func TestTWAP_PriceBelowMidForBuy(t *testing.T) {
	twap := NewTWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 100)
	o := twap.OnMarketData(10, dec("50"), true, nil)
	require.Len(t, o, 1)
	assert.True(t, o[0].Price.LessThan(dec("50")))
}

func TestTWAP_OnFillUpdatesProgress(t *testing.T) {
	twap := NewTWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 5)
	o := twap.OnMarketData(10, dec("50"), true, nil)
	require.Len(t, o, 1)

	twap.OnFill([]event.Event{event.NewTradeEvent(o[0].OrderID, "maker", dec("50"), dec("10"), 0)})
	assert.True(t, twap.ExecutedQuantity().Equal(dec("10")))
	assert.InDelta(t, 0.1, twap.Progress(), 0.001)
}

func TestVWAP_BehindSchedule(t *testing.T) {
	vwap := NewVWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 100)
	// No fills yet at ts=50: expected progress 0.5, actual 0 -> behind.
	assert.True(t, vwap.behindSchedule(50))
}

func TestVWAP_OnSchedule(t *testing.T) {
	vwap := NewVWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 100)
	vwap.executedQuantity = dec("60")
	// Executed 60% by the halfway mark, ahead of the 50% expected -> not behind.
	assert.False(t, vwap.behindSchedule(50))
}

func TestVWAP_HalvesSpreadWhenBehindSchedule(t *testing.T) {
	vwap := NewVWAP(order.Buy, dec("100"), 0, 100, "BTCUSDT", 10, 100)
	orders := vwap.OnMarketData(50, dec("50"), true, nil)
	require.Len(t, orders, 1)
	// 100 bps halved to 50 bps: 50 * (1 - 0.005).
	assert.True(t, orders[0].Price.Equal(dec("49.75")))
}

func TestMarketMaker_QuotesBothSides(t *testing.T) {
	mm := NewMarketMaker(0, 1000, "BTCUSDT", 10, dec("1"), dec("10"), 0.5)
	orders := mm.OnMarketData(0, dec("100"), true, nil)
	require.Len(t, orders, 2)

	var sawBuy, sawSell bool
	for _, o := range orders {
		assert.Equal(t, order.PostOnly, o.Flags&order.PostOnly)
		if o.Side == order.Buy {
			sawBuy = true
			assert.True(t, o.Price.LessThan(dec("100")))
		} else {
			sawSell = true
			assert.True(t, o.Price.GreaterThan(dec("100")))
		}
	}
	assert.True(t, sawBuy)
	assert.True(t, sawSell)
}

func TestMarketMaker_NeverDone(t *testing.T) {
	mm := NewMarketMaker(0, 1000, "BTCUSDT", 10, dec("1"), dec("10"), 0.5)
	mm.OnMarketData(0, dec("100"), true, nil)
	assert.False(t, mm.IsDone())
}

func TestMarketMaker_TracksInventoryAndTradeCount(t *testing.T) {
	mm := NewMarketMaker(0, 1000, "BTCUSDT", 10, dec("1"), dec("10"), 0.5)
	orders := mm.OnMarketData(0, dec("100"), true, nil)
	require.Len(t, orders, 2)

	var bidID order.ID
	for _, o := range orders {
		if o.Side == order.Buy {
			bidID = o.OrderID
		}
	}
	require.NotEmpty(t, bidID)

	mm.OnFill([]event.Event{event.NewTradeEvent(bidID, "maker", dec("99"), dec("1"), 0)})
	assert.True(t, mm.inventory.Equal(dec("1")))
	assert.Equal(t, 1, mm.NumTrades())
}
