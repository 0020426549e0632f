package backtest

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/matching"
	"lobengine/internal/order"
	"lobengine/internal/strategy"
)

const feed = `ts,msg_type,order_id,side,price,qty
0,NEW,ask1,SELL,101,50
0,NEW,bid1,BUY,99,50
10,NEW,ask2,SELL,101,50
20,NEW,ask3,SELL,100,50
`

func writeFeed(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/feed.csv"
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o644))
	return path
}

func TestRunWithReplay_TWAPRunsAgainstFeed(t *testing.T) {
	path := writeFeed(t)

	book := matching.NewOrderBook("BTCUSDT")
	s := strategy.NewTWAP(order.Buy, decimal.NewFromInt(20), 0, 30, "BTCUSDT", 3, 50)
	engine := NewEngine(book, s)

	result, err := engine.RunWithReplay(path, 0)
	require.NoError(t, err)

	assert.Equal(t, "TWAP", result.StrategyName)
	assert.True(t, result.FilledQuantity.Sign() >= 0)
}

func TestRunWithReplay_MarketMakerReportsPnL(t *testing.T) {
	path := writeFeed(t)

	book := matching.NewOrderBook("BTCUSDT")
	s := strategy.NewMarketMaker(0, 30, "BTCUSDT", 10, decimal.NewFromInt(5), decimal.NewFromInt(50), 0.5)
	engine := NewEngine(book, s)

	result, err := engine.RunWithReplay(path, 0)
	require.NoError(t, err)

	assert.Equal(t, "MarketMaker", result.StrategyName)
	assert.True(t, result.HasPnL)
}

func TestFilterTrades_OnlyKeepsTradeEvents(t *testing.T) {
	book := matching.NewOrderBook("BTCUSDT")
	o := &order.Order{
		OrderID: "a", Side: order.Buy, Type: order.Limit,
		Price: decimal.NewFromInt(100), HasPrice: true,
		Quantity: decimal.NewFromInt(1), Remaining: decimal.NewFromInt(1),
		TimeInForce: order.GTC,
	}
	events := book.AddOrder(o)
	trades := filterTrades(events)
	assert.Empty(t, trades) // resting order, no trade yet
}

func TestMean_AveragesValues(t *testing.T) {
	values := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)}
	assert.True(t, mean(values).Equal(decimal.NewFromInt(2)))
}
