package replay

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/event"
	"lobengine/internal/matching"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

const sampleCSV = `ts,msg_type,order_id,side,price,qty
1.0,NEW,ask1,SELL,100,5
2.0,NEW,bid1,BUY,100,5
3.0,CANCEL,bid-nonexistent,,,
4.0,NEW,ask-malformed,SELL,notaprice,5
`

func TestRun_MatchesAndCounts(t *testing.T) {
	book := matching.NewOrderBook("BTCUSDT")
	engine := NewEngine(book, 0)

	stats, err := engine.Run(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NumTrades)
	assert.True(t, stats.HasPrices)
	assert.True(t, stats.TotalVolume.Equal(d("5")))
}

func TestRun_SkipsMalformedRows(t *testing.T) {
	book := matching.NewOrderBook("BTCUSDT")
	engine := NewEngine(book, 0)

	_, err := engine.Run(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	// The malformed NEW row (unparsable price) never reached the book.
	_, ok := book.GetOrder("ask-malformed")
	assert.False(t, ok)
}

func TestRun_SortsOutOfOrderRows(t *testing.T) {
	const unordered = `ts,msg_type,order_id,side,price,qty
5.0,NEW,second,SELL,100,1
1.0,NEW,first,SELL,99,1
`
	book := matching.NewOrderBook("BTCUSDT")
	engine := NewEngine(book, 0)
	var seenOrder []string
	engine.OnEvents = func(evts []event.Event) {
		for _, e := range evts {
			if e.Type == event.New {
				seenOrder = append(seenOrder, string(e.OrderID))
			}
		}
	}

	_, err := engine.Run(strings.NewReader(unordered))
	require.NoError(t, err)
	require.Len(t, seenOrder, 2)
	assert.Equal(t, "first", seenOrder[0])
	assert.Equal(t, "second", seenOrder[1])
}

func TestParseTimestamp_AcceptsFloatAndISO8601(t *testing.T) {
	assert.Equal(t, 1700000000.0, parseTimestamp("1700000000"))
	assert.Greater(t, parseTimestamp("2023-11-14T22:13:20Z"), 0.0)
	assert.Equal(t, 0.0, parseTimestamp("not-a-timestamp"))
}
