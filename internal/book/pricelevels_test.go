package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/order"
)

func restingOrder(id order.ID, price, qty string) *order.Order {
	p, _ := decimal.NewFromString(price)
	q, _ := decimal.NewFromString(qty)
	return &order.Order{
		OrderID:   id,
		Price:     p,
		HasPrice:  true,
		Quantity:  q,
		Remaining: q,
	}
}

func TestBidLevels_OrderedHighestFirst(t *testing.T) {
	levels := NewBidLevels()
	levels.AddOrder(restingOrder("a", "99", "1"))
	levels.AddOrder(restingOrder("b", "101", "1"))
	levels.AddOrder(restingOrder("c", "100", "1"))

	best, ok := levels.Best()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(decimal.NewFromInt(101)))
}

func TestAskLevels_OrderedLowestFirst(t *testing.T) {
	levels := NewAskLevels()
	levels.AddOrder(restingOrder("a", "99", "1"))
	levels.AddOrder(restingOrder("b", "101", "1"))
	levels.AddOrder(restingOrder("c", "100", "1"))

	best, ok := levels.Best()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(decimal.NewFromInt(99)))
}

func TestAddOrder_FIFOWithinLevel(t *testing.T) {
	levels := NewBidLevels()
	first := restingOrder("first", "100", "1")
	second := restingOrder("second", "100", "1")
	levels.AddOrder(first)
	levels.AddOrder(second)

	best, ok := levels.Best()
	require.True(t, ok)
	require.Len(t, best.Orders, 2)
	assert.Equal(t, order.ID("first"), best.Orders[0].OrderID)
	assert.Equal(t, order.ID("second"), best.Orders[1].OrderID)
}

func TestRemoveOrder_DropsEmptyLevel(t *testing.T) {
	levels := NewBidLevels()
	o := restingOrder("a", "100", "1")
	levels.AddOrder(o)

	ok := levels.RemoveOrder(decimal.NewFromInt(100), o)
	assert.True(t, ok)
	assert.Equal(t, 0, levels.Len())

	_, found := levels.Best()
	assert.False(t, found)
}

func TestRemoveOrder_MissingReturnsFalse(t *testing.T) {
	levels := NewBidLevels()
	o := restingOrder("a", "100", "1")
	assert.False(t, levels.RemoveOrder(decimal.NewFromInt(100), o))
}

func TestBestSize_AggregatesLevel(t *testing.T) {
	levels := NewBidLevels()
	levels.AddOrder(restingOrder("a", "100", "2"))
	levels.AddOrder(restingOrder("b", "100", "3"))

	assert.True(t, levels.BestSize().Equal(decimal.NewFromInt(5)))
}

func TestFillFront_PopsWhenExhausted(t *testing.T) {
	levels := NewBidLevels()
	levels.AddOrder(restingOrder("a", "100", "5"))

	head, popped, ok := levels.FillFront(decimal.NewFromInt(100), decimal.NewFromInt(5))
	require.True(t, ok)
	assert.True(t, popped)
	assert.Equal(t, order.ID("a"), head.OrderID)
	assert.Equal(t, 0, levels.Len())
}

func TestFillFront_PartialLeavesHeadInPlace(t *testing.T) {
	levels := NewBidLevels()
	levels.AddOrder(restingOrder("a", "100", "5"))

	_, popped, ok := levels.FillFront(decimal.NewFromInt(100), decimal.NewFromInt(2))
	require.True(t, ok)
	assert.False(t, popped)
	assert.True(t, levels.BestSize().Equal(decimal.NewFromInt(3)))
}

func TestDropFront_RemovesWithoutTrade(t *testing.T) {
	levels := NewBidLevels()
	levels.AddOrder(restingOrder("a", "100", "5"))
	levels.AddOrder(restingOrder("b", "100", "5"))

	dropped, ok := levels.DropFront(decimal.NewFromInt(100))
	require.True(t, ok)
	assert.Equal(t, order.ID("a"), dropped.OrderID)

	best, _ := levels.Best()
	require.Len(t, best.Orders, 1)
	assert.Equal(t, order.ID("b"), best.Orders[0].OrderID)
}

func TestScanLevels_StopsEarly(t *testing.T) {
	levels := NewAskLevels()
	levels.AddOrder(restingOrder("a", "100", "1"))
	levels.AddOrder(restingOrder("b", "101", "1"))
	levels.AddOrder(restingOrder("c", "102", "1"))

	var seen []decimal.Decimal
	levels.ScanLevels(func(price, size decimal.Decimal) bool {
		seen = append(seen, price)
		return price.LessThan(decimal.NewFromInt(101))
	})

	require.Len(t, seen, 2)
	assert.True(t, seen[1].Equal(decimal.NewFromInt(101)))
}

func TestLevels_ReturnsTopK(t *testing.T) {
	levels := NewBidLevels()
	levels.AddOrder(restingOrder("a", "100", "1"))
	levels.AddOrder(restingOrder("b", "99", "1"))
	levels.AddOrder(restingOrder("c", "98", "1"))

	top := levels.Levels(2)
	require.Len(t, top, 2)
	assert.True(t, top[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, top[1].Price.Equal(decimal.NewFromInt(99)))
}
