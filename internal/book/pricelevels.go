// Package book implements the ordered price-level container for one side
// of a limit order book: a mapping from price to a FIFO queue of resting
// orders, kept in price priority order with a cached best-level aggregate.
package book

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"lobengine/internal/order"
)

// PriceLevel holds every resting order at one price, in FIFO (time
// priority) arrival order.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*order.Order
}

// tree is the ordered container itself: a btree keyed by price (the
// comparator direction differs between bid and ask sides), matching the
// teacher's engine/orderbook.go use of tidwall/btree.BTreeG[*PriceLevel].
type tree = btree.BTreeG[*PriceLevel]

// PriceLevels manages one side (bids or asks) of the book.
type PriceLevels struct {
	mu            sync.RWMutex
	levels        *tree
	cachedPrice   decimal.Decimal
	cachedSize    decimal.Decimal
	cacheValid    bool
}

// NewBidLevels returns a PriceLevels ordered highest-price-first.
func NewBidLevels() *PriceLevels {
	return &PriceLevels{
		levels: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}),
	}
}

// NewAskLevels returns a PriceLevels ordered lowest-price-first.
func NewAskLevels() *PriceLevels {
	return &PriceLevels{
		levels: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
	}
}

// AddOrder inserts o at the tail of the FIFO queue for o.Price, creating the
// level if it does not yet exist. o.Price must be set; that is a contract
// violation the core is responsible for ruling out before calling here.
func (pl *PriceLevels) AddOrder(o *order.Order) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	key := &PriceLevel{Price: o.Price}
	level, ok := pl.levels.GetMut(key)
	if !ok {
		level = &PriceLevel{Price: o.Price, Orders: []*order.Order{o}}
		pl.levels.Set(level)
	} else {
		level.Orders = append(level.Orders, o)
	}

	if best, ok := pl.levels.Min(); ok && best.Price.Equal(o.Price) {
		pl.invalidateCache()
	}
}

// RemoveOrder removes a specific order instance from the queue at price,
// dropping the price level entirely if it becomes empty. Returns whether a
// removal occurred.
func (pl *PriceLevels) RemoveOrder(price decimal.Decimal, o *order.Order) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	key := &PriceLevel{Price: price}
	level, ok := pl.levels.GetMut(key)
	if !ok {
		return false
	}

	idx := -1
	for i, resting := range level.Orders {
		if resting == o {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	level.Orders = append(level.Orders[:idx], level.Orders[idx+1:]...)
	if len(level.Orders) == 0 {
		pl.levels.Delete(level)
		if pl.cacheValid && pl.cachedPrice.Equal(price) {
			pl.invalidateCache()
		}
	} else if pl.cacheValid && pl.cachedPrice.Equal(price) {
		pl.invalidateCache()
	}
	return true
}

// Best returns the first price level in priority order, or ok=false if the
// side is empty.
func (pl *PriceLevels) Best() (level *PriceLevel, ok bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.levels.Min()
}

// BestSize returns the summed remaining quantity at the best price,
// serving the cache when valid.
func (pl *PriceLevels) BestSize() decimal.Decimal {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	best, ok := pl.levels.Min()
	if !ok {
		return decimal.Zero
	}
	if pl.cacheValid && pl.cachedPrice.Equal(best.Price) {
		return pl.cachedSize
	}

	size := sumRemaining(best.Orders)
	pl.cachedPrice = best.Price
	pl.cachedSize = size
	pl.cacheValid = true
	return size
}

// Level is one (price, aggregate size) pair as returned by Levels.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Levels returns the first k price levels with their aggregate sizes, in
// priority order.
func (pl *PriceLevels) Levels(k int) []Level {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	result := make([]Level, 0, k)
	pl.levels.Scan(func(level *PriceLevel) bool {
		if len(result) >= k {
			return false
		}
		result = append(result, Level{Price: level.Price, Size: sumRemaining(level.Orders)})
		return true
	})
	return result
}

// ScanLevels walks price levels in priority order, calling f with each
// level's price and aggregate remaining size. Iteration stops as soon as f
// returns false. Used by the matching core to sum available liquidity up to
// a limit price (the FOK dry-run check) without exposing the underlying
// btree.
func (pl *PriceLevels) ScanLevels(f func(price, size decimal.Decimal) bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	pl.levels.Scan(func(level *PriceLevel) bool {
		return f(level.Price, sumRemaining(level.Orders))
	})
}

// Len reports the number of distinct price levels on this side.
func (pl *PriceLevels) Len() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.levels.Len()
}

// DropFront discards the order at the head of the queue at price without
// generating a trade, used to implement self-trade-prevention's
// skip-without-reinsertion behavior. Returns the dropped order, or ok=false
// if the level is empty or missing.
func (pl *PriceLevels) DropFront(price decimal.Decimal) (dropped *order.Order, ok bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	key := &PriceLevel{Price: price}
	level, found := pl.levels.GetMut(key)
	if !found || len(level.Orders) == 0 {
		return nil, false
	}

	dropped = level.Orders[0]
	level.Orders = level.Orders[1:]
	if len(level.Orders) == 0 {
		pl.levels.Delete(level)
	}
	if pl.cacheValid && pl.cachedPrice.Equal(price) {
		pl.invalidateCache()
	}
	return dropped, true
}

// FillFront consumes qty from the order resting at the head of the queue
// at price. If the head order's remaining quantity drops to zero it is
// popped from the queue (and the level dropped if now empty); the popped
// flag reports whether that happened. Returns ok=false if the level is
// empty or missing.
func (pl *PriceLevels) FillFront(price, qty decimal.Decimal) (head *order.Order, popped bool, ok bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	key := &PriceLevel{Price: price}
	level, found := pl.levels.GetMut(key)
	if !found || len(level.Orders) == 0 {
		return nil, false, false
	}

	head = level.Orders[0]
	head.Remaining = head.Remaining.Sub(qty)
	if head.Remaining.Sign() <= 0 {
		head.Remaining = decimal.Zero
		level.Orders = level.Orders[1:]
		popped = true
		if len(level.Orders) == 0 {
			pl.levels.Delete(level)
		}
	}
	if pl.cacheValid && pl.cachedPrice.Equal(price) {
		pl.invalidateCache()
	}
	return head, popped, true
}

// invalidateCache must be called with mu held.
func (pl *PriceLevels) invalidateCache() {
	pl.cacheValid = false
	pl.cachedSize = decimal.Zero
	pl.cachedPrice = decimal.Zero
}

func sumRemaining(orders []*order.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Remaining)
	}
	return total
}
