package strategy

import (
	"github.com/shopspring/decimal"

	"lobengine/internal/matching"
	"lobengine/internal/order"
)

// TWAP divides [startTS, endTS] into equal time slices and, on each
// boundary crossing, submits one IOC limit order sized to the remaining
// quantity divided by the remaining slices.
type TWAP struct {
	base

	numSlices     int
	spreadBps     float64
	sliceDuration float64
	currentSlice  int
	lastSliceTS   float64
}

// NewTWAP constructs a TWAP strategy executing totalQuantity of side over
// [startTS, endTS] in numSlices equal slices.
func NewTWAP(side order.Side, totalQuantity decimal.Decimal, startTS, endTS float64, symbol string, numSlices int, spreadBps float64) *TWAP {
	return &TWAP{
		base:          newBase("TWAP", side, totalQuantity, startTS, endTS, symbol),
		numSlices:     numSlices,
		spreadBps:     spreadBps,
		sliceDuration: (endTS - startTS) / float64(numSlices),
		lastSliceTS:   startTS,
	}
}

func (t *TWAP) OnMarketData(ts float64, midPrice decimal.Decimal, hasMid bool, _ *matching.OrderBook) []*order.Order {
	if ts < t.startTS || ts > t.endTS || t.IsDone() {
		return nil
	}

	targetSlice := t.targetSlice(ts)
	if targetSlice <= t.currentSlice && ts < t.lastSliceTS+t.sliceDuration {
		return nil
	}
	t.currentSlice = targetSlice

	sliceQty := t.sliceQuantity()
	if !hasMid || sliceQty.Sign() <= 0 {
		return nil
	}

	o := t.buildOrder(ts, midPrice, sliceQty, bps(t.spreadBps))
	t.openOrders[o.OrderID] = o
	t.lastSliceTS = ts
	return []*order.Order{o}
}

func (t *TWAP) targetSlice(ts float64) int {
	elapsed := ts - t.startTS
	target := int(elapsed / t.sliceDuration)
	if target > t.numSlices-1 {
		target = t.numSlices - 1
	}
	return target
}

func (t *TWAP) sliceQuantity() decimal.Decimal {
	remainingQty := t.totalQuantity.Sub(t.executedQuantity)
	remainingSlices := t.numSlices - t.currentSlice
	if remainingSlices <= 0 {
		return remainingQty
	}
	return remainingQty.Div(decimal.NewFromInt(int64(remainingSlices)))
}

func (t *TWAP) buildOrder(ts float64, mid decimal.Decimal, qty decimal.Decimal, spreadFactor decimal.Decimal) *order.Order {
	limitPrice := spreadMultiplier(t.side, mid, spreadFactor)
	return &order.Order{
		OrderID:     childOrderID(t.name, t.symbol, ts, t.currentSlice),
		ClientID:    clientID(t.name),
		Side:        t.side,
		Type:        order.Limit,
		Price:       limitPrice,
		HasPrice:    true,
		Quantity:    qty,
		Remaining:   qty,
		TimeInForce: order.IOC,
		Timestamp:   ts,
		UserData:    map[string]string{"strategy": t.name},
	}
}
