package strategy

import (
	"github.com/shopspring/decimal"

	"lobengine/internal/matching"
	"lobengine/internal/order"
)

// VWAP has the same slicing shape as TWAP, with one addition: when behind
// the expected schedule it halves the spread factor for the next slice to
// catch up. It does not track an actual traded-volume profile (see
// design notes); "VWAP" here names the intended heuristic, not a
// volume-weighted curve.
type VWAP struct {
	base

	numSlices     int
	spreadBps     float64
	sliceDuration float64
	currentSlice  int
	lastSliceTS   float64
}

// NewVWAP constructs a VWAP strategy executing totalQuantity of side over
// [startTS, endTS] in numSlices equal slices.
func NewVWAP(side order.Side, totalQuantity decimal.Decimal, startTS, endTS float64, symbol string, numSlices int, spreadBps float64) *VWAP {
	return &VWAP{
		base:          newBase("VWAP", side, totalQuantity, startTS, endTS, symbol),
		numSlices:     numSlices,
		spreadBps:     spreadBps,
		sliceDuration: (endTS - startTS) / float64(numSlices),
		lastSliceTS:   startTS,
	}
}

func (v *VWAP) OnMarketData(ts float64, midPrice decimal.Decimal, hasMid bool, _ *matching.OrderBook) []*order.Order {
	if ts < v.startTS || ts > v.endTS || v.IsDone() {
		return nil
	}

	elapsed := ts - v.startTS
	targetSlice := int(elapsed / v.sliceDuration)
	if targetSlice > v.numSlices-1 {
		targetSlice = v.numSlices - 1
	}
	if targetSlice <= v.currentSlice && ts < v.lastSliceTS+v.sliceDuration {
		return nil
	}
	v.currentSlice = targetSlice

	remainingQty := v.totalQuantity.Sub(v.executedQuantity)
	remainingSlices := v.numSlices - v.currentSlice
	sliceQty := remainingQty
	if remainingSlices > 0 {
		sliceQty = remainingQty.Div(decimal.NewFromInt(int64(remainingSlices)))
	}

	if !hasMid || sliceQty.Sign() <= 0 {
		return nil
	}

	spreadFactor := bps(v.spreadBps)
	if v.behindSchedule(ts) {
		spreadFactor = spreadFactor.Div(decimal.NewFromInt(2))
	}

	limitPrice := spreadMultiplier(v.side, midPrice, spreadFactor)
	o := &order.Order{
		OrderID:     childOrderID(v.name, v.symbol, ts, v.currentSlice),
		ClientID:    clientID(v.name),
		Side:        v.side,
		Type:        order.Limit,
		Price:       limitPrice,
		HasPrice:    true,
		Quantity:    sliceQty,
		Remaining:   sliceQty,
		TimeInForce: order.IOC,
		Timestamp:   ts,
		UserData:    map[string]string{"strategy": v.name},
	}
	v.openOrders[o.OrderID] = o
	v.lastSliceTS = ts
	return []*order.Order{o}
}

// behindSchedule reports whether executed progress trails the time-elapsed
// fraction of the execution window.
func (v *VWAP) behindSchedule(ts float64) bool {
	progress := v.Progress()
	expected := (ts - v.startTS) / (v.endTS - v.startTS)
	return progress < expected
}
