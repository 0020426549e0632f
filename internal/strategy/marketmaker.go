package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lobengine/internal/event"
	"lobengine/internal/matching"
	"lobengine/internal/order"
)

// MarketMaker quotes both sides of the book around mid price, skewing its
// spread by inventory so it leans toward unwinding a position rather than
// growing it. It is not quantity-targeted and never reports done.
type MarketMaker struct {
	base

	baseSpreadBps       float64
	orderSize           decimal.Decimal
	maxInventory        decimal.Decimal
	inventorySkewFactor float64

	inventory      decimal.Decimal
	realizedPnL    decimal.Decimal
	lastBidOrderID order.ID
	lastAskOrderID order.ID
	hasLastMid     bool
	lastMidPrice   decimal.Decimal
}

// NewMarketMaker constructs a market maker quoting around mid price with
// orderSize-sized quotes, skewed by inventory up to maxInventory.
func NewMarketMaker(startTS, endTS float64, symbol string, baseSpreadBps float64, orderSize, maxInventory decimal.Decimal, inventorySkewFactor float64) *MarketMaker {
	return &MarketMaker{
		base:                newBase("MarketMaker", order.Buy, decimal.Zero, startTS, endTS, symbol),
		baseSpreadBps:       baseSpreadBps,
		orderSize:           orderSize,
		maxInventory:        maxInventory,
		inventorySkewFactor: inventorySkewFactor,
		inventory:           decimal.Zero,
		realizedPnL:         decimal.Zero,
	}
}

// cancelActionKey is the UserData key the backtest engine looks for to
// recognize a cancel-intent child order rather than a real quote.
const cancelActionKey = "action"
const cancelActionValue = "cancel"

func (m *MarketMaker) OnMarketData(ts float64, midPrice decimal.Decimal, hasMid bool, _ *matching.OrderBook) []*order.Order {
	var orders []*order.Order

	if ts < m.startTS || ts > m.endTS || !hasMid {
		return orders
	}

	priceChanged := !m.hasLastMid || deltaRatio(midPrice, m.lastMidPrice).GreaterThan(decimal.NewFromFloat(0.001))

	inventoryRatio := decimal.Zero
	if m.maxInventory.Sign() > 0 {
		inventoryRatio = m.inventory.Div(m.maxInventory)
	}
	inventoryRatio = clamp(inventoryRatio, decimal.NewFromInt(-1), decimal.NewFromInt(1))

	spreadFactor := bps(m.baseSpreadBps)
	skew := decimal.NewFromFloat(m.inventorySkewFactor).Mul(inventoryRatio)
	bidSpreadAdj := spreadFactor.Mul(decimal.NewFromInt(1).Add(skew))
	askSpreadAdj := spreadFactor.Mul(decimal.NewFromInt(1).Sub(skew))

	bidPrice := midPrice.Mul(decimal.NewFromInt(1).Sub(bidSpreadAdj))
	askPrice := midPrice.Mul(decimal.NewFromInt(1).Add(askSpreadAdj))

	if priceChanged {
		if m.lastBidOrderID != "" {
			if _, open := m.openOrders[m.lastBidOrderID]; open {
				orders = append(orders, m.cancelChild(order.Buy, m.lastBidOrderID, ts))
			}
		}
		if m.lastAskOrderID != "" {
			if _, open := m.openOrders[m.lastAskOrderID]; open {
				orders = append(orders, m.cancelChild(order.Sell, m.lastAskOrderID, ts))
			}
		}
	}

	if m.inventory.Abs().LessThan(m.maxInventory) || m.inventory.Sign() < 0 {
		bid := m.quote(order.Buy, bidPrice, ts)
		orders = append(orders, bid)
		m.openOrders[bid.OrderID] = bid
		m.lastBidOrderID = bid.OrderID
	}

	if m.inventory.Abs().LessThan(m.maxInventory) || m.inventory.Sign() > 0 {
		ask := m.quote(order.Sell, askPrice, ts)
		orders = append(orders, ask)
		m.openOrders[ask.OrderID] = ask
		m.lastAskOrderID = ask.OrderID
	}

	m.lastMidPrice = midPrice
	m.hasLastMid = true
	return orders
}

func (m *MarketMaker) quote(side order.Side, price decimal.Decimal, ts float64) *order.Order {
	label := "bid"
	if side == order.Sell {
		label = "ask"
	}
	return &order.Order{
		OrderID:     order.ID(fmt.Sprintf("%s-%s-%v", m.name, label, ts)),
		ClientID:    clientID(m.name),
		Side:        side,
		Type:        order.Limit,
		Price:       price,
		HasPrice:    true,
		Quantity:    m.orderSize,
		Remaining:   m.orderSize,
		TimeInForce: order.GTC,
		Flags:       order.PostOnly,
		Timestamp:   ts,
		UserData:    map[string]string{"strategy": m.name, "quote_type": label},
	}
}

func (m *MarketMaker) cancelChild(side order.Side, originalID order.ID, ts float64) *order.Order {
	return &order.Order{
		OrderID:   order.ID("cancel-" + originalID),
		ClientID:  clientID(m.name),
		Side:      side,
		Type:      order.Limit,
		Timestamp: ts,
		UserData:  map[string]string{cancelActionKey: cancelActionValue, "target_order_id": originalID},
	}
}

func (m *MarketMaker) OnFill(events []event.Event) {
	for _, e := range events {
		if e.Type != event.Trade {
			continue
		}
		o, ok := m.openOrders[e.OrderID]
		if !ok {
			continue
		}

		if o.Side == order.Buy {
			m.inventory = m.inventory.Add(e.Quantity)
		} else {
			m.inventory = m.inventory.Sub(e.Quantity)
		}
		m.executedQuantity = m.executedQuantity.Add(e.Quantity)
		m.numTrades++

		o.Remaining = o.Remaining.Sub(e.Quantity)
		if o.Remaining.Sign() <= 0 {
			delete(m.openOrders, e.OrderID)
		}
	}
}

// IsDone always reports false: a market maker runs until the caller stops
// feeding it ticks, not until some quantity target is reached.
func (m *MarketMaker) IsDone() bool {
	return false
}

// PnL returns realizedPnL. OnFill does not update it (fills move only
// inventory, executed quantity and the trade count), so it stays zero.
func (m *MarketMaker) PnL() decimal.Decimal {
	return m.realizedPnL
}

func deltaRatio(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.NewFromInt(1)
	}
	return current.Sub(previous).Abs().Div(previous.Abs())
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
