// Package backtest drives a single strategy against a single book over a
// historical CSV feed, interleaving the feed's own orders with the
// strategy's child orders and reporting fill/slippage/PnL metrics.
package backtest

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"lobengine/internal/event"
	"lobengine/internal/matching"
	"lobengine/internal/order"
	"lobengine/internal/replay"
	"lobengine/internal/strategy"
)

// Result summarizes a completed backtest run.
type Result struct {
	StrategyName    string
	FilledQuantity  decimal.Decimal
	AvgFillPrice    decimal.Decimal
	HasAvgFillPrice bool
	PnL             decimal.Decimal
	HasPnL          bool
	NumTrades       int
	SlippageVsMid   decimal.Decimal
	HasSlippage     bool
}

// pnlReporter is implemented by strategies that track realized PnL (only
// MarketMaker, currently); checked with a type assertion rather than
// widening the Strategy interface for every variant.
type pnlReporter interface {
	PnL() decimal.Decimal
}

// Engine runs one strategy against one book, driven by a historical CSV
// feed of NEW/CANCEL rows.
type Engine struct {
	Book     *matching.OrderBook
	Strategy strategy.Strategy
}

// NewEngine constructs a backtest engine pairing book with s.
func NewEngine(book *matching.OrderBook, s strategy.Strategy) *Engine {
	return &Engine{Book: book, Strategy: s}
}

// RunWithReplay reads csvPath as a historical feed and drives Strategy
// against Book tick by tick, submitting both the feed's own orders and the
// strategy's child orders, and routing resulting fills back to the
// strategy via on_fill.
func (e *Engine) RunWithReplay(csvPath string, speed float64) (Result, error) {
	rows, err := replay.ReadCSVRows(csvPath)
	if err != nil {
		return Result{}, err
	}

	startTS, endTS := e.Strategy.StartEnd()

	var midPrices []decimal.Decimal
	var tradePrices []decimal.Decimal

	for _, row := range rows {
		if row.Timestamp < startTS {
			continue
		}
		if row.Timestamp > endTS && e.Strategy.IsDone() {
			break
		}

		switch row.MsgType {
		case "NEW":
			o := &order.Order{
				OrderID:     row.OrderID,
				Side:        row.Side,
				Type:        order.Limit,
				Price:       row.Price,
				HasPrice:    true,
				Quantity:    row.Quantity,
				Remaining:   row.Quantity,
				TimeInForce: order.GTC,
				Timestamp:   row.Timestamp,
			}
			e.Book.AddOrder(o)

			mid, hasMid := e.Book.MidPrice()
			if hasMid {
				midPrices = append(midPrices, mid)
			}

			for _, childOrder := range e.Strategy.OnMarketData(row.Timestamp, mid, hasMid, e.Book) {
				tradePrices = append(tradePrices, e.submitChild(childOrder)...)
			}
		case "CANCEL":
			e.Book.CancelOrder(row.OrderID)
		}
	}

	return e.buildResult(midPrices, tradePrices), nil
}

// submitChild dispatches one strategy-produced order: a cancel-intent
// sentinel becomes a book cancel, everything else is submitted as a real
// order with its fills routed back to the strategy. Returns any trade
// prices observed, for slippage tracking.
func (e *Engine) submitChild(o *order.Order) []decimal.Decimal {
	if o.UserData[cancelActionKey] == cancelActionValue {
		target := o.UserData["target_order_id"]
		if target == "" {
			target = strings.TrimPrefix(string(o.OrderID), "cancel-")
		}
		events := e.Book.CancelOrder(target)
		e.Strategy.OnFill(filterTrades(events))
		return nil
	}

	events := e.Book.AddOrder(o)
	trades := filterTrades(events)
	if len(trades) > 0 {
		e.Strategy.OnFill(trades)
	}

	prices := make([]decimal.Decimal, 0, len(trades))
	for _, t := range trades {
		prices = append(prices, t.Price)
	}
	return prices
}

const cancelActionKey = "action"
const cancelActionValue = "cancel"

func filterTrades(events []event.Event) []event.Event {
	var trades []event.Event
	for _, e := range events {
		if e.Type == event.Trade {
			trades = append(trades, e)
		}
	}
	return trades
}

func (e *Engine) buildResult(midPrices, tradePrices []decimal.Decimal) Result {
	result := Result{
		StrategyName:   e.Strategy.Name(),
		FilledQuantity: e.Strategy.ExecutedQuantity(),
		NumTrades:      e.Strategy.NumTrades(),
	}

	if avg, ok := e.Strategy.AvgFillPrice(); ok {
		result.AvgFillPrice = avg
		result.HasAvgFillPrice = true
	}

	if len(midPrices) > 0 && len(tradePrices) > 0 && result.HasAvgFillPrice {
		avgMid := mean(midPrices)
		if e.Strategy.Side() == order.Buy {
			result.SlippageVsMid = result.AvgFillPrice.Sub(avgMid)
		} else {
			result.SlippageVsMid = avgMid.Sub(result.AvgFillPrice)
		}
		result.HasSlippage = true
	}

	if reporter, ok := e.Strategy.(pnlReporter); ok {
		result.PnL = reporter.PnL()
		result.HasPnL = true
	}

	log.Info().Str("strategy", result.StrategyName).Int("trades", result.NumTrades).Msg("backtest complete")
	return result
}

func mean(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}
