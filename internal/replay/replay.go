// Package replay drives a matching.OrderBook from a historical CSV feed of
// NEW/CANCEL messages, optionally pacing delivery to wall-clock time.
package replay

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"lobengine/internal/event"
	"lobengine/internal/matching"
	"lobengine/internal/order"
)

// Row is one parsed CSV record: a NEW admission or a CANCEL request.
type Row struct {
	Timestamp float64
	MsgType   string // "NEW" or "CANCEL"
	Side      order.Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	OrderID   order.ID
}

// Stats summarizes a completed replay run.
type Stats struct {
	NumEvents   int
	NumTrades   int
	TotalVolume decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	AvgPrice    decimal.Decimal
	HasPrices   bool
}

// OnEvents is an optional callback invoked with each row's resulting
// events, for logging (cmd/replay's -verbose flag) or other observers.
type OnEvents func(evts []event.Event)

// Engine replays a CSV file of historical order messages into a book.
type Engine struct {
	Book     *matching.OrderBook
	Speed    float64 // 0 = as fast as possible; 1.0 = real time; >1 = faster
	OnEvents OnEvents

	lastTimestamp float64
	haveLast      bool
}

// NewEngine constructs a replay engine targeting book.
func NewEngine(book *matching.OrderBook, speed float64) *Engine {
	return &Engine{Book: book, Speed: speed}
}

// RunFromCSV reads path, sorts its rows by timestamp, and replays them into
// the engine's book in order. Malformed rows (missing required fields,
// unparsable side/price/qty) are skipped rather than aborting the run.
func (e *Engine) RunFromCSV(path string) (Stats, error) {
	rows, err := ReadCSVRows(path)
	if err != nil {
		return Stats{}, err
	}
	return e.run(rows), nil
}

// Run replays rows read from r; split out from RunFromCSV for testability
// without touching the filesystem.
func (e *Engine) Run(r io.Reader) (Stats, error) {
	rows, err := parseRows(r)
	if err != nil {
		return Stats{}, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return e.run(rows), nil
}

// ReadCSVRows opens path, parses it as a replay CSV, and returns its rows
// sorted by timestamp ascending. Exposed for internal/backtest, which
// drives the same feed format through a strategy instead of straight into
// the book.
func ReadCSVRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := parseRows(f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return rows, nil
}

func (e *Engine) run(rows []Row) Stats {
	var (
		numEvents   int
		numTrades   int
		totalVolume = decimal.Zero
		prices      []decimal.Decimal
	)

	for _, row := range rows {
		if e.Speed > 0 && e.haveLast {
			dt := row.Timestamp - e.lastTimestamp
			if dt > 0 {
				time.Sleep(time.Duration(dt / e.Speed * float64(time.Second)))
			}
		}
		e.lastTimestamp = row.Timestamp
		e.haveLast = true

		var evts []event.Event
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
			evts = e.Book.AddOrder(o)
		case "CANCEL":
			evts = e.Book.CancelOrder(row.OrderID)
		default:
			continue
		}

		for _, evt := range evts {
			if evt.Type == event.Trade {
				numTrades++
				totalVolume = totalVolume.Add(evt.Quantity)
				prices = append(prices, evt.Price)
			}
		}
		if e.OnEvents != nil {
			e.OnEvents(evts)
		}
		numEvents++
	}

	log.Info().Int("events", numEvents).Int("trades", numTrades).Msg("replay complete")

	stats := Stats{NumEvents: numEvents, NumTrades: numTrades, TotalVolume: totalVolume}
	if len(prices) > 0 {
		stats.HasPrices = true
		stats.MinPrice, stats.MaxPrice = prices[0], prices[0]
		sum := decimal.Zero
		for _, p := range prices {
			if p.LessThan(stats.MinPrice) {
				stats.MinPrice = p
			}
			if p.GreaterThan(stats.MaxPrice) {
				stats.MaxPrice = p
			}
			sum = sum.Add(p)
		}
		stats.AvgPrice = sum.Div(decimal.NewFromInt(int64(len(prices))))
	}
	return stats
}

func parseRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	var rows []Row
	for _, rec := range records[1:] {
		row, ok := parseRow(rec, col)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(rec []string, col map[string]int, name string) (string, bool) {
	idx, ok := col[name]
	if !ok || idx >= len(rec) {
		return "", false
	}
	return strings.TrimSpace(rec[idx]), true
}

func parseRow(rec []string, col map[string]int) (Row, bool) {
	tsStr, _ := field(rec, col, "ts")
	ts := parseTimestamp(tsStr)

	msgType, _ := field(rec, col, "msg_type")
	msgType = strings.ToUpper(msgType)

	orderID, ok := field(rec, col, "order_id")
	if !ok || orderID == "" {
		return Row{}, false
	}

	row := Row{Timestamp: ts, MsgType: msgType, OrderID: orderID}

	if msgType != "NEW" {
		return row, true
	}

	sideStr, _ := field(rec, col, "side")
	priceStr, _ := field(rec, col, "price")
	qtyStr, _ := field(rec, col, "qty")
	if sideStr == "" || priceStr == "" || qtyStr == "" {
		return Row{}, false
	}

	side, ok := parseSide(sideStr)
	if !ok {
		return Row{}, false
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Row{}, false
	}
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return Row{}, false
	}

	row.Side = side
	row.Price = price
	row.Quantity = qty
	return row, true
}

func parseSide(s string) (order.Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return order.Buy, true
	case "SELL":
		return order.Sell, true
	default:
		return 0, false
	}
}

// parseTimestamp accepts either a bare float (unix seconds) or an
// ISO-8601 timestamp, matching original_source/replay.py's best-effort
// parser. Unparsable values fall back to 0.
func parseTimestamp(s string) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	normalized := strings.Replace(s, "Z", "+00:00", 1)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999999-07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return float64(t.UnixNano()) / 1e9
		}
	}
	return 0.0
}
