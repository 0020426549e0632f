// Command backtest runs one execution strategy against a historical CSV
// feed and prints its fill/slippage/PnL summary.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"lobengine/internal/backtest"
	"lobengine/internal/config"
	"lobengine/internal/matching"
	"lobengine/internal/order"
	"lobengine/internal/strategy"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	envPath := flag.String("env", "", "path to a .env file (optional)")
	csvPath := flag.String("csv", "", "path to the replay CSV (overrides LOB_REPLAY_CSV)")
	symbol := flag.String("symbol", "", "symbol to trade (overrides LOB_SYMBOL)")

	strategyName := flag.String("strategy", "twap", "strategy to run: twap, vwap, or marketmaker")
	sideFlag := flag.String("side", "buy", "strategy side: buy or sell (ignored for marketmaker)")
	quantity := flag.String("qty", "100", "total quantity to execute (ignored for marketmaker)")
	startTS := flag.Float64("start", 0, "execution window start timestamp")
	endTS := flag.Float64("end", 3600, "execution window end timestamp")
	numSlices := flag.Int("slices", 10, "number of slices (twap/vwap)")
	spreadBps := flag.Float64("spread-bps", 5, "limit price offset from mid, in basis points")
	orderSize := flag.String("order-size", "1", "per-quote size (marketmaker)")
	maxInventory := flag.String("max-inventory", "10", "inventory cap (marketmaker)")
	inventorySkew := flag.Float64("inventory-skew", 0.5, "spread skew per unit of inventory ratio (marketmaker)")
	flag.Parse()

	cfg := config.LoadFromEnv(*envPath)
	if *csvPath != "" {
		cfg.Replay.CSVPath = *csvPath
	}
	if *symbol != "" {
		cfg.Book.Symbol = *symbol
	}
	if cfg.Replay.CSVPath == "" {
		log.Fatal().Msg("no replay CSV given: pass -csv or set LOB_REPLAY_CSV")
	}

	side := order.Buy
	if strings.EqualFold(*sideFlag, "sell") {
		side = order.Sell
	}
	qty, err := decimal.NewFromString(*quantity)
	if err != nil {
		log.Fatal().Err(err).Str("qty", *quantity).Msg("invalid quantity")
	}

	s, err := buildStrategy(*strategyName, side, qty, *startTS, *endTS, cfg.Book.Symbol, *numSlices, *spreadBps, *orderSize, *maxInventory, *inventorySkew)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to build strategy")
	}

	book := matching.NewOrderBook(cfg.Book.Symbol)
	engine := backtest.NewEngine(book, s)

	result, err := engine.RunWithReplay(cfg.Replay.CSVPath, cfg.Replay.Speed)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	fmt.Printf("strategy=%s filled=%s trades=%d\n", result.StrategyName, result.FilledQuantity, result.NumTrades)
	if result.HasAvgFillPrice {
		fmt.Printf("avg_fill_price=%s\n", result.AvgFillPrice)
	}
	if result.HasSlippage {
		fmt.Printf("slippage_vs_mid=%s\n", result.SlippageVsMid)
	}
	if result.HasPnL {
		fmt.Printf("pnl=%s\n", result.PnL)
	}
}

func buildStrategy(name string, side order.Side, qty decimal.Decimal, startTS, endTS float64, symbol string, numSlices int, spreadBps float64, orderSizeStr, maxInventoryStr string, inventorySkew float64) (strategy.Strategy, error) {
	switch strings.ToLower(name) {
	case "twap":
		return strategy.NewTWAP(side, qty, startTS, endTS, symbol, numSlices, spreadBps), nil
	case "vwap":
		return strategy.NewVWAP(side, qty, startTS, endTS, symbol, numSlices, spreadBps), nil
	case "marketmaker":
		orderSize, err := decimal.NewFromString(orderSizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid order-size: %w", err)
		}
		maxInventory, err := decimal.NewFromString(maxInventoryStr)
		if err != nil {
			return nil, fmt.Errorf("invalid max-inventory: %w", err)
		}
		return strategy.NewMarketMaker(startTS, endTS, symbol, spreadBps, orderSize, maxInventory, inventorySkew), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
