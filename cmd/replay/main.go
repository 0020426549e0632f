// Command replay drives a matching.OrderBook from a historical CSV feed and
// prints summary statistics once the feed is exhausted.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lobengine/internal/config"
	"lobengine/internal/event"
	"lobengine/internal/matching"
	"lobengine/internal/replay"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	envPath := flag.String("env", "", "path to a .env file (optional)")
	csvPath := flag.String("csv", "", "path to the replay CSV (overrides LOB_REPLAY_CSV)")
	speed := flag.Float64("speed", -1, "replay speed multiplier, 0 = as fast as possible (overrides LOB_REPLAY_SPEED)")
	symbol := flag.String("symbol", "", "symbol to trade (overrides LOB_SYMBOL)")
	verbose := flag.Bool("verbose", false, "log every event, not just a final summary")
	flag.Parse()

	cfg := config.LoadFromEnv(*envPath)
	if *csvPath != "" {
		cfg.Replay.CSVPath = *csvPath
	}
	if *speed >= 0 {
		cfg.Replay.Speed = *speed
	}
	if *symbol != "" {
		cfg.Book.Symbol = *symbol
	}

	if cfg.Replay.CSVPath == "" {
		log.Fatal().Msg("no replay CSV given: pass -csv or set LOB_REPLAY_CSV")
	}

	book := matching.NewOrderBook(cfg.Book.Symbol)
	engine := replay.NewEngine(book, cfg.Replay.Speed)
	if *verbose {
		engine.OnEvents = logEvents
	}

	stats, err := engine.RunFromCSV(cfg.Replay.CSVPath)
	if err != nil {
		log.Fatal().Err(err).Str("csv", cfg.Replay.CSVPath).Msg("replay failed")
	}

	fmt.Printf("events=%d trades=%d volume=%s\n", stats.NumEvents, stats.NumTrades, stats.TotalVolume)
	if stats.HasPrices {
		fmt.Printf("min=%s max=%s avg=%s\n", stats.MinPrice, stats.MaxPrice, stats.AvgPrice)
	}
}

func logEvents(events []event.Event) {
	for _, e := range events {
		log.Info().Str("event", e.String()).Msg("replay event")
	}
}
