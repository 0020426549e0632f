// Command server runs the matching engine behind a TCP listener, accepting
// NEW_ORDER/CANCEL_ORDER requests and streaming back Event reports.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lobengine/internal/config"
	"lobengine/internal/matching"
	"lobengine/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	envPath := flag.String("env", "", "path to a .env file (optional)")
	addr := flag.String("addr", "", "listen address (overrides LOB_LISTEN_ADDR)")
	symbol := flag.String("symbol", "", "symbol to trade (overrides LOB_SYMBOL)")
	flag.Parse()

	cfg := config.LoadFromEnv(*envPath)
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	if *symbol != "" {
		cfg.Book.Symbol = *symbol
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	book := matching.NewOrderBook(cfg.Book.Symbol)
	srv := transport.New(cfg.Server.ListenAddr, book, cfg.Server.WorkerCount)

	log.Info().Str("symbol", cfg.Book.Symbol).Str("addr", cfg.Server.ListenAddr).Msg("starting server")
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}
