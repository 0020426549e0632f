// Package config loads runtime settings for the matching engine's
// cmd binaries from environment variables, with an optional .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Book holds the parameters for a single symbol's OrderBook.
type Book struct {
	Symbol string
}

// Server holds the TCP transport's listen parameters.
type Server struct {
	ListenAddr    string
	WorkerCount   int
	AcceptTimeout time.Duration
}

// Replay holds CSV-replay driver parameters.
type Replay struct {
	CSVPath string
	Speed   float64
}

// Config aggregates every cmd binary's settings; each binary reads only
// the sub-struct it needs.
type Config struct {
	Book   Book
	Server Server
	Replay Replay
}

// Default returns the built-in baseline configuration.
func Default() Config {
	return Config{
		Book: Book{
			Symbol: "BTCUSDT",
		},
		Server: Server{
			ListenAddr:    ":7777",
			WorkerCount:   4,
			AcceptTimeout: 30 * time.Second,
		},
		Replay: Replay{
			CSVPath: "",
			Speed:   0.0,
		},
	}
}

// LoadFromEnv loads Default(), then overrides it from an optional .env
// file at envPath (or the current directory's .env if envPath is empty)
// and from process environment variables. Priority: ENV > .env > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if symbol := os.Getenv("LOB_SYMBOL"); symbol != "" {
		cfg.Book.Symbol = symbol
	}
	if addr := os.Getenv("LOB_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if workers := os.Getenv("LOB_WORKER_COUNT"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Server.WorkerCount = n
		}
	}
	if timeoutMs := os.Getenv("LOB_ACCEPT_TIMEOUT_MS"); timeoutMs != "" {
		if ms, err := strconv.Atoi(timeoutMs); err == nil {
			cfg.Server.AcceptTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if csvPath := os.Getenv("LOB_REPLAY_CSV"); csvPath != "" {
		cfg.Replay.CSVPath = csvPath
	}
	if speed := os.Getenv("LOB_REPLAY_SPEED"); speed != "" {
		if f, err := strconv.ParseFloat(speed, 64); err == nil {
			cfg.Replay.Speed = f
		}
	}

	return cfg
}
