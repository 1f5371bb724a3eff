// Command krakenstream-cli runs a streaming Session against a configured
// endpoint and prints delivered trade/book/rejection events to stdout. It
// exists to exercise the core interactively; it is not part of the core
// itself.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coachpo/krakenstream/config"
	"github.com/coachpo/krakenstream/internal/schema"
	"github.com/coachpo/krakenstream/internal/telemetry"
	"github.com/coachpo/krakenstream/session"
)

const (
	cliLoggerPrefix = "krakenstream-cli "
	pollInterval    = 20 * time.Millisecond
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		endpoint   = flag.String("endpoint", "", "ws(s):// streaming endpoint")
		configPath = flag.String("config", "", "path to a YAML client config, overrides defaults")
		trade      = flag.String("trade", "", "comma-separated symbols to subscribe on the trade channel")
		book       = flag.String("book", "", "comma-separated symbols to subscribe on the book channel")
		depth      = flag.Int("depth", 10, "order book depth for -book subscriptions")
		active     = flag.Bool("active-liveness", false, "send a ping when the connection signals liveness is threatened")
		metrics    = flag.Bool("metrics", false, "enable OTLP metrics export")
	)
	flag.Parse()

	if strings.TrimSpace(*endpoint) == "" && strings.TrimSpace(*configPath) == "" {
		return errors.New("-endpoint or -config is required")
	}

	logger := log.New(os.Stdout, cliLoggerPrefix, log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, *configPath, *endpoint)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess := session.New(cfg)
	if *active {
		sess.SetPolicy(session.LivenessActive)
	}

	if *metrics {
		provider, err := telemetry.NewProvider(ctx, telemetry.DefaultConfig())
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Printf("telemetry shutdown: %v", err)
			}
		}()
		sess.SetCounter(telemetry.NewCounter(provider, "krakenstream.cli"))
		logger.Printf("metrics enabled")
	}

	logger.Printf("connecting to %s", cfg.Endpoint)
	if !sess.Connect(ctx, cfg.Endpoint) {
		return fmt.Errorf("failed to connect to %s", cfg.Endpoint)
	}
	defer sess.Close()

	for _, symbol := range splitSymbols(*trade) {
		sess.Subscribe(ctx, session.SubscribeRequest{Channel: schema.ChannelTrade, Symbols: []string{symbol}})
	}
	for _, symbol := range splitSymbols(*book) {
		sess.Subscribe(ctx, session.SubscribeRequest{Channel: schema.ChannelBook, Symbols: []string{symbol}, Depth: *depth})
	}

	logger.Print("streaming; press ctrl-c to stop")
	pollLoop(ctx, logger, sess)
	logger.Print("shutdown complete")
	return nil
}

func pollLoop(ctx context.Context, logger *log.Logger, sess *session.Session) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var (
		trade     schema.TradeMessage
		book      schema.BookMessage
		rejection schema.RejectionNotice
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess.Poll(ctx)
			for sess.PopTrade(&trade) {
				for _, t := range trade.Trades {
					logger.Printf("trade %s %s %s@%s", trade.Symbol, t.Side, t.Qty, t.Price)
				}
			}
			for sess.PopBook(&book) {
				logger.Printf("book %s asks=%d bids=%d snapshot=%v", book.Symbol, len(book.Asks), len(book.Bids), book.Snapshot)
			}
			for sess.PopRejection(&rejection) {
				logger.Printf("rejection req_id=%d symbol=%s error=%s", rejection.ReqID, rejection.Symbol, rejection.Error)
			}
		}
	}
}

func loadConfig(ctx context.Context, path, endpoint string) (config.ClientConfig, error) {
	if strings.TrimSpace(path) == "" {
		cfg := config.DefaultClientConfig()
		cfg.Endpoint = endpoint
		return cfg, nil
	}
	cfg, err := config.LoadClientConfig(ctx, path)
	if err != nil {
		return config.ClientConfig{}, err
	}
	if strings.TrimSpace(endpoint) != "" {
		cfg.Endpoint = endpoint
	}
	return cfg, nil
}

func splitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
