package historical

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/krakenstream/internal/observability"
	"github.com/coachpo/krakenstream/internal/schema"
)

const (
	tradeInsertSQL = `
INSERT INTO trade_events (symbol, side, price, qty, trade_id, ord_type, snapshot, event_time)
VALUES (@symbol, @side, @price, @qty, @trade_id, @ord_type, @snapshot, @event_time);
`

	bookInsertSQL = `
INSERT INTO book_events (symbol, snapshot, checksum, asks, bids, event_time)
VALUES (@symbol, @snapshot, @checksum, @asks::jsonb, @bids::jsonb, @event_time);
`
)

// Recorder persists delivered trade/book messages to Postgres. It never
// participates in the session's live message path; a caller drains
// Session.PopTrade/PopBook and forwards whatever it pops here.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder constructs a Recorder backed by the provided pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// RecordTrade inserts one row per trade print carried by msg.
func (r *Recorder) RecordTrade(ctx context.Context, msg schema.TradeMessage) error {
	if r.pool == nil {
		return fmt.Errorf("historical: nil pool")
	}
	batch := &pgx.Batch{}
	for _, trade := range msg.Trades {
		args := pgx.NamedArgs{
			"symbol":     trade.Symbol,
			"side":       string(trade.Side),
			"price":      trade.Price,
			"qty":        trade.Qty,
			"trade_id":   nullableString(trade.TradeID),
			"ord_type":   nullableString(trade.OrdType),
			"snapshot":   msg.Snapshot,
			"event_time": trade.Timestamp,
		}
		batch.Queue(tradeInsertSQL, args)
	}
	if batch.Len() == 0 {
		return nil
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("historical: insert trade: %w", err)
		}
	}
	return nil
}

// RecordBook inserts one row summarizing the full ask/bid side set carried
// by msg.
func (r *Recorder) RecordBook(ctx context.Context, msg schema.BookMessage) error {
	if r.pool == nil {
		return fmt.Errorf("historical: nil pool")
	}
	asks, err := json.Marshal(msg.Asks)
	if err != nil {
		return fmt.Errorf("historical: encode asks: %w", err)
	}
	bids, err := json.Marshal(msg.Bids)
	if err != nil {
		return fmt.Errorf("historical: encode bids: %w", err)
	}
	args := pgx.NamedArgs{
		"symbol":     msg.Symbol,
		"snapshot":   msg.Snapshot,
		"checksum":   int64(msg.Checksum),
		"asks":       asks,
		"bids":       bids,
		"event_time": msg.Timestamp,
	}
	if _, err := r.pool.Exec(ctx, bookInsertSQL, args); err != nil {
		return fmt.Errorf("historical: insert book: %w", err)
	}
	return nil
}

// Drain pops every currently buffered trade/book message off sess and
// persists it, logging but not aborting on a single message's failure so
// one bad write doesn't stall the recorder behind the session's rings.
func (r *Recorder) Drain(ctx context.Context, sess sessionSource) {
	var trade schema.TradeMessage
	for sess.PopTrade(&trade) {
		if err := r.RecordTrade(ctx, trade); err != nil {
			observability.Log().Error("historical recorder: trade write failed",
				observability.Field{Key: "error", Value: err.Error()},
				observability.Field{Key: "symbol", Value: trade.Symbol})
		}
	}
	var book schema.BookMessage
	for sess.PopBook(&book) {
		if err := r.RecordBook(ctx, book); err != nil {
			observability.Log().Error("historical recorder: book write failed",
				observability.Field{Key: "error", Value: err.Error()},
				observability.Field{Key: "symbol", Value: book.Symbol})
		}
	}
}

// sessionSource is the subset of Session.Poll's output the recorder drains.
// Kept as an interface so tests can feed canned messages without a live
// connection.
type sessionSource interface {
	PopTrade(*schema.TradeMessage) bool
	PopBook(*schema.BookMessage) bool
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
