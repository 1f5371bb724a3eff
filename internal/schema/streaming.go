package schema

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Channel identifies a named message stream.
type Channel string

const (
	ChannelTrade     Channel = "trade"
	ChannelBook      Channel = "book"
	ChannelTicker    Channel = "ticker"
	ChannelHeartbeat Channel = "heartbeat"
	ChannelStatus    Channel = "status"
)

// Method identifies the control-plane operation a message carries.
type Method string

const (
	MethodSubscribe   Method = "subscribe"
	MethodUnsubscribe Method = "unsubscribe"
	MethodPong        Method = "pong"
	// MethodPing is only ever sent, never parsed from an inbound envelope —
	// the server's reply carries MethodPong instead.
	MethodPing Method = "ping"
)

// Envelope is the outermost shape every inbound message is decoded into
// for dispatch purposes before being re-decoded into a concrete record.
// Both Method and Channel are optional — the router uses whichever is
// present to pick a parser.
type Envelope struct {
	Method  Method          `json:"method,omitempty"`
	Channel Channel         `json:"channel,omitempty"`
	Success *bool           `json:"success,omitempty"`
	ReqID   *uint64         `json:"req_id,omitempty"`
	// Symbol carries the top-level symbol some rejection notices use in
	// place of a result.symbol — the wire shape is schema-driven, not
	// bit-exact, so both placements are accepted.
	Symbol  string          `json:"symbol,omitempty"`
	Error   string          `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AckResult carries the success-path payload of a subscribe/unsubscribe
// acknowledgement.
type AckResult struct {
	Channel  Channel `json:"channel"`
	Symbol   string  `json:"symbol"`
	Depth    int     `json:"depth,omitempty"`
	Snapshot bool    `json:"snapshot,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// SubscribeAck is the fully decoded form of a subscribe/unsubscribe
// acknowledgement, success or failure.
type SubscribeAck struct {
	Method  Method
	ReqID   uint64
	Success bool
	Result  AckResult
	Error   string
}

// Pong is the last-value reply to a ping control frame.
type Pong struct {
	ReqID     uint64    `json:"req_id"`
	Timestamp time.Time `json:"time_in,omitempty"`
}

// Status is the last-value system/status update.
type Status struct {
	System    string    `json:"system"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RejectionNotice is a semantic, user-visible rejection surfaced both to
// the channel manager/replay database and the application.
type RejectionNotice struct {
	ReqID   uint64
	HasReqID bool
	Symbol  string
	Error   string
}

// TradeSide distinguishes buy/sell trade records.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeRecord is a single trade print.
type TradeRecord struct {
	Symbol    string          `json:"symbol"`
	Side      TradeSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	Timestamp time.Time       `json:"timestamp"`
	OrdType   string          `json:"ord_type,omitempty"`
	TradeID   string          `json:"trade_id,omitempty"`
}

// TradeMessage carries a data-plane trade push, snapshot or update.
type TradeMessage struct {
	Symbol   string
	Snapshot bool
	Trades   []TradeRecord
}

// BookLevel is a single price/qty level in an order-book message.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// BookMessage carries a data-plane order-book push. At least one of
// Asks/Bids is populated.
type BookMessage struct {
	Symbol    string
	Asks      []BookLevel
	Bids      []BookLevel
	Checksum  uint32
	Timestamp time.Time
	Snapshot  bool
}
