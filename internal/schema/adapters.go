package schema

import (
	"time"

	json "github.com/goccy/go-json"
)

// Result tags the outcome of a parse attempt. The router uses it to decide
// whether to push the decoded record, log-and-drop, or escalate.
type Result int

const (
	ResultParsed Result = iota
	ResultInvalidSchema
	ResultInvalidValue
	ResultIgnored
	ResultDelivered
	ResultBackpressure
)

// requireObject is the first parsing helper: every message parser starts
// from a non-empty raw object.
func requireObject(raw json.RawMessage) bool {
	return len(raw) > 0
}

func parseRFC3339(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ParseEnvelope decodes the outer dispatch shape the router switches on.
func ParseEnvelope(raw []byte) (Envelope, Result) {
	if !requireObject(raw) {
		return Envelope{}, ResultInvalidSchema
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ResultInvalidSchema
	}
	return env, ResultParsed
}

// ParseSubscribeAck adapts an envelope already known to carry method ∈
// {subscribe, unsubscribe} into a SubscribeAck. It tolerates the
// omitted-result-on-failure quirk: when success is false (or absent with
// an error present), the result block may be entirely missing.
func ParseSubscribeAck(env Envelope) (SubscribeAck, Result) {
	if env.ReqID == nil {
		return SubscribeAck{}, ResultInvalidSchema
	}
	ack := SubscribeAck{Method: env.Method, ReqID: *env.ReqID}
	if env.Success != nil {
		ack.Success = *env.Success
	}
	ack.Error = env.Error

	if len(env.Result) > 0 {
		var res AckResult
		if err := json.Unmarshal(env.Result, &res); err != nil {
			return SubscribeAck{}, ResultInvalidSchema
		}
		if res.Channel != ChannelTrade && res.Channel != ChannelBook && res.Channel != "" {
			return SubscribeAck{}, ResultInvalidValue
		}
		ack.Result = res
	} else if ack.Success {
		// A success ack with no result block is a schema violation: the
		// spec only tolerates omission on the failure path.
		return SubscribeAck{}, ResultInvalidSchema
	}
	return ack, ResultParsed
}

// ParsePong adapts a pong control message, reading req_id and time_in from
// the object it is given. A pong is not required to carry a result block:
// the router passes the result block when present and the whole message
// otherwise, so a missing block is an intentional exemption, not a failure.
func ParsePong(raw []byte) (Pong, Result) {
	var wire struct {
		ReqID  uint64 `json:"req_id"`
		TimeIn string `json:"time_in"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Pong{}, ResultInvalidSchema
	}
	ts, ok := parseRFC3339(wire.TimeIn)
	if !ok {
		return Pong{}, ResultInvalidValue
	}
	return Pong{ReqID: wire.ReqID, Timestamp: ts}, ResultParsed
}

// ParseStatus adapts a status data-plane message.
func ParseStatus(raw []byte) (Status, Result) {
	var wire struct {
		Data []struct {
			System    string `json:"system"`
			Version   string `json:"version"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Status{}, ResultInvalidSchema
	}
	if len(wire.Data) == 0 {
		return Status{}, ResultIgnored
	}
	d := wire.Data[0]
	if d.System == "" {
		return Status{}, ResultInvalidValue
	}
	ts, ok := parseRFC3339(d.Timestamp)
	if !ok {
		return Status{}, ResultInvalidValue
	}
	return Status{System: d.System, Version: d.Version, Timestamp: ts}, ResultParsed
}

// ParseRejection adapts a failure envelope (subscribe/unsubscribe ack
// without success, or a bare protocol-level failure with no result block)
// into a RejectionNotice.
func ParseRejection(env Envelope) (RejectionNotice, Result) {
	if env.Error == "" {
		return RejectionNotice{}, ResultInvalidSchema
	}
	notice := RejectionNotice{Error: env.Error, Symbol: env.Symbol}
	if env.ReqID != nil {
		notice.ReqID = *env.ReqID
		notice.HasReqID = true
	}
	if notice.Symbol == "" && len(env.Result) > 0 {
		var res struct {
			Symbol string `json:"symbol"`
		}
		if json.Unmarshal(env.Result, &res) == nil {
			notice.Symbol = res.Symbol
		}
	}
	return notice, ResultParsed
}

// tradeWire is the raw decode shape for a trade data-plane message.
type tradeWire struct {
	Type string `json:"type"`
	Data []struct {
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		Price     string `json:"price"`
		Qty       string `json:"qty"`
		Timestamp string `json:"timestamp"`
		OrdType   string `json:"ord_type"`
		TradeID   string `json:"trade_id"`
	} `json:"data"`
}

// ParseTradeMessage adapts a trade data-plane message. Unknown sides are
// rejected as InvalidValue; an empty data array is Ignored.
func ParseTradeMessage(raw []byte) (TradeMessage, Result) {
	var wire tradeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return TradeMessage{}, ResultInvalidSchema
	}
	if len(wire.Data) == 0 {
		return TradeMessage{}, ResultIgnored
	}
	msg := TradeMessage{
		Symbol:   wire.Data[0].Symbol,
		Snapshot: wire.Type == "snapshot",
		Trades:   make([]TradeRecord, 0, len(wire.Data)),
	}
	for _, d := range wire.Data {
		if d.Symbol == "" {
			return TradeMessage{}, ResultInvalidValue
		}
		side := TradeSide(d.Side)
		if side != TradeSideBuy && side != TradeSideSell {
			return TradeMessage{}, ResultInvalidValue
		}
		price, err := decimalFromString(d.Price)
		if err != nil {
			return TradeMessage{}, ResultInvalidValue
		}
		qty, err := decimalFromString(d.Qty)
		if err != nil {
			return TradeMessage{}, ResultInvalidValue
		}
		ts, ok := parseRFC3339(d.Timestamp)
		if !ok {
			return TradeMessage{}, ResultInvalidValue
		}
		msg.Trades = append(msg.Trades, TradeRecord{
			Symbol:    d.Symbol,
			Side:      side,
			Price:     price,
			Qty:       qty,
			Timestamp: ts,
			OrdType:   d.OrdType,
			TradeID:   d.TradeID,
		})
	}
	return msg, ResultParsed
}

// bookWire is the raw decode shape for a book data-plane message.
type bookWire struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string `json:"symbol"`
		Asks   []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"asks"`
		Bids []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"bids"`
		Checksum  uint32 `json:"checksum"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// ParseBookMessage adapts a book data-plane message. At least one of
// asks/bids must be present; otherwise the message is InvalidValue.
func ParseBookMessage(raw []byte) (BookMessage, Result) {
	var wire bookWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return BookMessage{}, ResultInvalidSchema
	}
	if len(wire.Data) != 1 {
		return BookMessage{}, ResultInvalidSchema
	}
	d := wire.Data[0]
	if d.Symbol == "" {
		return BookMessage{}, ResultInvalidValue
	}
	if len(d.Asks) == 0 && len(d.Bids) == 0 {
		return BookMessage{}, ResultInvalidValue
	}
	ts, ok := parseRFC3339(d.Timestamp)
	if !ok {
		return BookMessage{}, ResultInvalidValue
	}
	msg := BookMessage{
		Symbol:    d.Symbol,
		Checksum:  d.Checksum,
		Timestamp: ts,
		Snapshot:  wire.Type == "snapshot",
	}
	for _, lvl := range d.Asks {
		p, err := decimalFromString(lvl.Price)
		if err != nil {
			return BookMessage{}, ResultInvalidValue
		}
		q, err := decimalFromString(lvl.Qty)
		if err != nil {
			return BookMessage{}, ResultInvalidValue
		}
		msg.Asks = append(msg.Asks, BookLevel{Price: p, Qty: q})
	}
	for _, lvl := range d.Bids {
		p, err := decimalFromString(lvl.Price)
		if err != nil {
			return BookMessage{}, ResultInvalidValue
		}
		q, err := decimalFromString(lvl.Qty)
		if err != nil {
			return BookMessage{}, ResultInvalidValue
		}
		msg.Bids = append(msg.Bids, BookLevel{Price: p, Qty: q})
	}
	return msg, ResultParsed
}
