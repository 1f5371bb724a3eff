// Package router dispatches decoded wire messages by method then channel,
// pushing typed records into per-kind rings or last-value cells.
package router

import (
	"sync"
	"time"

	"github.com/coachpo/krakenstream/internal/connection"
	"github.com/coachpo/krakenstream/internal/observability"
	"github.com/coachpo/krakenstream/internal/ring"
	"github.com/coachpo/krakenstream/internal/schema"
)

// Config sizes the router's typed rings. Defaults match the configuration
// table: trade/book 1024, rejection 32, ack rings 32.
type Config struct {
	TradeRingSize     int
	BookRingSize      int
	RejectionRingSize int
	AckRingSize       int
}

// DefaultConfig returns the spec-mandated ring sizes.
func DefaultConfig() Config {
	return Config{
		TradeRingSize:     1024,
		BookRingSize:      1024,
		RejectionRingSize: 32,
		AckRingSize:       32,
	}
}

// Router owns the typed rings and last-value cells the session drains
// through pop_*/drain_*/try_load_* operations.
type Router struct {
	trade *ring.Ring[schema.TradeMessage]
	book  *ring.Ring[schema.BookMessage]

	rejections *ring.Ring[schema.RejectionNotice]

	tradeSubAck   *ring.Ring[schema.SubscribeAck]
	tradeUnsubAck *ring.Ring[schema.SubscribeAck]
	bookSubAck    *ring.Ring[schema.SubscribeAck]
	bookUnsubAck  *ring.Ring[schema.SubscribeAck]

	mu         sync.Mutex
	pong       schema.Pong
	havePong   bool
	status     schema.Status
	haveStatus bool
}

// New allocates a Router with its rings pre-sized per cfg.
func New(cfg Config) *Router {
	return &Router{
		trade:         ring.New[schema.TradeMessage](cfg.TradeRingSize),
		book:          ring.New[schema.BookMessage](cfg.BookRingSize),
		rejections:    ring.New[schema.RejectionNotice](cfg.RejectionRingSize),
		tradeSubAck:   ring.New[schema.SubscribeAck](cfg.AckRingSize),
		tradeUnsubAck: ring.New[schema.SubscribeAck](cfg.AckRingSize),
		bookSubAck:    ring.New[schema.SubscribeAck](cfg.AckRingSize),
		bookUnsubAck:  ring.New[schema.SubscribeAck](cfg.AckRingSize),
	}
}

// Route decodes and dispatches one raw wire message. conn receives
// liveness bookkeeping (message/heartbeat timestamps, rx counter); its
// state is otherwise untouched. Unsub/sub acks for unsubscribe carry the
// same ack shape as subscribe — the channel field plus req_id disambiguate
// which pending request they complete.
func (r *Router) Route(conn *connection.Connection, raw []byte, isUnsubscribe func(reqID uint64) bool, now time.Time) schema.Result {
	env, result := schema.ParseEnvelope(raw)
	if result != schema.ResultParsed {
		observability.Log().Debug("dropping malformed message", observability.Field{Key: "result", Value: int(result)})
		return schema.ResultIgnored
	}

	conn.NoteMessageReceived(now)

	if env.Method != "" {
		return r.routeControl(conn, env, raw, isUnsubscribe, now)
	}
	return r.routeData(conn, env, raw, now)
}

func (r *Router) routeControl(conn *connection.Connection, env schema.Envelope, raw []byte, isUnsubscribe func(reqID uint64) bool, now time.Time) schema.Result {
	if env.Method == schema.MethodPong {
		payload := []byte(env.Result)
		if len(payload) == 0 {
			payload = raw
		}
		pong, result := schema.ParsePong(payload)
		if result != schema.ResultParsed {
			return schema.ResultIgnored
		}
		r.mu.Lock()
		r.pong, r.havePong = pong, true
		r.mu.Unlock()
		return schema.ResultDelivered
	}

	// subscribe/unsubscribe acks: a failure ack may omit `result` entirely;
	// fall through to the rejection-notice parser in that case.
	if len(env.Result) == 0 && (env.Success == nil || !*env.Success) {
		notice, result := schema.ParseRejection(env)
		if result != schema.ResultParsed {
			return schema.ResultIgnored
		}
		if !r.rejections.Push(notice) {
			return schema.ResultBackpressure
		}
		return schema.ResultDelivered
	}

	ack, result := schema.ParseSubscribeAck(env)
	if result != schema.ResultParsed {
		return schema.ResultIgnored
	}

	var reqID uint64
	if env.ReqID != nil {
		reqID = *env.ReqID
	}
	unsub := isUnsubscribe != nil && isUnsubscribe(reqID)

	var target *ring.Ring[schema.SubscribeAck]
	switch {
	case ack.Result.Channel == schema.ChannelBook && unsub:
		target = r.bookUnsubAck
	case ack.Result.Channel == schema.ChannelBook:
		target = r.bookSubAck
	case ack.Result.Channel == schema.ChannelTrade && unsub:
		target = r.tradeUnsubAck
	default:
		target = r.tradeSubAck
	}
	if !target.Push(ack) {
		return schema.ResultBackpressure
	}
	return schema.ResultDelivered
}

func (r *Router) routeData(conn *connection.Connection, env schema.Envelope, raw []byte, now time.Time) schema.Result {
	switch env.Channel {
	case schema.ChannelHeartbeat:
		conn.NoteHeartbeat(now)
		return schema.ResultDelivered
	case schema.ChannelTrade:
		msg, result := schema.ParseTradeMessage(raw)
		if result != schema.ResultParsed {
			return schema.ResultIgnored
		}
		if !r.trade.Push(msg) {
			return schema.ResultBackpressure
		}
		return schema.ResultDelivered
	case schema.ChannelBook:
		msg, result := schema.ParseBookMessage(raw)
		if result != schema.ResultParsed {
			return schema.ResultIgnored
		}
		if !r.book.Push(msg) {
			return schema.ResultBackpressure
		}
		return schema.ResultDelivered
	case schema.ChannelStatus:
		status, result := schema.ParseStatus(raw)
		if result != schema.ResultParsed {
			return schema.ResultIgnored
		}
		r.mu.Lock()
		r.status, r.haveStatus = status, true
		r.mu.Unlock()
		return schema.ResultDelivered
	default:
		return schema.ResultIgnored
	}
}

// PopTrade / PopBook / PopRejection are FIFO pull operations by ring order.
func (r *Router) PopTrade(out *schema.TradeMessage) bool     { return r.trade.Pop(out) }
func (r *Router) PopBook(out *schema.BookMessage) bool        { return r.book.Pop(out) }
func (r *Router) PopRejection(out *schema.RejectionNotice) bool { return r.rejections.Pop(out) }

// PopTradeSubAck / PopTradeUnsubAck / PopBookSubAck / PopBookUnsubAck drain
// the per-channel ack rings the session consumes during poll().
func (r *Router) PopTradeSubAck(out *schema.SubscribeAck) bool   { return r.tradeSubAck.Pop(out) }
func (r *Router) PopTradeUnsubAck(out *schema.SubscribeAck) bool { return r.tradeUnsubAck.Pop(out) }
func (r *Router) PopBookSubAck(out *schema.SubscribeAck) bool    { return r.bookSubAck.Pop(out) }
func (r *Router) PopBookUnsubAck(out *schema.SubscribeAck) bool  { return r.bookUnsubAck.Pop(out) }

// TryLoadPong / TryLoadStatus give last-value semantics: a miss is not an
// error.
func (r *Router) TryLoadPong(out *schema.Pong) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.havePong {
		return false
	}
	*out = r.pong
	return true
}

func (r *Router) TryLoadStatus(out *schema.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveStatus {
		return false
	}
	*out = r.status
	return true
}

// RejectionsEmpty reports whether the rejection buffer has been fully
// drained — the session uses this to enforce the must-drain invariant.
func (r *Router) RejectionsEmpty() bool {
	return r.rejections.Empty()
}

// ContextEmpty reports whether every control-plane ack ring has been
// drained (true when none still carries an entry), matching the
// parser-context-empty clause of session-level is_idle().
func (r *Router) ContextEmpty() bool {
	return r.tradeSubAck.Empty() && r.tradeUnsubAck.Empty() && r.bookSubAck.Empty() && r.bookUnsubAck.Empty()
}
