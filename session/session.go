// Package session composes the connection FSM, the two per-channel
// subscription managers, the replay database, and the parser/router into
// the public streaming client surface. It is the only package an
// application is expected to import directly.
package session

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/krakenstream/config"
	"github.com/coachpo/krakenstream/internal/channel"
	"github.com/coachpo/krakenstream/internal/connection"
	"github.com/coachpo/krakenstream/internal/observability"
	"github.com/coachpo/krakenstream/internal/replay"
	"github.com/coachpo/krakenstream/internal/router"
	"github.com/coachpo/krakenstream/internal/router/reqid"
	"github.com/coachpo/krakenstream/internal/schema"
	"github.com/coachpo/krakenstream/internal/telemetry"
	"github.com/coachpo/krakenstream/internal/transport"
)

// LivenessPolicy selects whether the session issues a ping when the
// connection signals LivenessThreatened.
type LivenessPolicy int

const (
	LivenessPassive LivenessPolicy = iota
	LivenessActive
)

// SubscribeRequest describes a subscribe/unsubscribe intent for one
// channel. Depth only applies to ChannelBook; it is ignored otherwise. A
// zero ReqID means "assign a fresh one".
type SubscribeRequest struct {
	Channel schema.Channel
	Symbols []string
	Depth   int
	ReqID   uint64
}

func backpressureMode(name config.BackpressureModeName) transport.BackpressureMode {
	switch name {
	case config.BackpressureStrict:
		return transport.ModeStrict
	case config.BackpressureZeroTolerance:
		return transport.ModeZeroTolerance
	default:
		return transport.ModeRelaxed
	}
}

// Session is the public streaming client core: one WebSocket connection,
// two channel managers (trade, book), a replay database, and the
// parser/router, all driven from a single application-thread call to
// Poll.
type Session struct {
	cfg config.ClientConfig

	conn   *connection.Connection
	router *router.Router
	reqIDs *reqid.Sequence

	trade *channel.Manager
	book  *channel.Manager

	replayDB *replay.Database

	rejections []schema.RejectionNotice
	policy     LivenessPolicy
	counter    telemetry.Counter
}

// SetCounter wires a metrics backend into both the session and its
// underlying connection, replacing the default no-op.
func (s *Session) SetCounter(counter telemetry.Counter) {
	if counter == nil {
		counter = telemetry.NoopCounter{}
	}
	s.counter = counter
	s.conn.SetCounter(counter)
}

// New constructs a Session from cfg, wiring the connection's liveness
// windows, ring sizes, and backpressure policy from the configuration.
func New(cfg config.ClientConfig) *Session {
	connCfg := connection.DefaultConfig()
	connCfg.MessageTimeout = cfg.MessageTimeout
	connCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	connCfg.WarningRatio = cfg.LivenessWarningRatio
	connCfg.SignalRingCapacity = cfg.Rings.Control
	connCfg.Transport.Backpressure = backpressureMode(cfg.Backpressure)

	routerCfg := router.Config{
		TradeRingSize:     cfg.Rings.Trade,
		BookRingSize:      cfg.Rings.Book,
		RejectionRingSize: cfg.Rings.Rejection,
		AckRingSize:       cfg.Rings.Ack,
	}

	return &Session{
		cfg:      cfg,
		conn:     connection.New(connCfg),
		router:   router.New(routerCfg),
		reqIDs:   reqid.NewSequence(),
		trade:    channel.New(channel.KindTrade),
		book:     channel.New(channel.KindBook),
		replayDB: replay.New(),
		counter:  telemetry.NoopCounter{},
	}
}

// Connect drives the connection FSM and returns true if it entered
// Connected.
func (s *Session) Connect(ctx context.Context, url string) bool {
	return s.conn.Open(ctx, url) == transport.ErrorNone
}

// Close requests a graceful shutdown. Idempotent.
func (s *Session) Close() {
	s.conn.Close()
}

// managerFor returns the channel manager for ch, or nil if ch is not a
// subscribable channel.
func (s *Session) managerFor(ch schema.Channel) *channel.Manager {
	switch ch {
	case schema.ChannelTrade:
		return s.trade
	case schema.ChannelBook:
		return s.book
	default:
		return nil
	}
}

func (s *Session) symbolLimitOK(ch schema.Channel, requested int) bool {
	limits := s.cfg.SymbolLimits
	if limits.Mode != config.SymbolLimitHard {
		return true
	}
	tradeNow := s.trade.PendingSymbolCount() + s.trade.ActiveSymbolCount()
	bookNow := s.book.PendingSymbolCount() + s.book.ActiveSymbolCount()
	switch ch {
	case schema.ChannelTrade:
		if limits.MaxTrade > 0 && tradeNow+requested > limits.MaxTrade {
			observability.Log().Error("trade symbol limit exceeded",
				observability.Field{Key: "requested", Value: tradeNow + requested},
				observability.Field{Key: "max", Value: limits.MaxTrade})
			return false
		}
	case schema.ChannelBook:
		if limits.MaxBook > 0 && bookNow+requested > limits.MaxBook {
			observability.Log().Error("book symbol limit exceeded",
				observability.Field{Key: "requested", Value: bookNow + requested},
				observability.Field{Key: "max", Value: limits.MaxBook})
			return false
		}
	}
	if limits.MaxGlobal > 0 && tradeNow+bookNow+requested > limits.MaxGlobal {
		observability.Log().Error("global symbol limit exceeded",
			observability.Field{Key: "requested", Value: tradeNow + bookNow + requested},
			observability.Field{Key: "max", Value: limits.MaxGlobal})
		return false
	}
	return true
}

type wireParams struct {
	Channel schema.Channel `json:"channel"`
	Symbol  []string       `json:"symbol"`
	Depth   int            `json:"depth,omitempty"`
}

type wireRequest struct {
	Method schema.Method `json:"method"`
	ReqID  uint64        `json:"req_id"`
	Params wireParams    `json:"params"`
}

func (s *Session) send(ctx context.Context, method schema.Method, reqID uint64, ch schema.Channel, symbols []string, depth int) bool {
	payload := wireRequest{
		Method: method,
		ReqID:  reqID,
		Params: wireParams{Channel: ch, Symbol: symbols, Depth: depth},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		observability.Log().Error("encode request failed", observability.Field{Key: "error", Value: err.Error()})
		return false
	}
	return s.conn.Send(ctx, raw)
}

// Subscribe assigns a fresh request id if req.ReqID is zero, enforces the
// configured symbol-limit policy, persists replay intent, transmits the
// request, then registers the pending request with the channel manager.
// Returns reqid.InvalidID on symbol-limit overflow, an unsubscribable
// channel, or a transmit failure — in all of those cases no state is
// registered.
func (s *Session) Subscribe(ctx context.Context, req SubscribeRequest) uint64 {
	mgr := s.managerFor(req.Channel)
	if mgr == nil {
		return reqid.InvalidID
	}
	if !s.symbolLimitOK(req.Channel, len(req.Symbols)) {
		return reqid.InvalidID
	}
	id := req.ReqID
	if id == reqid.InvalidID {
		id = s.reqIDs.Next()
	}
	for _, symbol := range req.Symbols {
		s.replayDB.Add(replay.Intent{Channel: mgr.Kind(), Symbol: symbol, ReqID: id, Depth: req.Depth})
	}
	if !s.send(ctx, schema.MethodSubscribe, id, req.Channel, req.Symbols, req.Depth) {
		observability.Log().Error("failed to send subscribe request", observability.Field{Key: "req_id", Value: id})
		for _, symbol := range req.Symbols {
			s.replayDB.RemoveSymbol(mgr.Kind(), symbol)
		}
		return reqid.InvalidID
	}
	mgr.RegisterSubscription(req.Symbols, id)
	return id
}

// Unsubscribe mirrors Subscribe without replay-database registration:
// intent is removed only on confirmed server truth (a successful
// unsubscribe ack), handled in Poll.
func (s *Session) Unsubscribe(ctx context.Context, req SubscribeRequest) uint64 {
	mgr := s.managerFor(req.Channel)
	if mgr == nil {
		return reqid.InvalidID
	}
	id := req.ReqID
	if id == reqid.InvalidID {
		id = s.reqIDs.Next()
	}
	if !s.send(ctx, schema.MethodUnsubscribe, id, req.Channel, req.Symbols, req.Depth) {
		observability.Log().Error("failed to send unsubscribe request", observability.Field{Key: "req_id", Value: id})
		return reqid.InvalidID
	}
	mgr.RegisterUnsubscription(req.Symbols, id)
	return id
}

// Ping sends a control frame with the reserved ping id.
func (s *Session) Ping(ctx context.Context) bool {
	payload := struct {
		Method schema.Method `json:"method"`
		ReqID  uint64        `json:"req_id"`
	}{Method: schema.MethodPing, ReqID: reqid.PingID}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return s.conn.Send(ctx, raw)
}

// SetPolicy sets the liveness policy: Active sessions issue a ping when
// the connection signals LivenessThreatened.
func (s *Session) SetPolicy(p LivenessPolicy) {
	s.policy = p
}

// isUnsubscribeReqID reports whether reqID is a known pending unsubscribe
// request in either channel manager. Used by the router to disambiguate
// which per-channel ack ring an incoming ack belongs in.
func (s *Session) isUnsubscribeReqID(reqID uint64) bool {
	if unsub, ok := s.trade.PendingKind(reqID); ok {
		return unsub
	}
	if unsub, ok := s.book.PendingKind(reqID); ok {
		return unsub
	}
	return false
}

// Poll drives the connection FSM, handles pending signals, routes every
// raw message currently in the message ring into the typed rings,
// processes rejections and acks, and returns the current epoch.
func (s *Session) Poll(ctx context.Context) connection.Epoch {
	epoch := s.conn.Poll(ctx)

	var sig connection.Signal
	for s.conn.PollSignal(&sig) {
		s.handleSignal(ctx, sig)
	}

	for {
		block, ok := s.conn.PeekMessage()
		if !ok {
			break
		}
		s.router.Route(s.conn, block.Bytes(), s.isUnsubscribeReqID, time.Now())
		s.conn.ReleaseMessage()
	}

	s.drainRejections()
	s.drainAcks()

	return epoch
}

func (s *Session) handleSignal(ctx context.Context, sig connection.Signal) {
	switch sig {
	case connection.SignalConnected:
		s.handleConnect(ctx)
	case connection.SignalDisconnected:
		s.handleDisconnect()
	case connection.SignalLivenessThreatened:
		if s.policy == LivenessActive {
			s.Ping(ctx)
		}
	}
}

// handleConnect replays stored intent on every reconnect (epoch > 1):
// both channel managers are cleared first, since the prior connection's
// pending/active state is for a dead connection and would otherwise leave
// a stale pending request alongside the replay's freshly issued one; each
// stored (channel, symbol) then resubmits through the normal Subscribe
// path, so replayed requests converge on server truth exactly like a
// user-issued subscribe.
func (s *Session) handleConnect(ctx context.Context) {
	if s.conn.Epoch() <= 1 {
		return
	}
	s.trade.ClearAll()
	s.book.ClearAll()
	for _, kind := range []channel.Kind{channel.KindTrade, channel.KindBook} {
		intents := s.replayDB.TakeSubscriptions(kind)
		if len(intents) == 0 {
			continue
		}
		ch := schema.ChannelTrade
		if kind == channel.KindBook {
			ch = schema.ChannelBook
		}
		for _, intent := range intents {
			s.Subscribe(ctx, SubscribeRequest{Channel: ch, Symbols: []string{intent.Symbol}, Depth: intent.Depth})
		}
	}
}

func (s *Session) handleDisconnect() {
	s.trade.ClearAll()
	s.book.ClearAll()
}

// drainRejections moves the router's rejection ring into the user-visible
// buffer, applying internal bookkeeping first: each rejection tries the
// trade then the book channel manager's pending binding, then
// unconditionally tries the replay database (a rejection may target a
// symbol whose pending binding already cleared but whose replay intent
// still needs to be dropped). Overflow of the user-visible buffer is a
// hard failure: the spec treats undrained rejections as a correctness
// violation, so the session defensively closes the connection.
func (s *Session) drainRejections() {
	var notice schema.RejectionNotice
	for s.router.PopRejection(&notice) {
		if notice.HasReqID && notice.Symbol != "" {
			// The notice carries no channel field, so channel-manager
			// bookkeeping and replay-intent removal both try trade then
			// book — each store only mutates on an actual (req_id, symbol)
			// match, so trying the wrong channel first is a harmless no-op.
			pendingHit := s.trade.TryProcessRejection(notice.ReqID, notice.Symbol)
			if !pendingHit {
				pendingHit = s.book.TryProcessRejection(notice.ReqID, notice.Symbol)
			}
			if !s.replayDB.TryProcessRejection(channel.KindTrade, notice.ReqID, notice.Symbol) {
				s.replayDB.TryProcessRejection(channel.KindBook, notice.ReqID, notice.Symbol)
			}
			// No pending binding matched: this is a post-ACK rejection for a
			// symbol the session already believes is active. Intent removal
			// above is mandatory; dropping the now-contradicted active entry
			// is this session's policy choice (left open by design).
			if !pendingHit {
				s.trade.RemoveActive(notice.Symbol)
				s.book.RemoveActive(notice.Symbol)
				observability.Log().Info("post-ack rejection, dropping active entry",
					observability.Field{Key: "symbol", Value: notice.Symbol},
					observability.Field{Key: "req_id", Value: notice.ReqID})
			}
		}
		if len(s.rejections) >= s.cfg.Rings.Rejection {
			observability.Log().Error("rejection buffer overflow, closing connection defensively")
			s.conn.Close()
			return
		}
		s.rejections = append(s.rejections, notice)
		s.counter.Inc(context.Background(), telemetry.MetricRejections, 1)
	}
}

func (s *Session) drainAcks() {
	var ack schema.SubscribeAck
	for s.router.PopTradeSubAck(&ack) {
		s.trade.ProcessSubscribeAck(ack.ReqID, ack.Result.Symbol, ack.Success)
	}
	for s.router.PopTradeUnsubAck(&ack) {
		s.trade.ProcessUnsubscribeAck(ack.ReqID, ack.Result.Symbol, ack.Success)
		if ack.Success {
			s.replayDB.RemoveSymbol(channel.KindTrade, ack.Result.Symbol)
		}
	}
	for s.router.PopBookSubAck(&ack) {
		s.book.ProcessSubscribeAck(ack.ReqID, ack.Result.Symbol, ack.Success)
	}
	for s.router.PopBookUnsubAck(&ack) {
		s.book.ProcessUnsubscribeAck(ack.ReqID, ack.Result.Symbol, ack.Success)
		if ack.Success {
			s.replayDB.RemoveSymbol(channel.KindBook, ack.Result.Symbol)
		}
	}
}

// PopRejection pulls the oldest user-visible rejection, if any.
func (s *Session) PopRejection(out *schema.RejectionNotice) bool {
	if len(s.rejections) == 0 {
		return false
	}
	*out = s.rejections[0]
	s.rejections = s.rejections[1:]
	return true
}

// PopTrade pulls the oldest undelivered trade message.
func (s *Session) PopTrade(out *schema.TradeMessage) bool { return s.router.PopTrade(out) }

// PopBook pulls the oldest undelivered book message.
func (s *Session) PopBook(out *schema.BookMessage) bool { return s.router.PopBook(out) }

// TryLoadPong loads the latest pong, if any has arrived.
func (s *Session) TryLoadPong(out *schema.Pong) bool { return s.router.TryLoadPong(out) }

// TryLoadStatus loads the latest status update, if any has arrived.
func (s *Session) TryLoadStatus(out *schema.Status) bool { return s.router.TryLoadStatus(out) }

// IsIdle reports true iff the connection is idle, the parser context is
// empty, no user-visible rejections remain, and neither channel manager
// has pending requests. It does not imply the absence of active
// subscriptions.
func (s *Session) IsIdle() bool {
	return s.conn.IsIdle() &&
		s.router.ContextEmpty() &&
		len(s.rejections) == 0 &&
		!s.trade.HasPendingRequests() &&
		!s.book.HasPendingRequests()
}

// PendingProtocolRequests sums pending requests across both channels.
func (s *Session) PendingProtocolRequests() int {
	return s.trade.PendingRequestCount() + s.book.PendingRequestCount()
}

// PendingProtocolSymbols sums pending symbols across both channels.
func (s *Session) PendingProtocolSymbols() int {
	return s.trade.PendingSymbolCount() + s.book.PendingSymbolCount()
}

// Epoch returns the current connection epoch.
func (s *Session) Epoch() connection.Epoch { return s.conn.Epoch() }

// RxMessages returns the count of inbound messages whose envelope parsed,
// including heartbeats and acks.
func (s *Session) RxMessages() uint64 { return s.conn.RxMessages() }

// TxMessages returns the count of frames successfully sent.
func (s *Session) TxMessages() uint64 { return s.conn.TxMessages() }

// HbMessages returns the count of heartbeats observed.
func (s *Session) HbMessages() uint64 { return s.conn.HbMessages() }

// String renders a short diagnostic summary, useful in logs.
func (s *Session) String() string {
	return fmt.Sprintf("session{epoch=%d rx=%d tx=%d pending_reqs=%d}",
		s.Epoch(), s.RxMessages(), s.TxMessages(), s.PendingProtocolRequests())
}
