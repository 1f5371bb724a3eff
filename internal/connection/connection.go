package connection

import (
	"context"
	"time"

	"github.com/coachpo/krakenstream/internal/ring"
	"github.com/coachpo/krakenstream/internal/telemetry"
	"github.com/coachpo/krakenstream/internal/transport"
	"github.com/coachpo/krakenstream/internal/urlparse"
)

// Config configures a Connection's liveness windows, signal ring size, and
// the Transport options it hands to each new transport instance.
type Config struct {
	MessageTimeout     time.Duration
	HeartbeatTimeout   time.Duration
	WarningRatio       float64
	SignalRingCapacity int
	Transport          transport.Options
}

// DefaultConfig matches the configuration defaults: 15s/15s timeouts, 0.8
// warning ratio, a 16-slot signal ring.
func DefaultConfig() Config {
	return Config{
		MessageTimeout:     15 * time.Second,
		HeartbeatTimeout:   15 * time.Second,
		WarningRatio:       0.8,
		SignalRingCapacity: 16,
		Transport:          transport.DefaultOptions(),
	}
}

// Connection is the lifecycle FSM described in the component design: five
// states, edge-triggered signals, epoch/rx/tx/hb counters, and a retry
// cycle with per-error-class backoff. Callers never see State directly.
type Connection struct {
	cfg Config

	state            State
	epoch            Epoch
	rxMessages       uint64
	txMessages       uint64
	hbMessages       uint64
	disconnectReason DisconnectReason

	endpoint  urlparse.Endpoint
	transport *transport.Transport

	signals *ring.Ring[Signal]
	backoff *backoffSet
	live    *liveness

	retryDeadline time.Time
	retryArmed    bool
	immediateUsed bool

	counter telemetry.Counter
}

// New constructs a Connection in the Disconnected state. Metric
// increments are discarded until SetCounter is called.
func New(cfg Config) *Connection {
	if cfg.SignalRingCapacity <= 0 {
		cfg = DefaultConfig()
	}
	return &Connection{
		cfg:     cfg,
		state:   StateDisconnected,
		signals: ring.New[Signal](cfg.SignalRingCapacity),
		backoff: newBackoffSet(),
		live:    newLiveness(cfg.MessageTimeout, cfg.HeartbeatTimeout, cfg.WarningRatio),
		counter: telemetry.NoopCounter{},
	}
}

// SetCounter wires a metrics backend in place of the default no-op. Call
// once, before Open, from the application's telemetry setup.
func (c *Connection) SetCounter(counter telemetry.Counter) {
	if counter == nil {
		counter = telemetry.NoopCounter{}
	}
	c.counter = counter
}

// Epoch returns the current connection epoch.
func (c *Connection) Epoch() Epoch { return c.epoch }

// RxMessages returns the count of inbound messages recorded through
// NoteMessageReceived (one per routed message whose envelope parsed)
// across the life of the connection.
func (c *Connection) RxMessages() uint64 { return c.rxMessages }

// TxMessages returns the count of frames successfully sent.
func (c *Connection) TxMessages() uint64 { return c.txMessages }

// HbMessages returns the count of heartbeats observed.
func (c *Connection) HbMessages() uint64 { return c.hbMessages }

// DisconnectReason reports why the most recent disconnect occurred.
func (c *Connection) DisconnectReason() DisconnectReason { return c.disconnectReason }

// PollSignal pulls the next pending edge-triggered signal, if any.
func (c *Connection) PollSignal(out *Signal) bool {
	return c.signals.Pop(out)
}

// IsIdle reports true when no signal is pending and, while
// WaitingReconnect, no retry timer has expired yet. It does not imply
// closed, drained, or subscription-complete.
func (c *Connection) IsIdle() bool {
	if !c.signals.Empty() {
		return false
	}
	if c.state == StateWaitingReconnect {
		return time.Now().Before(c.retryDeadline)
	}
	return true
}

func (c *Connection) emit(sig Signal) {
	if !c.signals.Push(sig) {
		// Oldest signal dropped on overflow is the documented, accepted
		// behavior: signals are best-effort hints, never authoritative.
		var discard Signal
		c.signals.Pop(&discard)
		c.signals.Push(sig)
	}
}

// Open validates url and drives Disconnected → Connecting → Connected (or
// into the retry cycle on failure). Returns ErrorInvalidState if not
// currently Disconnected, ErrorInvalidURL if url fails validation,
// otherwise the classified failure kind (ErrorNone on success).
func (c *Connection) Open(ctx context.Context, url string) transport.ErrorKind {
	if c.state != StateDisconnected {
		return transport.ErrorInvalidState
	}
	ep, ok := urlparse.Parse(url)
	if !ok {
		return transport.ErrorInvalidURL
	}
	c.endpoint = ep
	c.state = StateConnecting
	return c.attemptConnect(ctx)
}

// attemptConnect creates a fresh Transport and dials it, applying the
// transition table for both the initial connect and retry-driven
// reconnects.
func (c *Connection) attemptConnect(ctx context.Context) transport.ErrorKind {
	tr := transport.New(c.cfg.Transport)
	kind := tr.Connect(ctx, c.endpoint)
	if kind == transport.ErrorNone {
		c.transport = tr
		c.enterConnected()
		return transport.ErrorNone
	}
	c.onConnectFailure(kind)
	return kind
}

func (c *Connection) enterConnected() {
	c.state = StateConnected
	c.epoch++
	c.live.resetAt(time.Now())
	c.backoff.resetAll()
	c.immediateUsed = false
	c.retryArmed = false
	c.emit(SignalConnected)
}

func (c *Connection) onConnectFailure(kind transport.ErrorKind) {
	if !transport.ShouldRetry(kind) {
		c.state = StateDisconnected
		c.disconnectReason = ReasonTransportError
		return
	}
	if !c.immediateUsed {
		c.armRetry(0)
		c.immediateUsed = true
		c.emit(SignalRetryImmediate)
		c.counter.Inc(context.Background(), telemetry.MetricRetryImmediate, 1)
	} else {
		delay := c.backoff.next(kind)
		c.armRetry(delay)
		c.emit(SignalRetryScheduled)
		c.counter.Inc(context.Background(), telemetry.MetricRetryScheduled, 1)
	}
	c.state = StateWaitingReconnect
}

func (c *Connection) armRetry(delay time.Duration) {
	c.retryDeadline = time.Now().Add(delay)
	c.retryArmed = true
}

// Close requests a graceful shutdown. Idempotent: calling it from
// Disconnected is a no-op.
func (c *Connection) Close() {
	switch c.state {
	case StateConnected:
		c.state = StateDisconnecting
		if c.transport != nil {
			c.transport.Close()
		}
		c.finishLocalClose()
	case StateWaitingReconnect, StateConnecting:
		c.state = StateDisconnected
		c.disconnectReason = ReasonLocalClose
	case StateDisconnecting, StateDisconnected:
		// already idempotent
	}
}

func (c *Connection) finishLocalClose() {
	c.state = StateDisconnected
	c.disconnectReason = ReasonLocalClose
	c.emit(SignalDisconnected)
}

// Send transmits bytes on the active transport. Returns false unless the
// connection is Connected.
func (c *Connection) Send(ctx context.Context, data []byte) bool {
	if c.state != StateConnected || c.transport == nil {
		return false
	}
	ok := c.transport.Send(ctx, data)
	if ok {
		c.txMessages++
		c.counter.Inc(ctx, telemetry.MetricTxMessages, 1)
	}
	return ok
}

// NoteMessageReceived records an application-level message arrival for
// liveness purposes and bumps rx_messages. Called by the router after a
// successful parse.
func (c *Connection) NoteMessageReceived(now time.Time) {
	c.rxMessages++
	c.live.noteMessage(now)
	c.counter.Inc(context.Background(), telemetry.MetricRxMessages, 1)
}

// NoteHeartbeat records a heartbeat arrival for liveness purposes and bumps
// hb_messages.
func (c *Connection) NoteHeartbeat(now time.Time) {
	c.hbMessages++
	c.live.noteHeartbeat(now)
	c.counter.Inc(context.Background(), telemetry.MetricHeartbeats, 1)
}

// PeekMessage / ReleaseMessage / ClearMessages expose the active
// transport's message ring to the session/router layer.
func (c *Connection) PeekMessage() (*transport.DataBlock, bool) {
	if c.transport == nil {
		return nil, false
	}
	return c.transport.PeekMessage()
}

func (c *Connection) ReleaseMessage() {
	if c.transport != nil {
		c.transport.ReleaseMessage()
	}
}

func (c *Connection) ClearMessages() {
	if c.transport != nil {
		c.transport.ClearMessages()
	}
}

// Poll drives the FSM: it services the retry timer, drains pending
// transport control events, and evaluates liveness while Connected. It
// returns the current epoch, matching the session-level poll() contract.
func (c *Connection) Poll(ctx context.Context) Epoch {
	now := time.Now()

	if c.state == StateWaitingReconnect && c.retryArmed && !now.Before(c.retryDeadline) {
		c.retryArmed = false
		c.state = StateConnecting
		c.attemptConnect(ctx)
		return c.epoch
	}

	if c.transport != nil {
		var ev transport.ControlEvent
		for c.transport.PollEvent(&ev) {
			c.handleControlEvent(ev)
		}
	}

	if c.state == StateConnected {
		threatened, expired := c.live.check(now)
		if expired {
			c.disconnectReason = ReasonLivenessTimeout
			c.state = StateDisconnecting
			if c.transport != nil {
				c.transport.Close()
			}
			c.onDisconnectedWhileLive(transport.ErrorTimeout)
		} else if threatened {
			c.emit(SignalLivenessThreatened)
			c.counter.Inc(ctx, telemetry.MetricLivenessEvent, 1)
		}
	}

	return c.epoch
}

func (c *Connection) handleControlEvent(ev transport.ControlEvent) {
	switch ev.Kind {
	case transport.ControlError:
		if ev.Error == transport.ErrorBackpressure {
			c.emit(SignalBackpressureDetected)
			c.counter.Inc(context.Background(), telemetry.MetricBackpressure, 1)
		}
	case transport.ControlClose:
		if c.state == StateConnected {
			c.onDisconnectedWhileLive(transport.ErrorRemoteClosed)
		}
	}
}

// onDisconnectedWhileLive handles a TClosed-equivalent event while
// Connected: retriable-and-not-local failures enter the retry cycle,
// everything else settles in Disconnected with Disconnected emitted
// exactly once.
func (c *Connection) onDisconnectedWhileLive(kind transport.ErrorKind) {
	local := kind == transport.ErrorLocalShutdown || c.disconnectReason == ReasonLocalClose
	if transport.ShouldRetry(kind) && !local {
		c.onConnectFailure(kind)
		return
	}
	c.state = StateDisconnected
	if c.disconnectReason == ReasonNone {
		c.disconnectReason = ReasonTransportError
	}
	c.emit(SignalDisconnected)
}
