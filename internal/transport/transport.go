package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/krakenstream/internal/observability"
	"github.com/coachpo/krakenstream/internal/ring"
	"github.com/coachpo/krakenstream/internal/urlparse"
)

// Options configures a Transport's resource shape. New substitutes
// DefaultOptions as a whole when MessageRingSize is not positive; other
// zero fields are used as given.
type Options struct {
	MessageRingSize int
	ControlRingSize int
	SlotCapacity    int
	Backpressure    BackpressureMode
	DialTimeout     time.Duration
}

// DefaultOptions mirrors the configuration defaults: 1024-slot data rings,
// a 16-slot control ring, 64KiB message slots, Relaxed backpressure.
func DefaultOptions() Options {
	return Options{
		MessageRingSize: 1024,
		ControlRingSize: 16,
		SlotCapacity:    64 * 1024,
		Backpressure:    ModeRelaxed,
		DialTimeout:     10 * time.Second,
	}
}

// Transport owns the receive task for a single WebSocket connection. It is
// not reused across connections: the FSM creates a fresh Transport on
// entering Connecting and discards it no later than leaving Disconnected or
// re-entering Connecting.
type Transport struct {
	opts   Options
	connID uuid.UUID

	messages *ring.Ring[DataBlock]
	events   *ring.Ring[ControlEvent]

	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     conc.WaitGroup

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	limiter *rate.Limiter

	currentPeek *DataBlock
}

// New allocates a Transport with its rings pre-sized. Connect must be
// called before Send/receive activity begins.
func New(opts Options) *Transport {
	if opts.MessageRingSize <= 0 {
		opts = DefaultOptions()
	}
	t := &Transport{
		opts:     opts,
		connID:   uuid.New(),
		messages: ring.New[DataBlock](opts.MessageRingSize),
		events:   ring.New[ControlEvent](opts.ControlRingSize),
		limiter:  rate.NewLimiter(rate.Every(2*time.Millisecond), 1),
	}
	for i := 0; i < t.messages.Capacity(); i++ {
		slot, _ := t.messages.TryAcquireProducerSlot()
		*slot = NewDataBlock(opts.SlotCapacity)
	}
	t.messages.Clear()
	return t
}

// ConnID returns this connection's correlation id. The transport attaches
// it to its own log entries; it is not written into frames or telemetry
// attributes.
func (t *Transport) ConnID() uuid.UUID {
	return t.connID
}

// Connect dials host:port/path and starts the receive task. It blocks
// until the handshake completes or fails.
func (t *Transport) Connect(ctx context.Context, ep urlparse.Endpoint) ErrorKind {
	scheme := "ws"
	if ep.Secure {
		scheme = "wss"
	}
	url := scheme + "://" + ep.Host + ":" + ep.Port + ep.Path

	dialCtx, dialCancel := context.WithTimeout(ctx, t.opts.DialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrorTimeout
		}
		return ErrorConnectionFailed
	}
	conn.SetReadLimit(int64(t.opts.SlotCapacity) * 2)

	runCtx, cancel := context.WithCancel(context.Background())
	t.conn = conn
	t.cancel = cancel
	t.closed.Store(false)

	t.wg.Go(func() {
		t.runReceive(runCtx)
	})
	return ErrorNone
}

// Send writes bytes as a single text frame. Allowed only between a
// successful Connect and Close.
func (t *Transport) Send(ctx context.Context, data []byte) bool {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.conn == nil || t.closed.Load() {
		return false
	}
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return false
	}
	return true
}

// Close stops the receive task and releases the connection. Idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.cancel != nil {
			t.cancel()
		}
		if t.conn != nil {
			_ = t.conn.Close(websocket.StatusNormalClosure, "local close")
		}
		t.wg.Wait()
	})
}

// PollEvent pulls the next pending control event, if any.
func (t *Transport) PollEvent(out *ControlEvent) bool {
	return t.events.Pop(out)
}

// PeekMessage returns a pointer to the oldest committed message slot
// without removing it. The pointer is valid only until ReleaseMessage.
func (t *Transport) PeekMessage() (*DataBlock, bool) {
	return t.messages.PeekConsumerSlot()
}

// ReleaseMessage frees the slot most recently returned by PeekMessage.
func (t *Transport) ReleaseMessage() {
	t.messages.ReleaseConsumerSlot()
}

// ClearMessages drops all pending messages. Nothing in the module calls it:
// every reconnect builds a fresh Transport, so no message from a prior
// epoch is delivered under the new one.
func (t *Transport) ClearMessages() {
	t.messages.Clear()
}

func (t *Transport) emitEvent(ev ControlEvent) bool {
	return t.events.Push(ev)
}

func (t *Transport) runReceive(ctx context.Context) {
	attempts := 0
	for {
		slot, ok := t.acquireSlot(ctx, &attempts)
		if !ok {
			// Backpressure escalation already emitted Error+Close, or the
			// context was cancelled locally.
			if ctx.Err() != nil {
				t.finishReceive(ErrorLocalShutdown)
			}
			return
		}

		msgType, data, err := t.conn.Read(ctx)
		if err != nil {
			kind := classifyReadError(ctx, err)
			t.finishReceive(kind)
			return
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}
		if len(data) > len(slot.Data) {
			t.finishReceive(ErrorProtocolError)
			return
		}
		slot.Size = uint32(copy(slot.Data, data))
		t.messages.CommitProducerSlot()
		attempts = 0
	}
}

// acquireSlot reserves a producer slot according to the configured
// backpressure policy. Returns false if the policy gave up (ZeroTolerance)
// or the context was cancelled while waiting.
func (t *Transport) acquireSlot(ctx context.Context, attempts *int) (*DataBlock, bool) {
	for {
		if slot, ok := t.messages.TryAcquireProducerSlot(); ok {
			return slot, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}

		switch t.opts.Backpressure {
		case ModeZeroTolerance:
			// The connection FSM turns this Error(Backpressure) into both
			// the edge-triggered BackpressureDetected signal and the
			// retry-classification input; the transport itself only needs
			// to report the fact once before closing.
			t.emitEvent(ControlEvent{Kind: ControlError, Error: ErrorBackpressure})
			t.emitEvent(ControlEvent{Kind: ControlClose})
			return nil, false
		case ModeStrict:
			*attempts++
			if *attempts == 1 {
				t.emitEvent(ControlEvent{Kind: ControlError, Error: ErrorBackpressure})
			}
			runtimeGosched()
		case ModeRelaxed:
			*attempts++
			if *attempts == relaxedSignalThreshold {
				t.emitEvent(ControlEvent{Kind: ControlError, Error: ErrorBackpressure})
			}
			if *attempts < relaxedSignalThreshold {
				runtimeGosched()
			} else if err := t.limiter.Wait(ctx); err != nil {
				return nil, false
			}
		default:
			runtimeGosched()
		}
	}
}

func (t *Transport) finishReceive(kind ErrorKind) {
	if kind != ErrorNone {
		t.emitEvent(ControlEvent{Kind: ControlError, Error: kind})
	}
	if !t.emitEvent(ControlEvent{Kind: ControlClose}) {
		observability.Log().Error("control ring overflow on close emission", observability.Field{Key: "conn_id", Value: t.connID.String()})
	}
}

func classifyReadError(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil {
		return ErrorLocalShutdown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	if status := websocket.CloseStatus(err); status != -1 {
		return ErrorRemoteClosed
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorTransportFailure
}
