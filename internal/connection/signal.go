// Package connection implements the transport lifecycle FSM: five states,
// edge-triggered signals, epoch/liveness/retry bookkeeping. It never
// exposes its internal state enum to callers — only the signal ring and
// the progress counters (epoch, rx/tx/hb) are observable.
package connection

// Signal is an externally observable, edge-triggered fact about the
// connection. Signals are best-effort: the signal ring drops the oldest
// entry on overflow, and missing one has no semantic impact. Correctness
// must be inferred from Epoch/RxMessages/TxMessages/HbMessages, never from
// signals.
type Signal int

const (
	SignalNone Signal = iota
	SignalConnected
	SignalDisconnected
	SignalRetryImmediate
	SignalRetryScheduled
	SignalLivenessThreatened
	SignalBackpressureDetected
)

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "None"
	case SignalConnected:
		return "Connected"
	case SignalDisconnected:
		return "Disconnected"
	case SignalRetryImmediate:
		return "RetryImmediate"
	case SignalRetryScheduled:
		return "RetryScheduled"
	case SignalLivenessThreatened:
		return "LivenessThreatened"
	case SignalBackpressureDetected:
		return "BackpressureDetected"
	default:
		return "Unknown"
	}
}

// State is the internal lifecycle state. It is never surfaced to callers;
// session and application code only ever see signals and counters.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateWaitingReconnect
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateWaitingReconnect:
		return "WaitingReconnect"
	default:
		return "Unknown"
	}
}

// DisconnectReason records why the most recent disconnect happened.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonLocalClose
	ReasonLivenessTimeout
	ReasonTransportError
)

// Epoch counts completed successful connection establishments. Strictly
// increasing; incremented exactly once per entry into Connected.
type Epoch uint64
