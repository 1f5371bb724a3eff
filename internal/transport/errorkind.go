// Package transport owns the WebSocket receive task: it converts frames
// into ring activity and classifies failures into a closed error taxonomy
// the connection FSM can retry against.
package transport

// ErrorKind is the single closed set of error categories used throughout
// the core. Nothing downstream switches on raw OS or library errors; they
// are classified into one of these at the transport boundary.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorInvalidURL
	ErrorInvalidState
	ErrorConnectionFailed
	ErrorHandshakeFailed
	ErrorTimeout
	ErrorRemoteClosed
	ErrorBackpressure
	ErrorTransportFailure
	ErrorProtocolError
	ErrorCancelled
	ErrorLocalShutdown
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "None"
	case ErrorInvalidURL:
		return "InvalidUrl"
	case ErrorInvalidState:
		return "InvalidState"
	case ErrorConnectionFailed:
		return "ConnectionFailed"
	case ErrorHandshakeFailed:
		return "HandshakeFailed"
	case ErrorTimeout:
		return "Timeout"
	case ErrorRemoteClosed:
		return "RemoteClosed"
	case ErrorBackpressure:
		return "Backpressure"
	case ErrorTransportFailure:
		return "TransportFailure"
	case ErrorProtocolError:
		return "ProtocolError"
	case ErrorCancelled:
		return "Cancelled"
	case ErrorLocalShutdown:
		return "LocalShutdown"
	default:
		return "Unknown"
	}
}

// ShouldRetry classifies whether a reconnect attempt is worthwhile for the
// given error kind. It is a pure predicate with no side effects; the
// connection FSM is the only caller.
func ShouldRetry(kind ErrorKind) bool {
	switch kind {
	case ErrorConnectionFailed, ErrorHandshakeFailed, ErrorTimeout, ErrorBackpressure, ErrorRemoteClosed, ErrorTransportFailure:
		return true
	case ErrorInvalidURL, ErrorInvalidState, ErrorCancelled, ErrorProtocolError, ErrorLocalShutdown:
		return false
	default:
		// Conservative default for unknown-bad: retry.
		return true
	}
}
