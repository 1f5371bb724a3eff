// Package reqid defines the request-id reservation range and the
// sequence generator session-level callers use to assign fresh ids.
//
// InvalidID marks "no id assigned", PingID is the single reserved control
// id, and user-visible subscribe/unsubscribe ids start at ProtocolBase.
package reqid

import "sync/atomic"

const (
	// InvalidID marks the absence of an assigned request id.
	InvalidID uint64 = 0
	// PingID is the fixed id used for ping control frames.
	PingID uint64 = 1
	// ProtocolBase is the first id handed out by Sequence.Next.
	ProtocolBase uint64 = 10
)

// Sequence hands out strictly increasing request ids starting at
// ProtocolBase. Safe for single-thread use only (the application thread is
// the sole caller, per the concurrency model).
type Sequence struct {
	next atomic.Uint64
}

// NewSequence constructs a Sequence primed to emit ProtocolBase first.
func NewSequence() *Sequence {
	s := &Sequence{}
	s.next.Store(ProtocolBase)
	return s
}

// Next returns the next id and advances the sequence.
func (s *Sequence) Next() uint64 {
	return s.next.Add(1) - 1
}
