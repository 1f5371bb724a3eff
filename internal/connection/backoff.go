package connection

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/krakenstream/internal/transport"
)

// errorClass groups error kinds into a backoff curve. Kinds outside the
// three named classes (InvalidUrl, InvalidState, Cancelled, ProtocolError,
// LocalShutdown) never reach the backoff path: should_retry already routes
// them straight to Disconnected.
type errorClass int

const (
	classFast errorClass = iota
	classModerate
	classConservative
)

func classify(kind transport.ErrorKind) errorClass {
	switch kind {
	case transport.ErrorRemoteClosed, transport.ErrorTimeout, transport.ErrorBackpressure:
		return classFast
	case transport.ErrorConnectionFailed, transport.ErrorHandshakeFailed:
		return classModerate
	default:
		return classConservative
	}
}

// backoffSet holds one generator per error class, each pre-configured with
// a fixed base/max pair and reset whenever the connection reaches
// Connected. The underlying curve's own MaxInterval cap bounds growth, so
// no separate attempt-count clamp is needed.
type backoffSet struct {
	fast         *backoff.ExponentialBackOff
	moderate     *backoff.ExponentialBackOff
	conservative *backoff.ExponentialBackOff
}

func newBackoffSet() *backoffSet {
	mk := func(base, maxInterval time.Duration) *backoff.ExponentialBackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = base
		b.MaxInterval = maxInterval
		b.Multiplier = 2
		b.RandomizationFactor = 0.1
		b.Reset()
		return b
	}
	return &backoffSet{
		fast:         mk(50*time.Millisecond, 1*time.Second),
		moderate:     mk(100*time.Millisecond, 5*time.Second),
		conservative: mk(200*time.Millisecond, 10*time.Second),
	}
}

func (s *backoffSet) generatorFor(kind transport.ErrorKind) *backoff.ExponentialBackOff {
	switch classify(kind) {
	case classFast:
		return s.fast
	case classModerate:
		return s.moderate
	default:
		return s.conservative
	}
}

// next returns the delay before the next reconnect attempt for kind.
func (s *backoffSet) next(kind transport.ErrorKind) time.Duration {
	return s.generatorFor(kind).NextBackOff()
}

// resetAll clears every generator's attempt counter. Called on every
// successful entry into Connected.
func (s *backoffSet) resetAll() {
	s.fast.Reset()
	s.moderate.Reset()
	s.conservative.Reset()
}
