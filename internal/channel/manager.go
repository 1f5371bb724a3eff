// Package channel implements the per-channel subscription state machine:
// pending request tracking by request id, and the set of symbols the
// server has actually confirmed active.
package channel

// Kind names which data-plane channel a Manager instance tracks.
type Kind string

const (
	KindTrade Kind = "trade"
	KindBook  Kind = "book"
)

// PendingRequest is an in-flight subscribe/unsubscribe awaiting complete
// acknowledgement across all of its requested symbols.
type PendingRequest struct {
	ReqID            uint64
	Unsubscribe      bool
	SymbolsRemaining map[string]struct{}
}

// Manager tracks pending request→symbol bindings and the active symbol
// set for one channel. Not safe for concurrent use; the application
// thread is the only caller.
type Manager struct {
	kind    Kind
	pending map[uint64]*PendingRequest
	active  map[string]struct{}
}

// New constructs an empty Manager for the given channel kind.
func New(kind Kind) *Manager {
	return &Manager{
		kind:    kind,
		pending: make(map[uint64]*PendingRequest),
		active:  make(map[string]struct{}),
	}
}

// Kind returns the channel this manager tracks.
func (m *Manager) Kind() Kind { return m.kind }

func newPendingSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

// RegisterSubscription inserts a new pending subscribe request. req_id is
// assumed unique; callers (the session) are responsible for that.
func (m *Manager) RegisterSubscription(symbols []string, reqID uint64) {
	m.pending[reqID] = &PendingRequest{
		ReqID:            reqID,
		Unsubscribe:      false,
		SymbolsRemaining: newPendingSet(symbols),
	}
}

// RegisterUnsubscription inserts a new pending unsubscribe request.
func (m *Manager) RegisterUnsubscription(symbols []string, reqID uint64) {
	m.pending[reqID] = &PendingRequest{
		ReqID:            reqID,
		Unsubscribe:      true,
		SymbolsRemaining: newPendingSet(symbols),
	}
}

// ProcessSubscribeAck applies a per-symbol acknowledgement to a pending
// subscribe request: success adds the symbol to the active set even while
// other symbols of the same request are still unacknowledged, since
// partial acks are legal. Unknown req_id and duplicate (req_id, symbol)
// acks are safe no-ops.
func (m *Manager) ProcessSubscribeAck(reqID uint64, symbol string, success bool) {
	req, ok := m.pending[reqID]
	if !ok {
		return
	}
	if success {
		m.active[symbol] = struct{}{}
	}
	delete(req.SymbolsRemaining, symbol)
	if len(req.SymbolsRemaining) == 0 {
		delete(m.pending, reqID)
	}
}

// ProcessUnsubscribeAck mirrors ProcessSubscribeAck for unsubscribe
// requests: on success the symbol leaves the active set; on failure the
// active set is untouched. Unsubscribing a non-active symbol is a safe
// no-op.
func (m *Manager) ProcessUnsubscribeAck(reqID uint64, symbol string, success bool) {
	req, ok := m.pending[reqID]
	if !ok {
		return
	}
	if success {
		delete(m.active, symbol)
	}
	delete(req.SymbolsRemaining, symbol)
	if len(req.SymbolsRemaining) == 0 {
		delete(m.pending, reqID)
	}
}

// PendingKind reports whether reqID is a known pending request and, if so,
// whether it is an unsubscribe (vs subscribe). Used by the router to
// decide which per-channel ack ring an incoming ack belongs in, since the
// wire ack shape itself does not distinguish subscribe from unsubscribe.
func (m *Manager) PendingKind(reqID uint64) (unsubscribe, ok bool) {
	req, found := m.pending[reqID]
	if !found {
		return false, false
	}
	return req.Unsubscribe, true
}

// TryProcessRejection drops the (req_id, symbol) pending binding if
// req_id matches a known pending request, removing the request too if it
// becomes empty. The active set is never touched here — rejecting an
// already-acknowledged symbol removes only the pending binding, never the
// active entry. Returns false with no state change for unknown req_id.
func (m *Manager) TryProcessRejection(reqID uint64, symbol string) bool {
	req, ok := m.pending[reqID]
	if !ok {
		return false
	}
	delete(req.SymbolsRemaining, symbol)
	if len(req.SymbolsRemaining) == 0 {
		delete(m.pending, reqID)
	}
	return true
}

// RemoveActive defensively drops symbol from the active set. Used for
// post-ACK rejections, where the server rejects a symbol that has already
// been acknowledged active.
func (m *Manager) RemoveActive(symbol string) {
	delete(m.active, symbol)
}

// ClearAll empties both the pending map and the active set, as happens on
// every disconnect.
func (m *Manager) ClearAll() {
	m.pending = make(map[uint64]*PendingRequest)
	m.active = make(map[string]struct{})
}

// HasPendingRequests reports whether any request is still awaiting
// acknowledgement.
func (m *Manager) HasPendingRequests() bool { return len(m.pending) > 0 }

// PendingRequestCount is the number of distinct pending requests.
func (m *Manager) PendingRequestCount() int { return len(m.pending) }

// PendingSymbolCount sums symbols_remaining across all pending requests.
func (m *Manager) PendingSymbolCount() int {
	n := 0
	for _, req := range m.pending {
		n += len(req.SymbolsRemaining)
	}
	return n
}

// ActiveSymbolCount is the number of symbols currently confirmed active.
func (m *Manager) ActiveSymbolCount() int { return len(m.active) }

// HasActiveSymbols reports whether the active set is non-empty.
func (m *Manager) HasActiveSymbols() bool { return len(m.active) > 0 }

// PendingSymbols returns the set of symbols currently awaiting
// acknowledgement, across all pending requests.
func (m *Manager) PendingSymbols() []string {
	symbols := make([]string, 0, m.PendingSymbolCount())
	for _, req := range m.pending {
		for s := range req.SymbolsRemaining {
			symbols = append(symbols, s)
		}
	}
	return symbols
}
