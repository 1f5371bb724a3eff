// Package replay implements the subscription-intent store: what the user
// asked for, independent of server acknowledgement, mutated only by
// confirmed server truth so reconnects can replay exactly once per epoch.
package replay

import "github.com/coachpo/krakenstream/internal/channel"

// Intent is a stored subscription request, independent of whether the
// server has acknowledged it yet. Depth carries the book subscription
// depth option (ignored for non-book channels) so replay reconstructs the
// original request rather than a bare symbol resubscribe.
type Intent struct {
	Channel channel.Kind
	Symbol  string
	ReqID   uint64
	Depth   int
}

// Database holds one table per channel, keyed by symbol. Reject removes
// intent; accept or silence persists it.
type Database struct {
	tables map[channel.Kind]map[string]Intent
}

// New constructs an empty Database.
func New() *Database {
	return &Database{tables: make(map[channel.Kind]map[string]Intent)}
}

func (d *Database) table(kind channel.Kind) map[string]Intent {
	t, ok := d.tables[kind]
	if !ok {
		t = make(map[string]Intent)
		d.tables[kind] = t
	}
	return t
}

// Add stores or overwrites intent for (intent.Channel, intent.Symbol).
// Invariant: at most one pending request per (channel, symbol); a second
// Add for the same pair replaces the stored req_id rather than
// duplicating the entry.
func (d *Database) Add(intent Intent) {
	d.table(intent.Channel)[intent.Symbol] = intent
}

// RemoveSymbol deletes any stored intent for (channel, symbol). A safe
// no-op if none is stored.
func (d *Database) RemoveSymbol(kind channel.Kind, symbol string) {
	delete(d.table(kind), symbol)
}

// TryProcessRejection removes the intent for symbol if its stored req_id
// matches reqID — the server-truth "rejected" mutation. Returns false with
// no state change if no matching intent is stored.
func (d *Database) TryProcessRejection(kind channel.Kind, reqID uint64, symbol string) bool {
	t := d.table(kind)
	intent, ok := t[symbol]
	if !ok || intent.ReqID != reqID {
		return false
	}
	delete(t, symbol)
	return true
}

// TakeSubscriptions returns a snapshot of every stored intent for kind, in
// no particular order, for replay through the normal subscribe path.
func (d *Database) TakeSubscriptions(kind channel.Kind) []Intent {
	t := d.table(kind)
	out := make([]Intent, 0, len(t))
	for _, intent := range t {
		out = append(out, intent)
	}
	return out
}

// TotalRequests returns the number of distinct symbols with stored intent
// for kind (one intent per symbol, so requests and symbols coincide here).
func (d *Database) TotalRequests(kind channel.Kind) int {
	return len(d.table(kind))
}

// TotalSymbols is an alias for TotalRequests kept for parity with the
// source's table-level accessor names.
func (d *Database) TotalSymbols(kind channel.Kind) int {
	return d.TotalRequests(kind)
}
