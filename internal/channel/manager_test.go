package channel

import "testing"

func TestSubscribeHappyPathSingleSymbol(t *testing.T) {
	mgr := New(KindTrade)
	const reqID = 10
	mgr.RegisterSubscription([]string{"BTC/USD"}, reqID)

	if !mgr.HasPendingRequests() || mgr.PendingRequestCount() != 1 || mgr.PendingSymbolCount() != 1 || mgr.ActiveSymbolCount() != 0 {
		t.Fatalf("unexpected state after register: %+v", mgr)
	}

	mgr.ProcessSubscribeAck(reqID, "BTC/USD", true)

	if mgr.HasPendingRequests() || mgr.PendingRequestCount() != 0 || mgr.PendingSymbolCount() != 0 {
		t.Fatal("request should be fully acknowledged")
	}
	if mgr.ActiveSymbolCount() != 1 || !mgr.HasActiveSymbols() {
		t.Fatal("symbol should be active")
	}
}

func TestSubscribeRejected(t *testing.T) {
	mgr := New(KindTrade)
	const reqID = 10
	mgr.RegisterSubscription([]string{"BTC/USD"}, reqID)

	mgr.ProcessSubscribeAck(reqID, "BTC/USD", false)

	if mgr.HasPendingRequests() || mgr.ActiveSymbolCount() != 0 {
		t.Fatal("rejected subscribe must leave no pending and no active entry")
	}
}

func TestMultiSymbolSubscribePartialAck(t *testing.T) {
	mgr := New(KindTrade)
	const reqID = 10
	mgr.RegisterSubscription([]string{"BTC/USD", "ETH/USD"}, reqID)

	mgr.ProcessSubscribeAck(reqID, "BTC/USD", true)

	if !mgr.HasPendingRequests() || mgr.PendingRequestCount() != 1 || mgr.PendingSymbolCount() != 1 {
		t.Fatal("request should remain pending for the unacked symbol")
	}
	if mgr.ActiveSymbolCount() != 1 {
		t.Fatal("acked symbol should already be active")
	}
}

func TestMultiSymbolSubscribeFullAck(t *testing.T) {
	mgr := New(KindTrade)
	const reqID = 10
	mgr.RegisterSubscription([]string{"BTC/USD", "ETH/USD"}, reqID)

	mgr.ProcessSubscribeAck(reqID, "BTC/USD", true)
	mgr.ProcessSubscribeAck(reqID, "ETH/USD", true)

	if mgr.HasPendingRequests() {
		t.Fatal("request should be complete")
	}
	if mgr.ActiveSymbolCount() != 2 {
		t.Fatal("both symbols should be active")
	}
}

func TestDuplicateSubscribeAckIsIgnored(t *testing.T) {
	mgr := New(KindTrade)
	const reqID = 10
	mgr.RegisterSubscription([]string{"BTC/USD", "ETH/USD"}, reqID)
	mgr.ProcessSubscribeAck(reqID, "BTC/USD", true)
	mgr.ProcessSubscribeAck(reqID, "ETH/USD", true)

	mgr.ProcessSubscribeAck(reqID, "BTC/USD", true)

	if mgr.ActiveSymbolCount() != 2 || mgr.HasPendingRequests() {
		t.Fatal("duplicate ack must be a no-op")
	}
}

func TestSubscribeAckUnknownReqIDIgnored(t *testing.T) {
	mgr := New(KindTrade)
	mgr.ProcessSubscribeAck(42, "BTC/USD", true)

	if mgr.HasPendingRequests() || mgr.PendingRequestCount() != 0 {
		t.Fatal("unknown req_id must not create state")
	}
	// Unlike a known subscribe ack, an unknown one must not even mark the
	// symbol active — there is no pending request backing the claim.
	if mgr.ActiveSymbolCount() != 0 {
		t.Fatal("unknown req_id ack must not mark any symbol active")
	}
}

func TestUnsubscribeAckRemovesFromActive(t *testing.T) {
	mgr := New(KindBook)
	mgr.RegisterSubscription([]string{"BTC/USD"}, 10)
	mgr.ProcessSubscribeAck(10, "BTC/USD", true)

	mgr.RegisterUnsubscription([]string{"BTC/USD"}, 11)
	mgr.ProcessUnsubscribeAck(11, "BTC/USD", true)

	if mgr.HasActiveSymbols() || mgr.HasPendingRequests() {
		t.Fatal("successful unsubscribe should clear both pending and active")
	}
}

func TestUnsubscribeAckFailureLeavesActiveUntouched(t *testing.T) {
	mgr := New(KindBook)
	mgr.RegisterSubscription([]string{"BTC/USD"}, 10)
	mgr.ProcessSubscribeAck(10, "BTC/USD", true)

	mgr.RegisterUnsubscription([]string{"BTC/USD"}, 11)
	mgr.ProcessUnsubscribeAck(11, "BTC/USD", false)

	if !mgr.HasActiveSymbols() || mgr.ActiveSymbolCount() != 1 {
		t.Fatal("failed unsubscribe must not remove the active entry")
	}
}

func TestTryProcessRejectionDropsOnlyPendingBinding(t *testing.T) {
	mgr := New(KindTrade)
	mgr.RegisterSubscription([]string{"BTC/USD"}, 10)
	mgr.ProcessSubscribeAck(10, "BTC/USD", true)

	mgr.RegisterUnsubscription([]string{"BTC/USD"}, 11)
	ok := mgr.TryProcessRejection(11, "BTC/USD")

	if !ok {
		t.Fatal("known req_id rejection must return true")
	}
	if mgr.HasPendingRequests() {
		t.Fatal("rejected pending binding should be dropped")
	}
	if !mgr.HasActiveSymbols() {
		t.Fatal("rejection of a pending unsubscribe must not touch the active set")
	}
}

func TestTryProcessRejectionUnknownReqID(t *testing.T) {
	mgr := New(KindTrade)
	if mgr.TryProcessRejection(99, "BTC/USD") {
		t.Fatal("unknown req_id rejection must return false")
	}
}

func TestPendingKindDistinguishesSubscribeFromUnsubscribe(t *testing.T) {
	mgr := New(KindTrade)
	mgr.RegisterSubscription([]string{"BTC/USD"}, 10)
	mgr.RegisterUnsubscription([]string{"ETH/USD"}, 11)

	if unsub, ok := mgr.PendingKind(10); !ok || unsub {
		t.Fatalf("expected req 10 to be a pending subscribe, got unsub=%v ok=%v", unsub, ok)
	}
	if unsub, ok := mgr.PendingKind(11); !ok || !unsub {
		t.Fatalf("expected req 11 to be a pending unsubscribe, got unsub=%v ok=%v", unsub, ok)
	}
}

func TestPendingKindUnknownReqID(t *testing.T) {
	mgr := New(KindTrade)
	if _, ok := mgr.PendingKind(99); ok {
		t.Fatal("expected PendingKind to report false for an unknown req_id")
	}
}

func TestClearAllEmptiesBothMaps(t *testing.T) {
	mgr := New(KindTrade)
	mgr.RegisterSubscription([]string{"BTC/USD"}, 10)
	mgr.ProcessSubscribeAck(10, "ETH/USD", true)
	mgr.ClearAll()

	if mgr.HasPendingRequests() || mgr.HasActiveSymbols() {
		t.Fatal("ClearAll must empty both pending and active state")
	}
}
