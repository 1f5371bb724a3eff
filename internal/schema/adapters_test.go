package schema

import "testing"

func TestParseEnvelopeRoundTrip(t *testing.T) {
	env, result := ParseEnvelope([]byte(`{"method":"subscribe","req_id":10,"success":true,"result":{"channel":"trade","symbol":"BTC/USD"}}`))
	if result != ResultParsed {
		t.Fatalf("expected ResultParsed, got %v", result)
	}
	if env.Method != MethodSubscribe || env.ReqID == nil || *env.ReqID != 10 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestParseEnvelopeEmptyIsInvalid(t *testing.T) {
	if _, result := ParseEnvelope(nil); result != ResultInvalidSchema {
		t.Fatalf("expected ResultInvalidSchema for empty input, got %v", result)
	}
}

func TestParseSubscribeAckSuccessRequiresResult(t *testing.T) {
	env := Envelope{Method: MethodSubscribe, ReqID: ptr(uint64(10)), Success: ptr(true)}
	if _, result := ParseSubscribeAck(env); result != ResultInvalidSchema {
		t.Fatalf("expected a success ack with no result to be InvalidSchema, got %v", result)
	}
}

func TestParseSubscribeAckFailureToleratesMissingResult(t *testing.T) {
	env := Envelope{Method: MethodSubscribe, ReqID: ptr(uint64(10)), Success: ptr(false), Error: "bad symbol"}
	ack, result := ParseSubscribeAck(env)
	if result != ResultParsed {
		t.Fatalf("expected ResultParsed, got %v", result)
	}
	if ack.Success || ack.Error != "bad symbol" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestParseRejectionPrefersTopLevelSymbol(t *testing.T) {
	env := Envelope{ReqID: ptr(uint64(10)), Error: "bad symbol", Symbol: "BTC/USD", Result: []byte(`{"symbol":"ETH/USD"}`)}
	notice, result := ParseRejection(env)
	if result != ResultParsed {
		t.Fatalf("expected ResultParsed, got %v", result)
	}
	if notice.Symbol != "BTC/USD" || !notice.HasReqID || notice.ReqID != 10 {
		t.Fatalf("unexpected notice: %+v", notice)
	}
}

func TestParseRejectionWithoutErrorIsInvalid(t *testing.T) {
	env := Envelope{ReqID: ptr(uint64(10))}
	if _, result := ParseRejection(env); result != ResultInvalidSchema {
		t.Fatalf("expected ResultInvalidSchema without an error field, got %v", result)
	}
}

func TestParseTradeMessageRejectsUnknownSide(t *testing.T) {
	raw := []byte(`{"channel":"trade","data":[{"symbol":"BTC/USD","side":"hold","price":"1","qty":"1","timestamp":"2024-01-01T00:00:00Z"}]}`)
	if _, result := ParseTradeMessage(raw); result != ResultInvalidValue {
		t.Fatalf("expected ResultInvalidValue for an unknown side, got %v", result)
	}
}

func TestParseTradeMessageEmptyDataIsIgnored(t *testing.T) {
	raw := []byte(`{"channel":"trade","data":[]}`)
	if _, result := ParseTradeMessage(raw); result != ResultIgnored {
		t.Fatalf("expected ResultIgnored for empty data, got %v", result)
	}
}

func TestParseBookMessageRequiresAskOrBid(t *testing.T) {
	raw := []byte(`{"channel":"book","data":[{"symbol":"BTC/USD","timestamp":"2024-01-01T00:00:00Z"}]}`)
	if _, result := ParseBookMessage(raw); result != ResultInvalidValue {
		t.Fatalf("expected ResultInvalidValue with neither asks nor bids, got %v", result)
	}
}

func TestParseBookMessageHappyPath(t *testing.T) {
	raw := []byte(`{"channel":"book","type":"snapshot","data":[{"symbol":"BTC/USD","timestamp":"2024-01-01T00:00:00Z","asks":[{"price":"50000","qty":"1"}],"bids":[{"price":"49999","qty":"2"}]}]}`)
	msg, result := ParseBookMessage(raw)
	if result != ResultParsed {
		t.Fatalf("expected ResultParsed, got %v", result)
	}
	if !msg.Snapshot || len(msg.Asks) != 1 || len(msg.Bids) != 1 {
		t.Fatalf("unexpected book message: %+v", msg)
	}
}

func ptr[T any](v T) *T { return &v }
