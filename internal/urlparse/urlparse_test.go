package urlparse

import "testing"

func TestParseValidWSS(t *testing.T) {
	ep, ok := Parse("wss://ws.kraken.com/v2")
	if !ok {
		t.Fatal("expected valid parse")
	}
	if !ep.Secure || ep.Host != "ws.kraken.com" || ep.Port != "443" || ep.Path != "/v2" {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
}

func TestParseValidWSWithPort(t *testing.T) {
	ep, ok := Parse("ws://example.com:8080/stream")
	if !ok {
		t.Fatal("expected valid parse")
	}
	if ep.Secure || ep.Host != "example.com" || ep.Port != "8080" || ep.Path != "/stream" {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
}

func TestParseDefaultsPathToRoot(t *testing.T) {
	ep, ok := Parse("ws://example.com")
	if !ok {
		t.Fatal("expected valid parse")
	}
	if ep.Path != "/" {
		t.Fatalf("path = %q, want /", ep.Path)
	}
}

func TestParseRejectsBadScheme(t *testing.T) {
	if _, ok := Parse("http://example.com/"); ok {
		t.Fatal("http scheme must be rejected")
	}
}

func TestParseRejectsEmptyHost(t *testing.T) {
	if _, ok := Parse("ws:///path"); ok {
		t.Fatal("empty host must be rejected")
	}
}

func TestParseRejectsNonNumericPort(t *testing.T) {
	if _, ok := Parse("ws://example.com:abc/path"); ok {
		t.Fatal("non-numeric port must be rejected")
	}
}

func TestParseRejectsOutOfRangePort(t *testing.T) {
	if _, ok := Parse("ws://example.com:70000/path"); ok {
		t.Fatal("port > 65535 must be rejected")
	}
	if _, ok := Parse("ws://example.com:0/path"); ok {
		t.Fatal("port 0 must be rejected")
	}
}

func TestParseRejectsPortPathRunOn(t *testing.T) {
	if _, ok := Parse("ws://example.com:80nopath"); ok {
		t.Fatal("malformed port/path run-on must be rejected")
	}
}
