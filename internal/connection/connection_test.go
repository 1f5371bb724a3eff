package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/coachpo/krakenstream/internal/transport"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := conn.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
}

func TestOpenEntersConnectedAndEmitsSignal(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn := New(DefaultConfig())
	defer conn.Close()

	url := "ws" + server.URL[len("http"):] + "/"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if kind := conn.Open(ctx, url); kind != transport.ErrorNone {
		t.Fatalf("expected successful open, got %v", kind)
	}
	if conn.Epoch() != 1 {
		t.Fatalf("expected epoch 1 after first connect, got %d", conn.Epoch())
	}

	var sig Signal
	if !conn.PollSignal(&sig) || sig != SignalConnected {
		t.Fatalf("expected a Connected signal, got %v", sig)
	}
}

func TestOpenRejectsInvalidURL(t *testing.T) {
	conn := New(DefaultConfig())
	defer conn.Close()

	kind := conn.Open(context.Background(), "not-a-url")
	if kind != transport.ErrorInvalidURL {
		t.Fatalf("expected ErrorInvalidURL, got %v", kind)
	}
}

func TestOpenRejectsWhenNotDisconnected(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn := New(DefaultConfig())
	defer conn.Close()

	url := "ws" + server.URL[len("http"):] + "/"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn.Open(ctx, url)

	if kind := conn.Open(ctx, url); kind != transport.ErrorInvalidState {
		t.Fatalf("expected ErrorInvalidState on a second Open, got %v", kind)
	}
}

func TestCloseFromConnectedEmitsDisconnected(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn := New(DefaultConfig())
	url := "ws" + server.URL[len("http"):] + "/"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn.Open(ctx, url)

	var discard Signal
	conn.PollSignal(&discard) // drain Connected

	conn.Close()

	var sig Signal
	if !conn.PollSignal(&sig) || sig != SignalDisconnected {
		t.Fatalf("expected Disconnected signal after Close, got %v", sig)
	}
	if conn.DisconnectReason() != ReasonLocalClose {
		t.Fatalf("expected ReasonLocalClose, got %v", conn.DisconnectReason())
	}
}

func TestSendRequiresConnectedState(t *testing.T) {
	conn := New(DefaultConfig())
	if conn.Send(context.Background(), []byte("x")) {
		t.Fatal("expected Send to fail before any Open")
	}
}

func TestLivenessCheckEdgeTriggers(t *testing.T) {
	l := newLiveness(10*time.Millisecond, 10*time.Millisecond, 0.5)
	now := time.Now()
	l.resetAt(now)

	threatened, expired := l.check(now.Add(6 * time.Millisecond))
	if !threatened || expired {
		t.Fatalf("expected a single threatened edge at t+6ms, got threatened=%v expired=%v", threatened, expired)
	}

	threatened, expired = l.check(now.Add(7 * time.Millisecond))
	if threatened || expired {
		t.Fatal("threatened must not fire twice without fresh activity in between")
	}

	_, expired = l.check(now.Add(11 * time.Millisecond))
	if !expired {
		t.Fatal("expected expired to fire once both timestamps are stale")
	}
}
