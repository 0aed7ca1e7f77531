package smuxoverlay

import (
	"context"
	"net"
	"testing"
	"time"
)

func connectedPair(t *testing.T) (*Overlay, *Overlay, func()) {
	t.Helper()
	client, server := net.Pipe()

	clientOverlay := New()
	serverOverlay := New()

	if err := clientOverlay.Connect("server", client); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	go serverOverlay.Serve("client", server)

	return clientOverlay, serverOverlay, func() {
		clientOverlay.Close()
		serverOverlay.Close()
	}
}

func TestOverlaySendDispatchesToHandler(t *testing.T) {
	client, server, cleanup := connectedPair(t)
	defer cleanup()

	var gotPeer string
	var gotBody []byte
	server.Handle("PING", func(ctx context.Context, peer string, body []byte) ([]byte, error) {
		gotPeer = peer
		gotBody = body
		return []byte("pong"), nil
	})

	resp, err := client.Send(context.Background(), "server", "PING", []byte("ping"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp) != "pong" {
		t.Fatalf("response = %q, want pong", resp)
	}
	if gotPeer != "client" {
		t.Fatalf("peer = %q, want client", gotPeer)
	}
	if string(gotBody) != "ping" {
		t.Fatalf("body = %q, want ping", gotBody)
	}
}

func TestOverlaySendUnknownMethod(t *testing.T) {
	client, server, cleanup := connectedPair(t)
	defer cleanup()
	_ = server

	resp, err := client.Send(context.Background(), "server", "NOPE", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp) != `{"error":{"message":"unknown method"}}` {
		t.Fatalf("unexpected response for unknown method: %s", resp)
	}
}

func TestOverlaySendNoSession(t *testing.T) {
	o := New()
	_, err := o.Send(context.Background(), "nobody", "PING", nil)
	if err == nil {
		t.Fatal("expected send with no open session to fail")
	}
}

func TestOverlaySendRespectsContextDeadline(t *testing.T) {
	client, server, cleanup := connectedPair(t)
	defer cleanup()

	block := make(chan struct{})
	defer close(block)
	server.Handle("SLOW", func(ctx context.Context, peer string, body []byte) ([]byte, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Send(ctx, "server", "SLOW", nil); err == nil {
		t.Fatal("expected deadline to cut off a slow handler")
	}
}
