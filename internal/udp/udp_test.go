package udp

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/metro-datahub/internal/logging"
)

func TestRequestReply(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", func(_ context.Context, raw []byte) []byte {
		return append([]byte("echo:"), raw...)
	}, logging.Noop())
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	go srv.Serve(context.Background())
	defer srv.Stop()

	client, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := client.RoundTrip(ctx, []byte("ping"))
	if err != nil {
		t.Fatalf("RoundTrip error: %v", err)
	}
	if !bytes.Equal(reply, []byte("echo:ping")) {
		t.Fatalf("reply = %q", reply)
	}
}

func TestNilReplyIsNotSent(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", func(context.Context, []byte) []byte {
		return nil
	}, logging.Noop())
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	go srv.Serve(context.Background())
	defer srv.Stop()

	client, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := client.RoundTrip(ctx, []byte("ping")); err == nil {
		t.Fatalf("expected timeout waiting for a reply that never comes")
	}
}

func TestStopUnblocksServe(t *testing.T) {
	handled := make(chan struct{}, 1)
	srv, err := Listen("127.0.0.1:0", func(context.Context, []byte) []byte {
		handled <- struct{}{}
		return nil
	}, logging.Noop())
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}

	served := make(chan struct{})
	go func() {
		srv.Serve(context.Background())
		close(served)
	}()

	// No traffic at all: Serve is blocked in its read until Stop's
	// sentinel datagram arrives.
	srv.Stop()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not exit after Stop")
	}
	select {
	case <-handled:
		t.Fatalf("sentinel datagram must not reach the handler")
	default:
	}
}

func TestSendFireAndForget(t *testing.T) {
	got := make(chan []byte, 1)
	srv, err := Listen("127.0.0.1:0", func(_ context.Context, raw []byte) []byte {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		got <- cp
		return nil
	}, logging.Noop())
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	go srv.Serve(context.Background())
	defer srv.Stop()

	client, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer client.Close()

	if err := client.Send([]byte("POST;metroTotals;{}")); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	select {
	case raw := <-got:
		if string(raw) != "POST;metroTotals;{}" {
			t.Fatalf("server received %q", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the datagram")
	}
}
