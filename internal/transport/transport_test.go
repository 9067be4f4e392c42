package transport

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnish-dev/omnish/internal/model"
)

func bufReaderFor(c net.Conn) *bufio.Reader {
	return bufio.NewReader(c)
}

func tempSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "omnish.sock")
}

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewFrame(42, model.KindIoData, model.IoData{
		SessionID:   "abc",
		Direction:   model.DirOutput,
		TimestampMs: 12345,
		Data:        []byte("hello\x00world"),
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	buf, err := f.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	client, server := net.Pipe()
	go func() {
		server.Write(buf)
		server.Close()
	}()
	defer client.Close()

	got, err := readFrame(bufReaderFor(client))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if got.RequestID != 42 || got.Kind != model.KindIoData {
		t.Fatalf("unexpected frame: %+v", got)
	}
	var io model.IoData
	if err := got.Decode(&io); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if io.SessionID != "abc" || string(io.Data) != "hello\x00world" {
		t.Fatalf("unexpected payload: %+v", io)
	}
}

func TestReadFrameBadMagic(t *testing.T) {
	f, _ := NewFrame(1, model.KindAck, model.Ack{})
	buf, _ := f.encode()
	// Corrupt the magic bytes (offset 4 for outer len, +8 for request id).
	buf[12] = 0xFF
	client, server := net.Pipe()
	go func() {
		server.Write(buf)
		server.Close()
	}()
	defer client.Close()
	if _, err := readFrame(bufReaderFor(client)); err == nil {
		t.Fatal("expected bad magic error")
	}
}

func TestNetworkDispatch(t *testing.T) {
	cases := map[string]string{
		"/var/run/omnish.sock": "unix",
		"./omnish.sock":        "unix",
		"relative-no-colon":    "unix",
		"localhost:9999":       "tcp",
		"127.0.0.1:9999":       "tcp",
	}
	for addr, want := range cases {
		if got := Network(addr); got != want {
			t.Errorf("Network(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestCallNotConnectedImmediately(t *testing.T) {
	c := NewClient("127.0.0.1:1", nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, model.KindAck, model.Ack{})
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCallRoundTripOverServer(t *testing.T) {
	addr := tempSocketPath(t)
	srv := NewServer(addr, nil)
	srv.Handle(model.KindSessionStart, func(ctx context.Context, f *Frame) (model.Kind, any, error) {
		var start model.SessionStart
		f.Decode(&start)
		return model.KindAck, model.Ack{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	client := NewClient(addr, nil, nil)
	go client.Run(ctx)
	// Wait for connection.
	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !client.Connected() {
		t.Fatal("client never connected")
	}

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	reply, err := client.Call(callCtx, model.KindSessionStart, model.SessionStart{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Kind != model.KindAck {
		t.Fatalf("expected ack, got %v", reply.Kind)
	}
}

func TestReconnectHookMustCompleteBeforeOtherCallsSucceed(t *testing.T) {
	addr := tempSocketPath(t)
	srv := NewServer(addr, nil)
	srv.Handle(model.KindSessionStart, func(ctx context.Context, f *Frame) (model.Kind, any, error) {
		return model.KindAck, model.Ack{}, nil
	})
	srv.Handle(model.KindIoData, func(ctx context.Context, f *Frame) (model.Kind, any, error) {
		return model.KindAck, model.Ack{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	hookStarted := make(chan struct{})
	releaseHook := make(chan struct{})
	onReconnect := func(ctx context.Context, c *Client) error {
		close(hookStarted)
		<-releaseHook
		_, err := c.Call(ctx, model.KindSessionStart, model.SessionStart{SessionID: "s1"})
		return err
	}

	client := NewClient(addr, nil, onReconnect)
	go client.Run(ctx)

	<-hookStarted
	// The hook hasn't returned yet: an ordinary call must not jump ahead of
	// it and land on the wire first.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err := client.Call(shortCtx, model.KindIoData, model.IoData{SessionID: "s1"})
	shortCancel()
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected while reconnect hook is running, got %v", err)
	}
	if client.Connected() {
		t.Fatal("expected Connected() false while reconnect hook is still running")
	}

	close(releaseHook)

	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !client.Connected() {
		t.Fatal("client never became ready after the reconnect hook completed")
	}

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	if _, err := client.Call(callCtx, model.KindIoData, model.IoData{SessionID: "s1"}); err != nil {
		t.Fatalf("Call after ready: %v", err)
	}
}

func TestServerDropsMalformedFrameAndKeepsConnectionAlive(t *testing.T) {
	addr := tempSocketPath(t)
	srv := NewServer(addr, nil)
	srv.Handle(model.KindSessionStart, func(ctx context.Context, f *Frame) (model.Kind, any, error) {
		return model.KindAck, model.Ack{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial(Network(addr), addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	bad, _ := NewFrame(1, model.KindAck, model.Ack{})
	badBuf, _ := bad.encode()
	badBuf[12] = 0xFF // corrupt magic: a protocol error, not a dead socket
	if _, err := conn.Write(badBuf); err != nil {
		t.Fatalf("write bad frame: %v", err)
	}

	good, _ := NewFrame(2, model.KindSessionStart, model.SessionStart{SessionID: "s1"})
	goodBuf, _ := good.encode()
	if _, err := conn.Write(goodBuf); err != nil {
		t.Fatalf("write good frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := readFrame(bufReaderFor(conn))
	if err != nil {
		t.Fatalf("expected a reply to the well-formed frame after the malformed one was dropped, got: %v", err)
	}
	if reply.RequestID != 2 || reply.Kind != model.KindAck {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestRequestIDMonotonicAndUnique(t *testing.T) {
	c := NewClient("unused", nil, nil)
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		id := c.nextID.Add(1)
		if seen[id] {
			t.Fatalf("duplicate request id %d", id)
		}
		seen[id] = true
	}
}
