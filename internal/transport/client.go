// Package transport implements the length-prefixed, request-id-correlated
// RPC channel that carries the session stream and control-plane requests
// between the omnish client and daemon (spec §4.A).
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
)

// ErrNotConnected is returned by Call when issued while the client has no
// live connection to the daemon.
var ErrNotConnected = errors.New("transport: not connected")

// ErrClosed is returned once the client has been closed.
var ErrClosed = errors.New("transport: closed")

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// ReconnectFunc re-announces client state to a freshly (re)connected daemon
// (e.g. SessionStart). It must complete before user Calls resume.
type ReconnectFunc func(ctx context.Context, c *Client) error

// Client is a duplex RPC connection to the daemon. A single exported
// operation, Call, is safe for concurrent use; internally two workers (a
// writer draining an outbound queue, a reader dispatching by request id)
// own the socket.
type Client struct {
	addr      string
	tlsConfig *tls.Config
	onReconnect ReconnectFunc

	nextID atomic.Uint64

	mu sync.Mutex
	conn      net.Conn
	connected bool // conn/writeCh live and the reader/writer loops are running
	ready     bool // onReconnect has completed for the current connection
	pending   map[uint64]chan *Frame
	writeCh   chan writeJob
	closed    chan struct{}
	closeOnce sync.Once
}

// reconnectCtxKey marks a context passed to a ReconnectFunc, so Call can
// tell the hook's own re-announcement call apart from a call issued by
// ordinary application code — the former must go out before connected
// flips to ready, the latter must wait for it.
type reconnectCtxKey struct{}

type writeJob struct {
	frame *Frame
	errCh chan error
}

// NewClient creates a client for addr (a Unix socket path or "host:port").
// If tlsConfig is non-nil, the connection is wrapped in TLS.
func NewClient(addr string, tlsConfig *tls.Config, onReconnect ReconnectFunc) *Client {
	return &Client{
		addr:        addr,
		tlsConfig:   tlsConfig,
		onReconnect: onReconnect,
		pending:     make(map[uint64]chan *Frame),
		closed:      make(chan struct{}),
	}
}

// Run dials the daemon and services the connection until ctx is cancelled,
// reconnecting with exponential backoff (1s..30s) on any failure.
func (c *Client) Run(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("transport: disconnected, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	network := Network(c.addr)
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, c.addr)
	if err != nil {
		return fmt.Errorf("dial %s %s: %w", network, c.addr, err)
	}
	if network == "tcp" {
		if tc, ok := rawConn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
	}

	conn := rawConn
	if c.tlsConfig != nil {
		tlsConn := tls.Client(rawConn, c.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.ready = false
	c.writeCh = make(chan writeJob, 64)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connected = false
		c.ready = false
		// Fail every call still waiting on a reply.
		for id, ch := range c.pending {
			delete(c.pending, id)
			close(ch)
		}
		c.mu.Unlock()
		conn.Close()
	}()

	errCh := make(chan error, 2)
	go c.writerLoop(conn, errCh)
	go c.readerLoop(conn, errCh)

	// The reconnect hook's own call (e.g. re-announcing SessionStart) must
	// reach the wire, and complete, before any other Call is allowed to
	// proceed — otherwise a concurrent caller could race ahead of it on a
	// freshly (re)connected socket. hookCtx marks that call so Call lets it
	// through despite c.ready still being false; everyone else blocks on
	// c.ready below.
	if c.onReconnect != nil {
		hookCtx := context.WithValue(ctx, reconnectCtxKey{}, struct{}{})
		if err := c.onReconnect(hookCtx, c); err != nil {
			return fmt.Errorf("reconnect hook: %w", err)
		}
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *Client) writerLoop(conn net.Conn, errCh chan<- error) {
	c.mu.Lock()
	ch := c.writeCh
	c.mu.Unlock()
	for job := range ch {
		err := writeFrame(conn, job.frame)
		if job.errCh != nil {
			job.errCh <- err
		}
		if err != nil {
			errCh <- fmt.Errorf("writer: %w", err)
			return
		}
	}
}

func (c *Client) readerLoop(conn net.Conn, errCh chan<- error) {
	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				logger.Warn("transport: dropping malformed frame", "error", err)
				continue
			}
			errCh <- fmt.Errorf("reader: %w", err)
			return
		}
		c.mu.Lock()
		replyCh, ok := c.pending[frame.RequestID]
		if ok {
			delete(c.pending, frame.RequestID)
		}
		c.mu.Unlock()
		if !ok {
			// Unsolicited frame (e.g. a pushed Event/CompletionResponse)
			// with no waiting caller — dropped here; the client offers no
			// way to observe server-initiated frames.
			continue
		}
		replyCh <- frame
	}
}

// Call sends payload under kind and blocks for the correlated response.
// Safe for concurrent use. Returns ErrNotConnected immediately if the
// client currently has no live connection — it never blocks waiting for a
// reconnect.
func (c *Client) Call(ctx context.Context, kind model.Kind, payload any) (*Frame, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	id := c.nextID.Add(1)
	frame, err := NewFrame(id, kind, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	if !c.ready && ctx.Value(reconnectCtxKey{}) == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	replyCh := make(chan *Frame, 1)
	c.pending[id] = replyCh
	writeCh := c.writeCh
	c.mu.Unlock()

	writeErrCh := make(chan error, 1)
	select {
	case writeCh <- writeJob{frame: frame, errCh: writeErrCh}:
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	}

	if err := <-writeErrCh; err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("transport: send failed: %w", err)
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, ErrNotConnected
		}
		return reply, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Connected reports whether the client currently has a live connection
// that has finished its reconnect handshake and is ready for Calls.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.ready
}

// Close terminates the client permanently; subsequent Calls return
// ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
