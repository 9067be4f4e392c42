package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
)

// Handler processes one decoded frame and returns the payload (and its
// kind) to send back under the same request id. Returning a nil payload
// sends a bare Ack.
type Handler func(ctx context.Context, frame *Frame) (model.Kind, any, error)

// Server accepts connections on a Unix socket or TCP address and dispatches
// frames to registered per-kind handlers. Protocol decode errors drop the
// single bad frame and keep reading; any socket I/O error tears down that
// connection only.
type Server struct {
	addr      string
	tlsConfig *tls.Config

	mu       sync.RWMutex
	handlers map[model.Kind]Handler
}

// NewServer creates a server listening at addr (Unix path or host:port).
func NewServer(addr string, tlsConfig *tls.Config) *Server {
	return &Server{
		addr:      addr,
		tlsConfig: tlsConfig,
		handlers:  make(map[model.Kind]Handler),
	}
}

// Handle registers the handler invoked for frames of the given kind.
func (s *Server) Handle(kind model.Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	network := Network(s.addr)
	if network == "unix" {
		os.Remove(s.addr)
	}

	var ln net.Listener
	var err error
	if network == "unix" {
		ln, err = net.Listen("unix", s.addr)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", network, s.addr, err)
	}
	if network == "unix" {
		os.Chmod(s.addr, 0700)
		defer os.Remove(s.addr)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	writeCh := make(chan *Frame, 64)
	writeErrCh := make(chan error, 1)
	go func() {
		for f := range writeCh {
			if err := writeFrame(conn, f); err != nil {
				writeErrCh <- err
				return
			}
		}
	}()
	defer close(writeCh)

	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				logger.Warn("transport: dropping malformed frame", "error", err)
				continue
			}
			return
		}

		s.mu.RLock()
		h, ok := s.handlers[frame.Kind]
		s.mu.RUnlock()
		if !ok {
			logger.Debug("transport: no handler registered", "kind", frame.Kind)
			continue
		}

		go func(in *Frame) {
			kind, payload, err := h(ctx, in)
			if err != nil {
				logger.Warn("transport: handler error", "kind", in.Kind, "error", err)
				payload = model.Response{RequestID: fmt.Sprint(in.RequestID), Content: err.Error(), IsFinal: true}
				kind = model.KindResponse
			}
			if payload == nil {
				payload = model.Ack{}
				kind = model.KindAck
			}
			out, err := NewFrame(in.RequestID, kind, payload)
			if err != nil {
				logger.Warn("transport: encode response failed", "error", err)
				return
			}
			select {
			case writeCh <- out:
			case <-ctx.Done():
			}
		}(frame)

		select {
		case err := <-writeErrCh:
			logger.Debug("transport: write loop ended", "error", err)
			return
		default:
		}
	}
}
