// Package server exposes registered implementations over the frame protocol.
//
// Request processing pipeline:
//
//	Accept conn → transport.Conn (single goroutine reads frames)
//	  → for each Call: go handleCall (parallel processing)
//	    → Codec.Decode → Middleware Chain → Dispatcher.Process → Codec.Encode → Conn.Send
//
// One Registry and one Dispatcher serve every connection. A failing Call only
// ever produces a failed Result; it never closes the connection.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"contract-rpc/codec"
	"contract-rpc/message"
	"contract-rpc/middleware"
	"contract-rpc/protocol"
	"contract-rpc/transport"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MsgShuttingDown answers Calls that arrive after Shutdown has begun.
	MsgShuttingDown = "server is shutting down"
	// MsgResultTooLarge replaces a Result whose encoding exceeds the frame limit.
	MsgResultTooLarge = "result too large"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server accepts connections and answers the Calls they carry.
type Server struct {
	registry    *Registry
	dispatcher  *Dispatcher
	middlewares []middleware.Middleware // Applied in the order added
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatcher)))
	logger      *zap.Logger

	ctx    context.Context // Parent of every Call's context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[*transport.Conn]struct{}
	inflight sync.WaitGroup // Calls being processed, for graceful shutdown
	shutdown atomic.Bool    // Set before the listener closes, so Accept errors are expected
}

// NewServer creates a server for the implementations in registry.
func NewServer(registry *Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		logger:   zap.NewNop(),
		conns:    make(map[*transport.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = NewDispatcher(registry, s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Use registers a middleware. It must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// ListenAndServe listens on address and serves until Shutdown.
func (s *Server) ListenAndServe(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrapf(err, "listen %s", address)
	}
	return s.Serve(ln)
}

// Serve freezes the registry and accepts connections on ln until Shutdown,
// after which it returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.registry.Freeze()
	// Build the chain once, not per Call.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatcher.Process)

	s.logger.Info("serving",
		zap.Stringer("addr", ln.Addr()),
		zap.Strings("contracts", s.registry.Names()))

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		s.handleConn(nc)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn starts serving one connection. Frames are read by the Conn's
// single read goroutine; each Call is processed in its own goroutine so a slow
// method never blocks the Calls behind it.
func (s *Server) handleConn(nc net.Conn) {
	// The callbacks may fire before NewConn returns.
	ready := make(chan struct{})
	var tc *transport.Conn
	tc = transport.NewConn(nc,
		func(h *protocol.Header, body []byte) {
			<-ready
			s.handleFrame(tc, h, body)
		},
		transport.WithLogger(s.logger),
		transport.WithCloseHandler(func(err error) {
			<-ready
			s.mu.Lock()
			delete(s.conns, tc)
			s.mu.Unlock()
			s.logger.Debug("connection closed", zap.Stringer("remote", nc.RemoteAddr()), zap.Error(err))
		}),
	)

	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		close(ready)
		tc.Close()
		return
	}
	s.conns[tc] = struct{}{}
	s.mu.Unlock()
	close(ready)

	s.logger.Debug("connection accepted", zap.Stringer("remote", nc.RemoteAddr()))
}

func (s *Server) handleFrame(tc *transport.Conn, h *protocol.Header, body []byte) {
	if h.MsgType != protocol.MsgTypeCall {
		s.logger.Warn("unexpected frame from client", zap.Stringer("type", h.MsgType))
		return
	}

	s.mu.Lock()
	closing := s.shutdown.Load()
	if !closing {
		s.inflight.Add(1)
	}
	s.mu.Unlock()

	go s.handleCall(tc, h, body, closing)
}

// handleCall decodes one Call, runs it through the chain and sends the Result
// back in the codec the Call arrived in.
func (s *Server) handleCall(tc *transport.Conn, h *protocol.Header, body []byte, closing bool) {
	if !closing {
		defer s.inflight.Done()
	}

	cdc, err := codec.GetCodec(codec.CodecType(h.CodecType))
	if err != nil {
		s.logger.Warn("dropping call", zap.Error(err))
		return
	}

	call := &message.Call{}
	err = cdc.Decode(body, call)
	if err == nil {
		err = call.Validate()
	}
	if err != nil {
		if call.RequestID == "" {
			s.logger.Warn("dropping unreadable call", zap.Stringer("remote", tc.RemoteAddr()), zap.Error(err))
			return
		}
		s.reply(tc, cdc, message.Failure(call.RequestID, err.Error()))
		return
	}

	if closing {
		s.reply(tc, cdc, message.Failure(call.RequestID, MsgShuttingDown))
		return
	}

	res := s.handler(s.ctx, call)
	if res == nil {
		res = message.Failure(call.RequestID, "no result")
	}
	res.RequestID = call.RequestID
	s.reply(tc, cdc, res)
}

func (s *Server) reply(tc *transport.Conn, cdc codec.Codec, res *message.Result) {
	body, err := cdc.Encode(res)
	if err != nil {
		s.logger.Error("encode result", zap.String("requestId", res.RequestID), zap.Error(err))
		if body, err = cdc.Encode(message.Failure(res.RequestID, err.Error())); err != nil {
			return
		}
	}
	if len(body) > int(protocol.MaxBodyLen) {
		s.logger.Warn("result too large", zap.String("requestId", res.RequestID), zap.Int("bytes", len(body)))
		if body, err = cdc.Encode(message.Failure(res.RequestID, MsgResultTooLarge)); err != nil {
			return
		}
	}
	if err := tc.Send(protocol.MsgTypeResult, byte(cdc.Type()), body); err != nil {
		s.logger.Debug("send result", zap.String("requestId", res.RequestID), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Set the shutdown flag (so the Accept error is recognized as intentional)
//  2. Close the listener (stop accepting new connections)
//  3. Wait for in-flight Calls to finish, at most timeout
//  4. Close every connection
//
// Calls arriving on open connections meanwhile are answered with MsgShuttingDown.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("timeout waiting for in-flight calls to finish")
	}
	s.cancel()

	s.mu.Lock()
	conns := make([]*transport.Conn, 0, len(s.conns))
	for tc := range s.conns {
		conns = append(conns, tc)
	}
	s.mu.Unlock()

	var eg errgroup.Group
	for _, tc := range conns {
		eg.Go(tc.Close)
	}
	if cerr := eg.Wait(); err == nil {
		err = cerr
	}
	return err
}
