// Package transport turns a net.Conn into an ordered stream of complete messages.
//
// Conn owns one TCP connection. Any number of goroutines may Send; a single
// background goroutine (readLoop) reads frames and hands each one, in arrival
// order, to the Handler registered at construction.
//
//	goroutine-1 ──Send──┐
//	goroutine-2 ──Send──┼──→ single TCP conn ──→ peer
//	goroutine-3 ──Send──┘
//
//	readLoop: ←── frame → Handler(header, body)
//
// Conn knows nothing about Calls or Results. When the connection ends, for
// whatever reason, the close callback runs exactly once with the cause.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"contract-rpc/protocol"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Send after the connection has ended.
	ErrClosed = errors.New("transport: connection closed")
	// ErrFrameTooLarge is returned by Send for a body over protocol.MaxBodyLen.
	// Nothing is written and the connection stays usable.
	ErrFrameTooLarge = errors.New("transport: frame too large")
)

// Handler receives every non-heartbeat frame. It runs on the read goroutine,
// so slow work must be handed off.
type Handler func(h *protocol.Header, body []byte)

// Option configures a Conn.
type Option func(*Conn)

// WithHeartbeat sends an empty heartbeat frame every interval.
// A failed heartbeat write ends the connection.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Conn) {
		c.heartbeat = interval
	}
}

// WithCloseHandler registers fn to run once when the connection ends.
// err is nil after a local Close.
func WithCloseHandler(fn func(err error)) Option {
	return func(c *Conn) {
		c.onClose = fn
	}
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// Conn manages a single framed TCP connection.
type Conn struct {
	conn      net.Conn
	handler   Handler
	onClose   func(err error)
	heartbeat time.Duration
	logger    *zap.Logger

	sending sync.Mutex // Whole frames must be written atomically

	closeOnce sync.Once
	closing   atomic.Bool // Set by Close; a local close is not an error
	done      chan struct{}
	err       error
}

// NewConn wraps conn and starts the read loop (and heartbeat loop, if enabled).
func NewConn(conn net.Conn, handler Handler, opts ...Option) *Conn {
	c := &Conn{
		conn:    conn,
		handler: handler,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	if c.heartbeat > 0 {
		go c.heartbeatLoop(c.heartbeat)
	}
	return c
}

// Send writes one frame. Safe for concurrent use.
func (c *Conn) Send(msgType protocol.MsgType, codecType byte, body []byte) error {
	if len(body) > int(protocol.MaxBodyLen) {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes, limit %d", len(body), protocol.MaxBodyLen)
	}
	header := protocol.Header{
		CodecType: codecType,
		MsgType:   msgType,
		BodyLen:   uint32(len(body)),
	}

	c.sending.Lock()
	defer c.sending.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := protocol.Encode(c.conn, &header, body); err != nil {
		// A partial write leaves the stream unusable for every caller.
		go c.shutdown(errors.Wrap(err, "transport: write"))
		return errors.Wrap(err, "transport: write")
	}
	return nil
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closing.Store(true)
	c.shutdown(nil)
	return nil
}

// Done is closed when the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended: nil while open or after a local Close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// readLoop is the only reader: frame boundaries can only be parsed sequentially.
func (c *Conn) readLoop() {
	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			c.shutdown(errors.Wrap(err, "transport: read"))
			return
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		c.handler(header, body)
	}
}

// heartbeatLoop keeps idle connections alive and detects dead peers on write.
func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Send(protocol.MsgTypeHeartbeat, protocol.CodecTypeJSON, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if c.closing.Load() {
			cause = nil
		}

		c.err = cause
		close(c.done)
		if err := c.conn.Close(); err != nil && cause == nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
		if cause != nil {
			c.logger.Debug("connection ended", zap.Stringer("remote", c.conn.RemoteAddr()), zap.Error(cause))
		}
		if c.onClose != nil {
			c.onClose(cause)
		}
	})
}
