// Package client turns method calls on contract interfaces into remote Calls.
//
// One Client owns one connection and one PendingTable. Any number of
// goroutines may call through its proxies at once: each call registers its own
// slot under a fresh requestId, sends one Call, and blocks on that slot until
// the matching Result, a timeout, or connection loss.
//
//	caller ─→ Proxy.Invoke ─→ PendingTable.Register ─→ Conn.Send
//	                                                      ⋮
//	caller ←─ slot ←─ PendingTable.Fulfill ←─ demux ←─ Conn read loop
package client

import (
	"context"
	"net"
	"reflect"
	"sync"
	"time"

	"contract-rpc/codec"
	"contract-rpc/contract"
	"contract-rpc/message"
	"contract-rpc/protocol"
	"contract-rpc/rpcerr"
	"contract-rpc/transport"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultCallTimeout = 10 * time.Second
	DefaultDialTimeout = 5 * time.Second
	DefaultDialTries   = 3
)

type options struct {
	codecType   codec.CodecType
	callTimeout time.Duration
	heartbeat   time.Duration
	dialTimeout time.Duration
	dialTries   uint
	logger      *zap.Logger
	tracer      trace.TracerProvider
}

// Option configures a Client.
type Option func(*options)

// WithCodec selects the envelope codec for outgoing Calls.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codecType = t }
}

// WithCallTimeout bounds how long a caller waits for its Result. 0 disables it;
// a context deadline still applies.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithHeartbeat sends keepalive frames on the connection every interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) { o.heartbeat = interval }
}

// WithDialTimeout bounds each connection attempt made by Dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithDialTries sets how many times Dial attempts to connect before giving up.
func WithDialTries(n uint) Option {
	return func(o *options) { o.dialTries = n }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracerProvider sets where call spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// Client manages a single multiplexed connection to a server.
type Client struct {
	conn    *transport.Conn
	codec   codec.Codec
	pending *PendingTable
	opts    options
	logger  *zap.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	proxies map[proxyKey]*cachedProxy // Built on first use
}

// proxyKey tells apart contracts that share a wire name but not an interface.
type proxyKey struct {
	name string
	typ  reflect.Type
}

type cachedProxy struct {
	proxy *Proxy
	stub  any // Typed stand-in, built on first Bind/For
}

// Dial connects to a server, retrying with exponential backoff.
func Dial(ctx context.Context, network, address string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.dialTries == 0 {
		o.dialTries = 1
	}
	dialer := &net.Dialer{Timeout: o.dialTimeout}
	conn, err := backoff.Retry(ctx, func() (net.Conn, error) {
		c, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			o.logger.Debug("dial failed", zap.String("addr", address), zap.Error(err))
		}
		return c, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(o.dialTries))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	return NewClient(conn, opts...)
}

// NewClient takes ownership of conn and starts reading Results from it.
func NewClient(conn net.Conn, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cdc, err := codec.GetCodec(o.codecType)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		codec:   cdc,
		pending: NewPendingTable(),
		opts:    o,
		logger:  o.logger,
		tracer:  o.tracer.Tracer("contract-rpc/client"),
		proxies: make(map[proxyKey]*cachedProxy),
	}
	topts := []transport.Option{
		transport.WithCloseHandler(c.connectionLost),
		transport.WithLogger(o.logger),
	}
	if o.heartbeat > 0 {
		topts = append(topts, transport.WithHeartbeat(o.heartbeat))
	}
	c.conn = transport.NewConn(conn, c.demux, topts...)
	return c, nil
}

func defaultOptions() options {
	return options{
		codecType:   codec.CodecTypeJSON,
		callTimeout: DefaultCallTimeout,
		dialTimeout: DefaultDialTimeout,
		dialTries:   DefaultDialTries,
		logger:      zap.NewNop(),
		tracer:      otel.GetTracerProvider(),
	}
}

// Proxy returns the proxy bound to desc, creating and caching it on first use.
func (c *Client) Proxy(desc *contract.Descriptor) *Proxy {
	return c.cached(desc).proxy
}

func (c *Client) cached(desc *contract.Descriptor) *cachedProxy {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := proxyKey{name: desc.Name, typ: desc.Type}
	if cp, ok := c.proxies[key]; ok {
		return cp
	}
	cp := &cachedProxy{proxy: &Proxy{client: c, desc: desc}}
	c.proxies[key] = cp
	return cp
}

// For returns the typed stand-in for contract ct. Every call on it becomes a
// remote Call over c. The same stand-in is returned on every call.
func For[T any](c *Client, ct *contract.Contract[T]) T {
	cp := c.cached(ct.Descriptor)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cp.stub == nil {
		cp.stub = ct.Stub(cp.proxy)
	}
	return cp.stub.(T)
}

// Bind stores the typed stand-in for ct into site, wherever the caller keeps it.
func Bind[T any](c *Client, site *T, ct *contract.Contract[T]) error {
	if site == nil {
		return errors.Errorf("bind %s: nil reference site", ct.Name)
	}
	*site = For(c, ct)
	return nil
}

// Close closes the connection. Outstanding calls fail with ErrConnectionClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Pending returns the number of calls waiting for a Result.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// send encodes call and writes it as one frame.
func (c *Client) send(call *message.Call) error {
	body, err := c.codec.Encode(call)
	if err != nil {
		return err
	}
	err = c.conn.Send(protocol.MsgTypeCall, byte(c.codec.Type()), body)
	if errors.Is(err, transport.ErrFrameTooLarge) {
		return rpcerr.Serialization(err, "%s.%s arguments", call.ContractName, call.MethodName)
	}
	return err
}

// demux runs on the read goroutine for every inbound frame: decode the Result
// and wake the caller waiting for its requestId. Results nobody waits for are
// dropped; they are never fatal.
func (c *Client) demux(h *protocol.Header, body []byte) {
	if h.MsgType != protocol.MsgTypeResult {
		c.logger.Warn("unexpected frame from server", zap.Stringer("type", h.MsgType))
		return
	}
	cdc, err := codec.GetCodec(codec.CodecType(h.CodecType))
	if err != nil {
		c.logger.Warn("result with unknown codec", zap.Error(err))
		return
	}
	res := &message.Result{}
	if err := cdc.Decode(body, res); err != nil {
		c.logger.Warn("malformed result", zap.String("requestId", res.RequestID), zap.Error(err))
		// A readable requestId still identifies the caller to fail.
		if res.RequestID != "" {
			c.pending.Fail(res.RequestID, err)
		}
		return
	}
	if !c.pending.Fulfill(res) {
		c.logger.Debug("discarding result with no pending call", zap.String("requestId", res.RequestID))
	}
}

// connectionLost fails every outstanding call and every call made afterwards.
func (c *Client) connectionLost(cause error) {
	c.pending.FailAll(errClosed(cause))
}
