// Package client opens connections to peers found in a registry, or at a
// known address, and drives each one on a background goroutine.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"peer-rpc/codec"
	"peer-rpc/loadbalance"
	"peer-rpc/middleware"
	"peer-rpc/registry"
	"peer-rpc/rpc"
	"peer-rpc/transport"
)

type options struct {
	codec        codec.Codec
	logger       *slog.Logger
	dialTimeout  time.Duration
	pollInterval time.Duration
	middlewares  []middleware.Middleware

	breakerFailures uint32
	breakerTimeout  time.Duration
}

type Option func(*options)

// WithCodec sets the codec used when the registry does not name one.
func WithCodec(cd codec.Codec) Option {
	return func(o *options) { o.codec = cd }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithMiddleware wraps the dispatch of calls the peer makes back to us.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mw...) }
}

func newOptions(opts []Option) options {
	o := options{
		codec:       &codec.JSONCodec{},
		logger:      slog.Default(),
		dialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client dials peers that serve a named interface. Dials to each instance
// go through a circuit breaker, so an instance that keeps refusing
// connections is skipped until its breaker half-opens.
type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	opts     options

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Peer]
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	return &Client{
		registry: reg,
		balancer: bal,
		opts:     newOptions(opts),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Peer]),
	}
}

// Dial discovers the instances of serviceName, lets the balancer pick one and
// connects to it. local serves the calls the peer makes back (may be nil);
// remote is the peer's method table.
func (c *Client) Dial(ctx context.Context, serviceName string, local rpc.Dispatcher, remote *rpc.Table) (*Peer, error) {
	instances, err := c.registry.Discover(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	inst, err := c.balancer.Pick(instances)
	if err != nil {
		return nil, err
	}
	c.opts.logger.Debug("picked instance", "service", serviceName, "addr", inst.Addr, "balancer", c.balancer.Name())
	return c.dialInstance(ctx, *inst, local, remote)
}

// DialAffinity connects to the instance that owns key on a consistent-hash
// ring, so the same key keeps reaching the same peer.
func (c *Client) DialAffinity(ctx context.Context, serviceName, key string, local rpc.Dispatcher, remote *rpc.Table) (*Peer, error) {
	instances, err := c.registry.Discover(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	ring := loadbalance.NewConsistentHashBalancer()
	ring.Reset(instances)
	inst, err := ring.PickKey(key)
	if err != nil {
		return nil, err
	}
	return c.dialInstance(ctx, *inst, local, remote)
}

func (c *Client) dialInstance(ctx context.Context, inst registry.ServiceInstance, local rpc.Dispatcher, remote *rpc.Table) (*Peer, error) {
	o := c.opts
	if inst.Codec != "" {
		ct, err := codec.ParseCodecType(inst.Codec)
		if err != nil {
			return nil, fmt.Errorf("client: instance %s: %w", inst.Addr, err)
		}
		o.codec = codec.GetCodec(ct)
	}

	switch inst.Transport {
	case "", "tcp":
		return c.dialGuarded(inst.Addr, func() (*Peer, error) {
			return dial(ctx, "tcp", inst.Addr, local, remote, o)
		})
	case "ws":
		return c.dialGuarded(inst.Addr, func() (*Peer, error) {
			return dialWebSocket(ctx, inst.Addr, local, remote, o)
		})
	}
	return nil, fmt.Errorf("client: instance %s: unknown transport %q", inst.Addr, inst.Transport)
}

// Dial connects straight to addr without a registry.
func Dial(ctx context.Context, network, addr string, local rpc.Dispatcher, remote *rpc.Table, opts ...Option) (*Peer, error) {
	return dial(ctx, network, addr, local, remote, newOptions(opts))
}

// DialWebSocket connects to a server's WebSocket endpoint.
func DialWebSocket(ctx context.Context, url string, local rpc.Dispatcher, remote *rpc.Table, opts ...Option) (*Peer, error) {
	return dialWebSocket(ctx, url, local, remote, newOptions(opts))
}

func dial(ctx context.Context, network, addr string, local rpc.Dispatcher, remote *rpc.Table, o options) (*Peer, error) {
	timeout := o.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	st, err := transport.Dial(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	return start(st, local, remote, o), nil
}

func dialWebSocket(ctx context.Context, url string, local rpc.Dispatcher, remote *rpc.Table, o options) (*Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, o.dialTimeout)
	defer cancel()
	ws, err := transport.DialWebSocket(ctx, url)
	if err != nil {
		return nil, err
	}
	return start(ws, local, remote, o), nil
}
