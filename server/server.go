// Package server accepts peers over TCP or WebSocket and serves one local
// interface on each of them.
//
// Connection lifecycle:
//
//	Accept conn → transport.Stream → rpc.Connection → driver.Run (one goroutine per peer)
//	  → inbound call: middleware chain → Dispatcher → reply queued → flushed by the same loop
//	  → OnConnect callback may keep the connection to call back into the peer
//
// Every accepted connection is a full peer: if the server was given the
// peer's method table, it can issue calls over the same transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"peer-rpc/codec"
	"peer-rpc/driver"
	"peer-rpc/middleware"
	"peer-rpc/registry"
	"peer-rpc/rpc"
	"peer-rpc/transport"
)

const defaultTTL = 10 // seconds, renewed by the registry's keep-alive

var ErrNoService = errors.New("server: no service registered")

type Option func(*Server)

// WithCodec sets the codec every accepted connection uses.
func WithCodec(cd codec.Codec) Option {
	return func(s *Server) { s.codec = cd }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRemote gives accepted connections the peer's method table so the
// server can call back into its peers.
func WithRemote(table *rpc.Table) Option {
	return func(s *Server) { s.remote = table }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// OnConnect runs fn on every accepted connection before it is driven.
func OnConnect(fn func(*rpc.Connection)) Option {
	return func(s *Server) { s.onConnect = fn }
}

// Server serves a single local interface to every accepted peer.
type Server struct {
	serviceName   string
	service       rpc.Dispatcher
	remote        *rpc.Table
	codec         codec.Codec
	logger        *slog.Logger
	pollInterval  time.Duration
	onConnect     func(*rpc.Connection)
	middlewares   []middleware.Middleware
	registry      registry.Registry
	advertiseAddr string // address published in the registry, routable unlike ":8080"

	listener net.Listener
	wg       sync.WaitGroup // one per connection being driven
	shutdown atomic.Bool    // suppresses the Accept error caused by Shutdown

	ctx    context.Context // cancelled by Shutdown to stop every driver
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*rpc.Connection]struct{}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		codec:  &codec.JSONCodec{},
		logger: slog.Default(),
		conns:  make(map[*rpc.Connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Use appends a middleware around local dispatch. Middlewares run in the
// order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and accepts peers until Shutdown. When reg is not
// nil the service is published under advertiseAddr.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(l, advertiseAddr, reg)
}

// ServeListener is Serve on an existing listener.
func (svr *Server) ServeListener(l net.Listener, advertiseAddr string, reg registry.Registry) error {
	if svr.service == nil {
		l.Close()
		return ErrNoService
	}
	svr.mu.Lock()
	svr.listener = l
	svr.mu.Unlock()

	if advertiseAddr == "" {
		advertiseAddr = l.Addr().String()
	}
	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		inst := registry.ServiceInstance{
			Addr:      advertiseAddr,
			Transport: "tcp",
			Codec:     svr.codec.Type().String(),
			Weight:    1,
		}
		ctx, cancel := context.WithTimeout(svr.ctx, 5*time.Second)
		err := reg.Register(ctx, svr.serviceName, inst, defaultTTL)
		cancel()
		if err != nil {
			l.Close()
			return fmt.Errorf("server: register %s: %w", svr.serviceName, err)
		}
	}

	svr.logger.Info("serving", "service", svr.serviceName, "addr", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.logger.Debug("accepted", "remote", conn.RemoteAddr().String())
		svr.serve(transport.NewStream(conn))
	}
}

// WebSocketHandler accepts peers over WebSocket on an existing HTTP server.
func (svr *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svr.shutdown.Load() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		ws, err := transport.AcceptWebSocket(w, r)
		if err != nil {
			svr.logger.Warn("websocket accept failed", "error", err)
			return
		}
		svr.serve(ws)
	})
}

// serve builds a connection over t and drives it on its own goroutine.
func (svr *Server) serve(t transport.Transport) {
	conn := rpc.NewConnection(t, svr.service, svr.remote,
		rpc.WithCodec(svr.codec),
		rpc.WithLogger(svr.logger),
		rpc.WithMiddleware(svr.middlewares...),
		rpc.WithBaseContext(svr.ctx),
	)

	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		conn.Close()
		return
	}
	svr.conns[conn] = struct{}{}
	svr.wg.Add(1)
	svr.mu.Unlock()

	if svr.onConnect != nil {
		svr.onConnect(conn)
	}

	go func() {
		defer svr.wg.Done()
		var opts []driver.Option
		if svr.pollInterval > 0 {
			opts = append(opts, driver.WithPollInterval(svr.pollInterval))
		}
		err := driver.Run(svr.ctx, conn, opts...)

		svr.mu.Lock()
		delete(svr.conns, conn)
		svr.mu.Unlock()
		conn.Close()

		if err != nil && !errors.Is(err, context.Canceled) {
			svr.logger.Warn("connection ended", "conn", conn.ID(), "error", err)
			return
		}
		svr.logger.Debug("connection closed", "conn", conn.ID())
	}()
}

// Connections returns the number of peers currently being served.
func (svr *Server) Connections() int {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	return len(svr.conns)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop dialing this server)
//  2. Set the shutdown flag and close the listener
//  3. Stop every driver; each flushes its queued replies before returning
//  4. Wait for the drivers to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svr.registry.Deregister(ctx, svr.serviceName, svr.advertiseAddr); err != nil {
			svr.logger.Warn("deregister failed", "error", err)
		}
		cancel()
	}

	svr.mu.Lock()
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()
	svr.cancel()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		svr.mu.Lock()
		for conn := range svr.conns {
			conn.Close()
		}
		svr.mu.Unlock()
		return fmt.Errorf("server: timeout waiting for %d connections to close", svr.Connections())
	}
}
