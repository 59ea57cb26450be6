// Command peerd serves an Arith interface to peers, or calls one.
//
//	peerd -config peerd.yaml                      serve
//	peerd -call 127.0.0.1:9000 -op add 3 4        call a known address
//	peerd -discover -op multiply -n 8 6 7         call through etcd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"peer-rpc/client"
	"peer-rpc/codec"
	"peer-rpc/config"
	"peer-rpc/logging"
	"peer-rpc/middleware"
	"peer-rpc/registry"
	"peer-rpc/rpc"
	"peer-rpc/server"
	"peer-rpc/tracing"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "peerd.yaml", "path to the YAML config")
		callAddr   = flag.String("call", "", "call the peer at this address instead of serving")
		discover   = flag.Bool("discover", false, "call a peer found in etcd instead of serving")
		op         = flag.String("op", "add", "add, multiply, divide or ping")
		n          = flag.Int("n", 1, "number of concurrent calls")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracer.Exporter, os.Stderr)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		return 2
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	if *callAddr != "" || *discover {
		err = runCaller(ctx, cfg, logger, *callAddr, *op, *n, flag.Args())
	} else {
		err = runServer(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("peerd failed", "error", err)
		return 1
	}
	return 0
}

func newRegistry(cfg *config.Config, logger *slog.Logger) (*registry.EtcdRegistry, error) {
	if len(cfg.Etcd.Endpoints) == 0 {
		return nil, nil
	}
	return registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout, logger)
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ct, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return err
	}

	svr := server.NewServer(
		server.WithCodec(codec.GetCodec(ct)),
		server.WithLogger(logger),
		server.WithRemote(rpc.MustTable[Caller]()),
		server.WithPollInterval(cfg.Driver.PollInterval),
		server.OnConnect(func(c *rpc.Connection) {
			logger.Info("peer connected", "conn", c.ID())
		}),
	)
	svc, err := rpc.NewService[Arith](&arith{logger: logger})
	if err != nil {
		return err
	}
	name := cfg.Service
	if name == "" {
		name = svc.Table().Name()
	}
	svr.Handle(name, svc)

	svr.Use(middleware.RecoverMiddleware(logger))
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.Tracer.Exporter != "" && cfg.Tracer.Exporter != "noop" {
		svr.Use(middleware.TracingMiddleware(tracing.Tracer()))
	}
	if cfg.Dispatch.Timeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Dispatch.Timeout))
	}
	if cfg.Dispatch.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Dispatch.RateLimit, cfg.Dispatch.Burst))
	}

	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}
	var r registry.Registry
	if reg != nil {
		defer reg.Close()
		r = reg
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svr.Serve("tcp", cfg.Listen, cfg.Advertise, r)
	})

	var hs *http.Server
	if cfg.WebSocket != "" {
		hs = &http.Server{Addr: cfg.WebSocket, Handler: svr.WebSocketHandler()}
		g.Go(func() error {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		if hs != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(sctx)
		}
		return svr.Shutdown(5 * time.Second)
	})

	return g.Wait()
}

func runCaller(ctx context.Context, cfg *config.Config, logger *slog.Logger, addr, op string, n int, args []string) error {
	ct, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return err
	}
	local, err := rpc.NewService[Caller](caller{name: "peerd-" + strconv.Itoa(os.Getpid())})
	if err != nil {
		return err
	}
	opts := []client.Option{
		client.WithCodec(codec.GetCodec(ct)),
		client.WithLogger(logger),
		client.WithPollInterval(cfg.Driver.PollInterval),
	}

	var peer *client.Peer
	if addr != "" {
		peer, err = client.Dial(ctx, "tcp", addr, local, rpc.MustTable[Arith](), opts...)
	} else {
		reg, rerr := newRegistry(cfg, logger)
		if rerr != nil {
			return rerr
		}
		if reg == nil {
			return errors.New("-discover needs etcd.endpoints")
		}
		defer reg.Close()
		service := cfg.Service
		if service == "" {
			service = rpc.MustTable[Arith]().Name()
		}
		peer, err = client.NewClient(reg, nil, opts...).Dial(ctx, service, local, rpc.MustTable[Arith]())
	}
	if err != nil {
		return err
	}
	defer peer.Close()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, err := invoke(gctx, peer, op, args)
			if err != nil {
				return err
			}
			fmt.Printf("%s%v = %v\n", op, args, out)
			return nil
		})
	}
	return g.Wait()
}

func invoke(ctx context.Context, peer *client.Peer, op string, args []string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch op {
	case "ping":
		return client.Call[string](ctx, peer, "Ping")
	case "add", "multiply":
		a, b, err := intArgs(args)
		if err != nil {
			return nil, err
		}
		method := "Add"
		if op == "multiply" {
			method = "Multiply"
		}
		return client.Call[int](ctx, peer, method, a, b)
	case "divide":
		if len(args) != 2 {
			return nil, errors.New("divide needs two operands")
		}
		a, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, err
		}
		return client.Call[float64](ctx, peer, "Divide", a, b)
	}
	return nil, fmt.Errorf("unknown op %q", op)
}

func intArgs(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, errors.New("need two integer operands")
	}
	a, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
