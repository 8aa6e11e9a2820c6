package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ash2k/stager/wait"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/maxpoletaev/gossiplb/api"
	"github.com/maxpoletaev/gossiplb/gossip"
	"github.com/maxpoletaev/gossiplb/grpcfactory"
	"github.com/maxpoletaev/gossiplb/loadbalancer"
	"github.com/maxpoletaev/gossiplb/membership"
	"github.com/maxpoletaev/gossiplb/tracker"
)

type shutdownFunc func(ctx context.Context) error

var noopShutdown = func(ctx context.Context) error { return nil }

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func setupLogger() (kitlog.Logger, shutdownFunc) {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger, noopShutdown
}

func setupLoadBalancer(logger kitlog.Logger) (*loadbalancer.LoadBalancer, map[membership.ServiceType]*loadbalancer.Selector[*grpc.ClientConn], shutdownFunc) {
	policy, err := parseIdentityChange(opts.Balance.IdentityChange)
	if err != nil {
		panic(err)
	}

	types, err := parseServiceTypes(opts.Balance.Types)
	if err != nil {
		panic(err)
	}

	conf := loadbalancer.DefaultConfig()
	conf.IdentityChange = policy
	conf.Logger = logger

	lb := loadbalancer.New(conf)

	factoryConf := grpcfactory.DefaultConfig()
	factoryConf.DialTimeout = millis(opts.Balance.DialTimeout)
	factory := grpcfactory.New(factoryConf)

	selectors := make(map[membership.ServiceType]*loadbalancer.Selector[*grpc.ClientConn], len(types))
	for _, st := range types {
		selectors[st] = loadbalancer.MustRegister[*grpc.ClientConn](lb, st, factory)
	}

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "closing endpoint connections")

		if err := lb.Drain(); err != nil {
			return fmt.Errorf("failed to close endpoints: %w", err)
		}

		return nil
	}

	return lb, selectors, shutdown
}

func setupGRPCServer(wg *wait.Group, logger kitlog.Logger) (*grpc.Server, shutdownFunc) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	bindAddr := net.JoinHostPort(opts.Service.BindHost, strconv.Itoa(int(opts.Service.Port)))

	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		panic(fmt.Sprintf("failed to create GRPC listener: %v", err))
	}

	wg.Start(func() {
		if err := grpcServer.Serve(listener); err != nil {
			panic(fmt.Sprintf("failed to start GRPC server: %v", err))
		}
	})

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "shutting down GRPC server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		return nil
	}

	return grpcServer, shutdown
}

func setupGossip(wg *wait.Group, listener membership.Listener, logger kitlog.Logger) shutdownFunc {
	conf := gossip.DefaultConfig()
	conf.NodeName = opts.Node.Name
	conf.BindAddr = opts.Gossip.BindAddr
	conf.BindPort = opts.Gossip.BindPort
	conf.AdvertiseAddr = opts.Gossip.AdvertiseAddr
	conf.AdvertisePort = opts.Gossip.AdvertisePort
	conf.EventBuffer = opts.Gossip.EventBuffer
	conf.ServiceType = membership.ServiceType(opts.Service.Type)
	conf.ServicePort = opts.Service.Port
	conf.Logger = logger

	g, err := gossip.Start(conf, listener)
	if err != nil {
		panic(fmt.Sprintf("failed to start gossip: %v", err))
	}

	level.Info(logger).Log("msg", "gossip started", "addr", g.LocalAddress())

	joinCtx, cancelJoin := context.WithCancel(context.Background())

	if seeds := parseAddrs(opts.Gossip.JoinAddrs); len(seeds) > 0 {
		wg.StartWithContext(joinCtx, func(ctx context.Context) {
			if err := g.Join(ctx, seeds); err != nil {
				level.Error(logger).Log("msg", "failed to join cluster", "err", err)
			}
		})
	}

	shutdown := func(ctx context.Context) error {
		cancelJoin()

		logger.Log("msg", "leaving cluster")

		timeout := time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}

		if err := g.Leave(timeout); err != nil {
			level.Warn(logger).Log("msg", "failed to leave cluster", "err", err)
		}

		if err := g.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown gossip: %w", err)
		}

		return nil
	}

	return shutdown
}

func setupTracker(wg *wait.Group, listener membership.Listener, logger kitlog.Logger) shutdownFunc {
	client := redis.NewClient(&redis.Options{
		Addr: opts.Redis.Addr,
		DB:   0,
	})

	conf := tracker.DefaultConfig()
	conf.Namespace = opts.Redis.Namespace
	conf.ServiceType = membership.ServiceType(opts.Service.Type)
	conf.ServicePort = opts.Service.Port
	conf.UpdateInterval = millis(opts.Redis.UpdateInterval)
	conf.ExpiryInterval = millis(opts.Redis.ExpiryInterval)
	conf.Logger = logger

	if opts.Redis.AdvertiseHost != "" {
		conf.Self = membership.Address{
			Host: opts.Redis.AdvertiseHost,
			Port: opts.Service.Port,
		}
	}

	t := tracker.New(client, listener, conf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	wg.Start(func() {
		defer close(done)
		t.Run(ctx)
	})

	level.Info(logger).Log("msg", "redis tracker started", "redis", opts.Redis.Addr, "namespace", conf.Namespace)

	shutdown := func(context.Context) error {
		logger.Log("msg", "leaving cluster")

		cancel()
		<-done

		return client.Close()
	}

	return shutdown
}

func setupAPIServer(wg *wait.Group, registry api.Registry, logger kitlog.Logger) shutdownFunc {
	ctx, cancel := context.WithCancel(context.Background())

	wg.StartWithContext(ctx, func(ctx context.Context) {
		if err := api.StartServer(ctx, registry, logger, opts.API.BindAddr); err != nil {
			panic(fmt.Sprintf("failed to start admin API server: %v", err))
		}
	})

	shutdown := func(context.Context) error {
		logger.Log("msg", "shutting down API server")
		cancel()

		return nil
	}

	return shutdown
}
