package main

import (
	"context"
	"errors"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/maxpoletaev/gossiplb/grpcfactory"
	"github.com/maxpoletaev/gossiplb/loadbalancer"
	"github.com/maxpoletaev/gossiplb/membership"
)

// prober periodically picks an endpoint of every balanced service and checks
// its health, so that the balancing is visible in the logs.
type prober struct {
	selectors map[membership.ServiceType]*loadbalancer.Selector[*grpc.ClientConn]
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    kitlog.Logger
}

func newProber(
	selectors map[membership.ServiceType]*loadbalancer.Selector[*grpc.ClientConn],
	interval, timeout time.Duration,
	logger kitlog.Logger,
) *prober {
	return &prober{
		selectors: selectors,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		timeout:   timeout,
		logger:    logger,
	}
}

func (p *prober) Run(ctx context.Context) {
	types := maps.Keys(p.selectors)
	slices.Sort(types)

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		for _, st := range types {
			p.probe(ctx, p.selectors[st])
		}
	}
}

func (p *prober) probe(ctx context.Context, sel *loadbalancer.Selector[*grpc.ClientConn]) {
	conn, err := sel.Endpoint()
	if err != nil {
		if errors.Is(err, loadbalancer.ErrServiceUnavailable) {
			level.Debug(p.logger).Log("msg", "no endpoints available", "service_type", sel.Type())
			return
		}

		level.Error(p.logger).Log("msg", "failed to select endpoint", "service_type", sel.Type(), "err", err)

		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		level.Warn(p.logger).Log(
			"msg", "health check failed",
			"service_type", sel.Type(),
			"target", conn.Target(),
			"err", err,
		)

		return
	}

	level.Info(p.logger).Log(
		"msg", "health check",
		"service_type", sel.Type(),
		"target", conn.Target(),
		"status", resp.Status,
		"ready", grpcfactory.IsReady(conn),
		"endpoints", sel.Len(),
	)
}
