package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"
)

const shutdownTimeout = 5 * time.Second

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Println("cli error:", err)
		}

		os.Exit(2)
	}

	var wg wait.Group

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Initialize all components. Services must be registered before any
	// membership event arrives.
	logger, closeLogger := setupLogger()
	lb, selectors, closeLoadBalancer := setupLoadBalancer(logger)
	_, closeGrpcServer := setupGRPCServer(&wg, logger)

	var closeMembership shutdownFunc
	if opts.Redis.Addr != "" {
		closeMembership = setupTracker(&wg, lb, logger)
	} else {
		closeMembership = setupGossip(&wg, lb, logger)
	}

	// Components must be shut down in a particular order: connections to
	// other nodes are closed only after membership events stop.
	shutdownOrder := []shutdownFunc{
		closeMembership,
		closeLoadBalancer,
		closeGrpcServer,
		closeLogger,
	}

	if opts.API.Enabled {
		closeAPIServer := setupAPIServer(&wg, lb, logger)
		shutdownOrder = append([]shutdownFunc{closeAPIServer}, shutdownOrder...)
	}

	probeCtx, cancelProbe := context.WithCancel(context.Background())
	if len(selectors) > 0 {
		pr := newProber(selectors, millis(opts.Balance.ProbeInterval), millis(opts.Balance.ProbeTimeout), logger)
		wg.StartWithContext(probeCtx, pr.Run)
	}

	// Block until we receive a signal to shut down.
	<-interrupt
	cancelProbe()
	level.Info(logger).Log("msg", "received interrupt signal, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Shutdown all components.
	for _, f := range shutdownOrder {
		if err := f(ctx); err != nil {
			level.Error(logger).Log("msg", "failed to shutdown component", "err", err)
		}
	}

	// Wait for all components to finish background tasks.
	wg.Wait()
}
