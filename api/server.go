package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const shutdownTimeout = 2 * time.Second

// StartServer serves the admin API until the context is done.
func StartServer(ctx context.Context, registry Registry, logger kitlog.Logger, bindAddr string) error {
	server := &http.Server{
		Addr:              bindAddr,
		Handler:           NewRouter(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		c, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(c); err != nil {
			level.Error(logger).Log("msg", "failed to shutdown server", "err", err)
		}
	}()

	level.Info(logger).Log("msg", "starting admin api", "addr", bindAddr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
