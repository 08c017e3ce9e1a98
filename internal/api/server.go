package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RishiKendai/contestguard/internal/metrics"
	"github.com/rs/zerolog/log"
)

// StartServer serves handler on port in a goroutine and returns the server for
// graceful shutdown. Listen failures are sent on the returned channel.
func StartServer(name string, handler http.Handler, port string) (*http.Server, <-chan error) {
	addr := fmt.Sprintf(":%s", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("server", name).Str("address", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server failed: %w", name, err)
		}
		close(errCh)
	}()

	return srv, errCh
}

// StartMetricsServer exposes /metrics on port.
func StartMetricsServer(port string) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return StartServer("metrics", mux, port)
}

// ShutdownServer gracefully shuts down the HTTP server
// It waits for the specified timeout for existing connections to close
func ShutdownServer(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Str("address", srv.Addr).Msg("HTTP server shutdown complete")
	return nil
}
