package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, log logger.Logger) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errFactory.Wrap(ErrListen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ln)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")

	select {
	case err := <-done:
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	<-done

	return nil
}
