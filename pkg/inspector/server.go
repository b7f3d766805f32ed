package inspector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
var ShutdownTimeout = 5 * time.Second

// ListenAndServe serves the inspector on addr until ctx is cancelled, then
// shuts down gracefully. It returns nil after a clean shutdown.
func (ins *Inspector) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return rerrors.New("R007").
			WithDetailf("cannot listen on %s", addr).
			WithField("addr", addr).
			Wrap(err)
	}
	return ins.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (ins *Inspector) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           ins.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		ins.logger.Info("inspector listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return rerrors.New("R007").WithField("addr", ln.Addr().String()).Wrap(err)

	case <-ctx.Done():
		ins.logger.Info("inspector shutting down")
		ins.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ins.logger.Error("inspector shutdown error", "error", err)
			return rerrors.New("R007").WithDetail("graceful shutdown failed").Wrap(err)
		}
		return nil
	}
}
