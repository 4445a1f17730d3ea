package operator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
)

// serveOps runs the ops HTTP server until ctx is cancelled. The
// server speaks HTTP/1 and unencrypted HTTP/2 so gRPC health probes
// work without TLS.
func serveOps(ctx context.Context, address string, handler *Handler) error {
	mux := http.NewServeMux()
	if err := handler.Mount(mux); err != nil {
		return err
	}

	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	srv := &http.Server{
		Addr:              address,
		Handler:           cors.AllowAll().Handler(mux),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
		Protocols:         protocols,
	}

	listener, err := net.Listen("tcp", address) //nolint:noctx // context not needed for Listen
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Ops endpoint listening on", "address", listener.Addr().String())
	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
