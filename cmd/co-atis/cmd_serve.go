package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yegors/co-atis/pkg/logger"
	"golang.org/x/net/netutil"
)

// shutdownTimeout bounds graceful shutdown. A run still in flight past it
// is abandoned along with its connection.
const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and static front-end server",
		Long: `Start the HTTP API and static front-end server.

Endpoints:
  POST /api/process_atis  Capture and process the ATIS of an airport
  GET  /api/health        Liveness probe
  GET  /api/airports      Configured airports
  GET  /api/status        Current and last pipeline session
  GET  /images/*          Generated weather diagrams`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return fmt.Errorf("invalid --addr %q: %w", addr, err)
				}
				portNum, err := strconv.Atoi(port)
				if err != nil {
					return fmt.Errorf("invalid --addr port %q: %w", port, err)
				}
				cfg.Server.Host = host
				cfg.Server.Port = portNum
			}

			log, err := newLogger(cfg, nil)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, app); err != nil {
				return &runFailedError{err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (host:port), overrides the configuration")

	return cmd
}

// serve runs the HTTP server until ctx is cancelled
func serve(ctx context.Context, app *application) error {
	cfg := app.config
	log := app.logger.Named("server")

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", cfg.Addr(), err)
	}
	if cfg.Server.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.Server.MaxConnections)
	}

	server := &http.Server{
		Handler:           app.router().Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// A pipeline run holds its connection for the whole capture window
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	log.Info("HTTP server started",
		logger.String("addr", listener.Addr().String()),
		logger.Int("max_connections", cfg.Server.MaxConnections))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("HTTP server shut down successfully")
	return nil
}
