package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/crm-assist/internal/server"
	"github.com/shpitdev/crm-assist/internal/snapshot"
	"github.com/shpitdev/crm-assist/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant operations over HTTP",
		Long: `Serves the assistant operations over HTTP. When a workspace file is configured
it is watched and reloaded on change; a file that fails to parse keeps the
previous snapshot in service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return a.serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (env: CRM_ASSIST_ADDR, default :8080)")
	return cmd
}

// serve runs the HTTP API on ln until ctx is done, then shuts down gracefully.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	metrics := server.NewMetrics()
	gw, err := a.gateway(ctx, metrics.ObserveOperation)
	if err != nil {
		_ = ln.Close()
		return err
	}
	store, err := snapshot.NewStore(a.cfg.Workspace, a.logger)
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := server.New(server.Config{
		Assistant:   gw,
		Workspaces:  store,
		Metrics:     metrics,
		Logger:      a.logger,
		Intake:      a.mapper(),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Version:     version.Current,
	})
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("model", a.cfg.Gemini.Model))
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return store.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
