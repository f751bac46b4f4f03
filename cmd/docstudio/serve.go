package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local workspace API for the browser front-end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServer(cmd.Context())
		},
	}
	cmd.Flags().String("http-address", c.viper.GetString("server.address"), "Local HTTP listen address")
	if err := c.viper.BindPFlag("server.address", cmd.Flags().Lookup("http-address")); err != nil {
		panic(err)
	}
	return cmd
}

func (c *cli) runServer(ctx context.Context) error {
	dispatcher := server.NewRealtimeDispatcher()
	rt, err := c.openRuntime(dispatcher.Publish)
	if err != nil {
		return err
	}
	defer rt.close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		App:      rt.app,
		Realtime: dispatcher,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}

	httpServer := newHTTPServer(rt.config.ServerAddress, handler)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("workspace server starting",
			zap.String("address", rt.config.ServerAddress),
			zap.String("api_base_url", rt.config.APIBaseURL),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newHTTPServer builds the local API server. Request contexts are cancelled as
// soon as Shutdown starts, which ends open event streams.
func newHTTPServer(address string, handler http.Handler) *http.Server {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	httpServer.RegisterOnShutdown(cancelBase)
	return httpServer
}
