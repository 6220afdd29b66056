package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ryanm101/vnmeta/internal/logging"
	"github.com/ryanm101/vnmeta/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lookups and stored records over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if listen == "" {
				listen = a.cfg.GetListenAddr()
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			logger := logging.With("server")
			srv := &http.Server{
				Addr:        listen,
				Handler:     server.New(a.newClient(true), st, logger).Handler(),
				ReadTimeout: 5 * time.Second,
				// Throttled lookups wait out VNDB's backoff before answering.
				WriteTimeout: 5 * time.Minute,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			a.out.Info("vnmeta listening on http://%s\n", listen)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, 127.0.0.1:8080)")
	return cmd
}
