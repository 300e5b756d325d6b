package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/profilex/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [--addr host:port]",
		Short: "Serve extraction and run history over HTTP.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			svc, closeFn, err := a.newService(true)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := server.Server(a.cfg.Server.Addr, server.New(svc, a.logger), a.cfg.RunTimeout)
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			a.logger.Info("profilex: listening", "addr", a.cfg.Server.Addr, "sources", a.cfg.Sources)

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.Info("profilex: stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
