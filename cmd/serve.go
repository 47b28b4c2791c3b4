package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	configx "github.com/yixiaowang2001/game-sage-agent/pkg/config"
	"github.com/yixiaowang2001/game-sage-agent/pkg/httpapi"
	qstashx "github.com/yixiaowang2001/game-sage-agent/pkg/qstash"
)

const shutdownTimeout = 15 * time.Second

func serveCMD() *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			httpCfg, err := configx.New[httpapi.Config]("GAMESAGE_HTTP")
			if err != nil {
				return fmt.Errorf("load http config: %w", err)
			}
			if addr != "" {
				httpCfg.Addr = addr
			}

			var publisher httpapi.Publisher
			qstashCfg, err := configx.New[qstashx.Config]("QSTASH")
			if err != nil {
				return fmt.Errorf("load qstash config: %w", err)
			}
			if qstashCfg.Enabled() {
				client, err := qstashx.NewClient(*qstashCfg)
				if err != nil {
					return err
				}
				publisher = client
			}

			var sessions httpapi.SessionStore
			if a.journal != nil {
				sessions = a.journal
			}

			handler := httpapi.NewHandler(a.orchestrator, publisher, sessions)
			srv := &http.Server{
				Addr:              httpCfg.Addr,
				Handler:           httpapi.NewRouter(*httpCfg, handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().
					Str("addr", srv.Addr).
					Int("platforms", a.registry.Len()).
					Bool("callbacks", publisher != nil).
					Bool("journal", sessions != nil).
					Msg("http api listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			a.logger.Info().Msg("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides GAMESAGE_HTTP_ADDR)")
	return serve
}
