package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/iahome/platform/adapter/api"
	"github.com/iahome/platform/internal/shared/infrastructure/eventbus"
	"github.com/iahome/platform/internal/shared/infrastructure/outbox"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the IAhome HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		cfg := api.ServerConfig{
			Addr:         c.Config.HTTPAddr,
			ReadTimeout:  c.Config.HTTPReadTimeout,
			WriteTimeout: c.Config.HTTPWriteTimeout,
			IdleTimeout:  c.Config.HTTPIdleTimeout,
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		var auth *api.AuthHandler
		if c.SignInService != nil {
			auth = api.NewAuthHandler(c.SignInService, logger)
		}

		server := api.NewServer(
			cfg,
			api.NewActivationHandler(c.ActivationService, c.AccessIssuer, logger),
			api.NewCatalogHandler(c.ModuleRepo, logger),
			auth,
			c.Health,
			logger,
		)

		// In local mode there is no worker process, so relay the outbox
		// here. Events are logged and dropped.
		if c.LocalMode() {
			pcfg := outbox.DefaultProcessorConfig()
			pcfg.PollInterval = c.Config.OutboxPollInterval
			pcfg.BatchSize = c.Config.OutboxBatchSize
			pcfg.MaxRetries = c.Config.OutboxMaxRetries
			processor := outbox.NewProcessor(c.OutboxRepo, eventbus.NewNoopPublisher(logger), pcfg, logger, c.Metrics)
			if err := processor.Start(cmd.Context()); err != nil {
				return err
			}
			defer processor.Stop()
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-cmd.Context().Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
