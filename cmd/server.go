package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/refresher"
	"github.com/vzahanych/area-insight/internal/server"
	"github.com/vzahanych/area-insight/internal/server/handlers"
	"go.uber.org/zap"
)

func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long:  `Start the HTTP server exposing weather, incidents, route and combined location lookups, plus the optional daily forecast refresher.`,
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	log.Info("Starting area insight server",
		zap.String("config_path", configPath),
		zap.Bool("telemetry_enabled", cfg.Telemetry.Enabled),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("refresh_enabled", cfg.Cache.RefreshEnabled),
		zap.Int("server_port", cfg.Server.Port))

	a, err := buildApp(ctx, cfg)
	if err != nil {
		log.Error("Failed to build application", zap.Error(err))
		return err
	}
	defer a.Close()

	var ref *refresher.Refresher
	if cfg.Cache.RefreshEnabled {
		ref = refresher.New(cfg.Cache, a.store, a.insight, a.location, log.Named("refresher"), tele)
		if err := ref.Start(ctx); err != nil {
			log.Error("Failed to start refresher", zap.Error(err))
			return err
		}
		defer ref.Stop()
	}

	srv := server.NewServer(server.Deps{
		Insight: a.insight,
		Metrics: a.metrics,
		Readiness: map[string]handlers.ReadinessCheck{
			"store": func(ctx context.Context) error {
				_, err := a.store.ListLocations(ctx)
				return err
			},
		},
	}, log.Named("http"), tele)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		log.Info("Shutting down server")

		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during server shutdown", zap.Error(err))
			return err
		}

		log.Info("Server shutdown complete")
		return nil
	}
}
