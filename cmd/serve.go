package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-status-sse/internal/infrastructure/config"
	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/infrastructure/metrics"
	"go-status-sse/internal/infrastructure/server"
	"go-status-sse/internal/monitor"
	"go-status-sse/internal/publisher"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServer(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	reg := metrics.New()
	hubInstance := hub.New(log, hub.WithObserver(reg))

	// Start the hub first
	if err := hubInstance.Start(context.Background()); err != nil {
		log.Errorf("failed to start hub: %v", err)
		return err
	}

	mon := monitor.New(
		monitor.NewClientRegistry(cfg.Monitor.HeartbeatTimeout),
		monitor.NewEventLog(cfg.Monitor.MaxRecentEvents),
		cfg.Publisher.TimeFormat,
	)
	pub := publisher.New(hubInstance, mon, log,
		publisher.WithInterval(cfg.Publisher.Interval),
		publisher.WithGauge(reg),
	)

	router := InitRouter(routerDeps{
		hub:     hubInstance,
		monitor: mon,
		metrics: reg,
		apiKey:  cfg.Server.APIKey,
		logger:  log,
	})
	httpSrv := server.NewHTTPServer(router, cfg.Server, log)

	app := newApplication(log, httpSrv, hubInstance, pub, cfg.Server.ShutdownTimeout)
	if err := app.Run(ctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		return err
	}
	return nil
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	publisher       *publisher.Publisher
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	pub *publisher.Publisher,
	shutdownTimeout time.Duration,
) *Application {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Application{
		logger:          logger.WithField("app", "statusd"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		publisher:       pub,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is cancelled or a component fails, then shuts down the
// publisher, the hub and the HTTP server in that order.
func (app *Application) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(gctx)
	})

	eg.Go(func() error {
		return app.publisher.Start(gctx)
	})

	eg.Go(func() error {
		<-gctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		if err := app.publisher.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop publisher: %v", err)
		}

		// Stop hub before the server so streaming handlers return
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}
