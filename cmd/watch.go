package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"go-status-sse/internal/dashboard"
	"go-status-sse/internal/infrastructure/config"
	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/infrastructure/metrics"
	"go-status-sse/internal/infrastructure/server"
	"go-status-sse/internal/streamclient"
)

type watchFlags struct {
	baseURL     string
	transport   string
	metricsAddr string
}

func newWatchCommand(g *globalFlags) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Terminal dashboard fed by the status streams",
		Long: `Subscribe to the time, data and updates streams of a status server and
render them as a dashboard. Lost connections are retried every stream.retry_delay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			cfg.Log = watchLogConfig(cfg.Log)
			log := logger.NewLogrusLogger(&cfg.Log)

			if flags.baseURL != "" {
				cfg.Stream.BaseURL = flags.baseURL
			}
			if flags.transport != "" {
				cfg.Stream.Transport = flags.transport
			}
			return runWatch(cmd.Context(), cfg.Stream, flags.metricsAddr, log, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.baseURL, "url", "", "Server base URL (overrides stream.base_url)")
	cmd.Flags().StringVar(&flags.transport, "transport", "", "sse or websocket (overrides stream.transport)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve stream client metrics on this address")

	return cmd
}

// watchLogConfig keeps log lines off stdout, which the dashboard redraws.
func watchLogConfig(c logger.Config) logger.Config {
	if c.Output == "" || c.Output == "stdout" {
		c.Output = "stderr"
	}
	return c
}

type watchEndpoint struct {
	topic string
	mode  streamclient.Mode
	views []dashboard.View
}

// newStreamTransport picks the transport and the path prefix it is served under.
func newStreamTransport(cfg config.StreamConfig) (streamclient.Transport, string, error) {
	switch cfg.Transport {
	case "", "sse":
		return streamclient.NewSSETransport(cfg.BaseURL, nil), "/sse/", nil
	case "websocket":
		return streamclient.NewWebSocketTransport(cfg.BaseURL, nil), "/ws/", nil
	}
	return nil, "", fmt.Errorf("unknown transport %q", cfg.Transport)
}

func runWatch(ctx context.Context, cfg config.StreamConfig, metricsAddr string, log logger.Logger, out io.Writer) error {
	transport, prefix, err := newStreamTransport(cfg)
	if err != nil {
		return err
	}

	reg := metrics.New()
	if metricsAddr != "" {
		srv := server.NewHTTPServer(reg.Handler(), config.ServerConfig{Addr: metricsAddr}, log)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Stop(context.Background())
	}

	client := streamclient.New(transport,
		streamclient.WithRetryDelay(cfg.RetryDelay),
		streamclient.WithLogger(log),
		streamclient.WithObserver(reg),
	)

	d := dashboard.New()

	var renderMu sync.Mutex
	render := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		// clear screen and home the cursor
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprintln(out, d.View())
	}
	onError := func(err error) {
		d.ReportError(err)
		render()
	}

	endpoints := []watchEndpoint{
		{topic: "time", mode: streamclient.ModeRaw, views: []dashboard.View{d.Time}},
		{topic: "data", mode: streamclient.ModeJSON, views: []dashboard.View{d.Clients}},
		{topic: "updates", mode: streamclient.ModeJSON, views: []dashboard.View{d.Pie, d.Events}},
	}

	subs := make([]*streamclient.Subscription, 0, len(endpoints))
	defer func() {
		for _, sub := range subs {
			sub.Stop()
		}
	}()

	for _, ep := range endpoints {
		sub, err := client.Start(ctx, prefix+ep.topic, ep.mode, d.Handler(render, ep.views...), onError)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ep.topic, err)
		}
		subs = append(subs, sub)
	}

	render()
	<-ctx.Done()
	return nil
}
