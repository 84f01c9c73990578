package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go-status-sse/internal/agent"
	"go-status-sse/internal/monitor"
)

func newAgentCommand(g *globalFlags) *cobra.Command {
	var (
		serverURL  string
		watchPaths []string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Send heartbeats and report file changes to the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Agent.ServerURL = serverURL
			}

			hb := agent.NewHeartbeatClient(cfg.Agent.ServerURL, cfg.Agent.APIKey, cfg.Agent.ClientID,
				agent.WithHeartbeatInterval(cfg.Agent.Interval),
				agent.WithHeartbeatLogger(log),
			)
			if err := hb.Start(cmd.Context()); err != nil {
				return err
			}
			defer hb.Stop()

			if len(watchPaths) > 0 {
				cfg.Agent.WatchPaths = watchPaths
			}
			if len(cfg.Agent.WatchPaths) == 0 {
				<-cmd.Context().Done()
				return nil
			}

			reporter := agent.NewReporter(cfg.Agent.ServerURL, cfg.Agent.APIKey,
				agent.WithMaxRetries(cfg.Agent.MaxRetries),
				agent.WithReporterLogger(log),
			)
			watcher := agent.NewWatcher(cfg.Agent.WatchPaths, reporter,
				agent.WithRecursive(cfg.Agent.Recursive),
				agent.WithIgnoreExt(cfg.Agent.IgnoreExt...),
				agent.WithWatcherHost(cfg.Agent.ClientID),
				agent.WithWatcherLogger(log),
			)
			return watcher.Run(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (overrides agent.server_url)")
	cmd.Flags().StringSliceVar(&watchPaths, "watch", nil, "Paths to watch (overrides agent.watch_paths)")
	cmd.AddCommand(newReportCommand(g, &serverURL))

	return cmd
}

func newReportCommand(g *globalFlags, serverURL *string) *cobra.Command {
	var ev monitor.FileEvent

	cmd := &cobra.Command{
		Use:   "report --type created --path /srv/file",
		Short: "Report one file event",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if *serverURL != "" {
				cfg.Agent.ServerURL = *serverURL
			}
			if ev.Host == "" {
				ev.Host, _ = os.Hostname()
			}
			if ev.Timestamp == "" {
				ev.Timestamp = time.Now().Format("2006-01-02T15:04:05")
			}

			r := agent.NewReporter(cfg.Agent.ServerURL, cfg.Agent.APIKey,
				agent.WithMaxRetries(cfg.Agent.MaxRetries),
				agent.WithReporterLogger(log),
			)
			if err := r.Report(cmd.Context(), ev); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reported %s %s\n", ev.EventType, ev.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&ev.EventType, "type", "", "Event type (created, modified, deleted, moved)")
	cmd.Flags().StringVar(&ev.Path, "path", "", "Affected path")
	cmd.Flags().StringVar(&ev.DestPath, "dest", "", "Destination path for moved events")
	cmd.Flags().StringVar(&ev.Host, "host", "", "Host name (default: this host)")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("path")

	return cmd
}
