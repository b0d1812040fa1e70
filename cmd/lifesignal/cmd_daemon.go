package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lifesignal/internal/api"
	"lifesignal/internal/daemon"
	"lifesignal/internal/state"
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run or manage the alert scheduler",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the scheduler in the foreground",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.load(cmd)
				if err != nil {
					return err
				}
				d, err := daemon.New(daemon.Config{Workspace: a.ws, Settings: a.cfg, Logger: a.logger})
				if err != nil {
					return fmt.Errorf("create daemon: %w", err)
				}
				defer d.Close()
				return d.Run(cmd.Context())
			},
		},
		newDaemonInstallCmd(opts),
		&cobra.Command{
			Use:   "uninstall",
			Short: "Unload and remove the LaunchAgent",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.load(cmd)
				if err != nil {
					return err
				}
				if err := daemon.Uninstall(a.ws); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "LaunchAgent removed.")
				return nil
			},
		},
		newDaemonStatusCmd(opts),
	)
	return cmd
}

func newDaemonInstallCmd(opts *rootOptions) *cobra.Command {
	var load bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a LaunchAgent that runs the scheduler at login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			env := map[string]string{"LIFESIGNAL_LOG_FORMAT": "json"}
			path, err := daemon.Install(a.ws, exe, env)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nLogs: %s\n", path, daemon.LogPath(a.ws))
			if load {
				if err := daemon.Load(a.ws); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "LaunchAgent loaded.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&load, "load", true, "Load the agent with launchctl after writing it")
	return cmd
}

func newDaemonStatusCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent evaluation passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			store, err := state.Open(a.ws.StateDBPath)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if loaded, err := daemon.IsLoaded(a.ws); err == nil {
				fmt.Fprintf(out, "LaunchAgent loaded: %t\n", loaded)
			}
			passes, err := store.ListPasses(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Recent passes: %d\n", len(passes))
			for _, p := range passes {
				finished := "running"
				if p.FinishedAt != nil {
					finished = p.FinishedAt.Sub(p.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(out, "  %s [%s] %s %s %s\n",
					p.StartedAt.In(a.loc).Format(time.RFC3339), p.Trigger, p.Status, finished, p.SummaryJSON)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of passes to show")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			d, err := daemon.New(daemon.Config{
				Workspace:  a.ws,
				Settings:   a.cfg,
				Registerer: reg,
				Logger:     a.logger,
			})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			srv := &api.Server{
				Loader:   a.loader(),
				Location: a.loc,
				Engine:   d.Engine,
				Alerts:   d.Audit,
				Gatherer: reg,
				Logger:   a.logger,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return d.Run(gctx) })
			g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http.addr from config)")
	return cmd
}
