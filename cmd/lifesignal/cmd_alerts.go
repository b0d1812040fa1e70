package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lifesignal/internal/audit"
	"lifesignal/internal/daemon"
)

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and trigger alerts",
	}
	cmd.AddCommand(newAlertsTriggerCmd(opts), newAlertsListCmd(opts))
	return cmd
}

func newAlertsTriggerCmd(opts *rootOptions) *cobra.Command {
	var nowFlag string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run one evaluation pass now through the normal dedup path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			cfg := daemon.Config{
				Workspace: a.ws,
				Settings:  a.cfg,
				Logger:    a.logger,
			}
			if nowFlag != "" {
				now, err := parseNow(nowFlag)
				if err != nil {
					return err
				}
				cfg.Now = func() time.Time { return now }
			}
			d, err := daemon.New(cfg)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			d.Dispatcher.Start(cmd.Context())

			sum, evalErr := d.Engine.TryEvaluate(cmd.Context(), daemon.TriggerManual)
			closeErr := d.Close()
			if evalErr != nil {
				return evalErr
			}
			if closeErr != nil {
				return closeErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pass %s: %s (candidates=%d emitted=%d suppressed=%d)\n",
				sum.ID, sum.Status, sum.Candidates, sum.Emitted, sum.Suppressed)
			for _, rec := range sum.Alerts {
				fmt.Fprintf(out, "  [%s] %s: %s\n", rec.Severity, rec.Title, rec.Message)
			}
			if sum.Status != daemon.PassOK {
				return fmt.Errorf("pass finished with status %s", sum.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "Evaluate as of this RFC3339 time")
	return cmd
}

func newAlertsListCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List emitted alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			log := audit.NewLog(a.ws.AuditDBPath)
			defer log.Close()

			recs, err := log.ListAlerts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tRULE\tSEVERITY\tTITLE\tMESSAGE")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rec.At.In(a.loc).Format(time.RFC3339), rec.Rule, rec.Severity, rec.Title, rec.Message)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of alerts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
