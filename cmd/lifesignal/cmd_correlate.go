package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifesignal/internal/correlate"
	"lifesignal/internal/metrics"
)

func newCorrelateCmd(opts *rootOptions) *cobra.Command {
	var (
		req    correlate.Request
		agg    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Estimate whether a driver series precedes an outcome series",
		Long: `Correlate two daily series. A series is a metric id or actions:<area>
(completed actions per day; actions: alone counts every area).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			req.Aggregation, err = metrics.ParseAggregation(agg)
			if err != nil {
				return err
			}
			req.Location = a.loc

			src, err := a.loader()(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := correlate.Run(cmd.Context(), src, req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s -> %s\n", resp.Driver, resp.Outcome)
			for _, r := range resp.Results {
				line := fmt.Sprintf("  lag %d: %s (pairs=%d", r.Lag, r.Effect, r.Pairs)
				if r.Sufficient() {
					line += fmt.Sprintf(", r=%.3f", r.R)
				}
				if r.Impact > 0 {
					line += fmt.Sprintf(", impact +%d%%", r.Impact)
				}
				fmt.Fprintln(out, line+")")
			}
			if resp.Best != nil {
				fmt.Fprintf(out, "Strongest: lag %d, r=%.3f (%s)\n", resp.Best.Lag, resp.Best.R, resp.Best.Effect)
			} else {
				fmt.Fprintln(out, "Not enough overlapping days to estimate.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Driver, "driver", "", "Driver series (metric id or actions:<area>)")
	cmd.Flags().StringVar(&req.Outcome, "outcome", "", "Outcome series (metric id)")
	cmd.Flags().IntVar(&req.Lag, "lag", 0, "Lag in days")
	cmd.Flags().IntVar(&req.MaxLag, "max-lag", 0, "Scan every lag from --lag to --max-lag")
	cmd.Flags().StringVar(&agg, "agg", "last", "Daily aggregation: last, sum or mean")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("driver")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}
