package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"lifesignal/internal/goals"
	"lifesignal/internal/report"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		nowFlag string
		save    bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Classify every area and show the global score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			now, err := parseNow(nowFlag)
			if err != nil {
				return err
			}
			src, err := a.loader()(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := report.Build(cmd.Context(), src, now, a.loc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, rep); err != nil {
					return err
				}
			} else {
				printReport(out, rep)
			}
			if save {
				path, err := report.Write(a.ws.ReportsDir, rep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved report to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "Evaluate as of this RFC3339 time")
	cmd.Flags().BoolVar(&save, "save", false, "Save the report under reports/YYYY-MM-DD.json")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.AddCommand(newStatusDiffCmd(opts))
	return cmd
}

func newStatusDiffCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff DATE_A [DATE_B]",
		Short: "Diff two saved reports (DATE_B defaults to the latest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			dayA, err := civil.ParseDate(args[0])
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", args[0], err)
			}
			pathB := ""
			if len(args) == 2 {
				dayB, err := civil.ParseDate(args[1])
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", args[1], err)
				}
				pathB = report.PathForDate(a.ws.ReportsDir, dayB)
			} else if pathB, err = report.LatestPath(a.ws.ReportsDir); err != nil {
				return err
			}

			repA, err := report.Load(report.PathForDate(a.ws.ReportsDir, dayA))
			if err != nil {
				return err
			}
			repB, err := report.Load(pathB)
			if err != nil {
				return err
			}
			text, err := report.Diff(repA, repB)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newGoalsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Show progress for every goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			src, err := a.loader()(cmd.Context())
			if err != nil {
				return err
			}
			progress, err := goals.EvaluateAll(cmd.Context(), src)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), progress)
			}
			printGoals(cmd.OutOrStdout(), progress)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printReport(w io.Writer, rep *report.Report) {
	fmt.Fprintf(w, "Global: %d (%s) across %d area(s) as of %s\n\n", rep.Global.Score, rep.Global.Label, rep.Global.Areas, rep.AsOf)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AREA\tSTATUS\tSCORE\tREASON")
	for _, a := range rep.Areas {
		reason := a.Reason
		if len(a.Malformed) > 0 {
			reason += " [malformed: " + strings.Join(a.Malformed, ", ") + "]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", a.AreaID, a.Status, a.Score, reason)
	}
	for id, msg := range rep.Errors {
		fmt.Fprintf(tw, "%s\terror\t-\t%s\n", id, msg)
	}
	_ = tw.Flush()

	if len(rep.Goals) > 0 {
		fmt.Fprintln(w)
		printGoals(w, rep.Goals)
	}
}

func printGoals(w io.Writer, progress []goals.Progress) {
	if len(progress) == 0 {
		fmt.Fprintln(w, "No goals.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GOAL\tAREA\tSTATUS\tPROGRESS\tREASON")
	for _, g := range progress {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n", g.GoalID, g.AreaID, g.Status, g.Percent, g.Reason)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
