package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/echocoach/echo/internal/reports"
)

func (c *cli) reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse saved practice reports",
	}
	cmd.AddCommand(c.reportsListCmd(), c.reportsGetCmd(), c.reportsDeleteCmd(), c.reportsStatsCmd())
	return cmd
}

func (c *cli) reportsListCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			res, err := c.client(loc.state).ListReports(ctx, page, limit)
			if err != nil {
				return describeAPIError(err)
			}
			printReportList(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", reports.DefaultLimit, "reports per page")
	return cmd
}

func (c *cli) reportsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			report, err := c.client(loc.state).GetReport(ctx, args[0])
			if err != nil {
				return describeAPIError(err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func (c *cli) reportsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			if err := c.client(loc.state).DeleteReport(ctx, args[0]); err != nil {
				return describeAPIError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) reportsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics over all reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			stats, err := c.client(loc.state).Stats(ctx)
			if err != nil {
				return describeAPIError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sessions:       %d\n", stats.TotalSessions)
			fmt.Fprintf(out, "total duration: %ds\n", stats.TotalDuration)
			fmt.Fprintf(out, "avg score:      %.2f\n", stats.AvgScore)
			fmt.Fprintf(out, "avg pace:       %.2f wpm\n", stats.AvgPace)
			fmt.Fprintf(out, "avg eye contact: %.2f%%\n", stats.AvgEyeContact)
			return nil
		},
	}
}

func printReportList(w io.Writer, res reports.ListResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDURATION\tWORDS\tSCORE\tPACE")
	for _, r := range res.Reports {
		fmt.Fprintf(tw, "%s\t%s\t%ds\t%d\t%d\t%d\n",
			r.ID, r.Date.Local().Format("2006-01-02 15:04"), r.Duration, r.WordCount, r.OverallScore, r.Metrics.Pace)
	}
	_ = tw.Flush()
	p := res.Pagination
	fmt.Fprintf(w, "page %d of %d (%d reports)\n", p.Page, p.Pages, p.Total)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
