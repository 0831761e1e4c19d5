package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect saved weekly reports",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List weekly reports, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		year, _ := cmd.Flags().GetInt("year")
		limit, _ := cmd.Flags().GetInt("limit")
		reports, err := st.ListReports(ctx, store.ReportFilter{Year: year, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}
		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a report's KPIs and top products",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		detail, err := initService(st).Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(detail)
		}
		formatReportDetail(os.Stdout, detail)
		return nil
	},
}

// -- reports delete --

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete a report with its top products and recommendations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports delete")
		}
		if err := st.DeleteReport(ctx, r.ID); err != nil {
			return eris.Wrap(err, "reports delete")
		}
		zap.L().Info("report deleted", zap.String("id", r.ID), zap.String("week", r.Week.Label()))
		return nil
	},
}

// -- reports notes --

var reportsNotesCmd = &cobra.Command{
	Use:   "notes <report-id> <text>",
	Short: "Replace a report's notes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return eris.Wrap(st.UpdateReportNotes(ctx, args[0], args[1]), "reports notes")
	},
}

// -- compare --

var compareCmd = &cobra.Command{
	Use:   "compare <report-id> [previous-id]",
	Short: "Compare a report with another, or with the previous ISO week",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prevID := ""
		if len(args) == 2 {
			prevID = args[1]
		}
		cmp, err := initService(st).Compare(ctx, args[0], prevID)
		if err != nil {
			return eris.Wrap(err, "compare")
		}
		formatComparison(os.Stdout, cmp)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().Int("year", 0, "only reports for this ISO year")
	reportsListCmd.Flags().Int("limit", 20, "max number of reports to display")
	reportsShowCmd.Flags().Bool("json", false, "print the report as JSON")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsNotesCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(compareCmd)
}

// formatReportsList writes a tabular list of reports to out.
func formatReportsList(out io.Writer, reports []model.WeeklyReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWEEK\tSTART\tGMV\tAD_SPEND\tROAS\tNET_PROFIT\tMARGIN")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Week.Label(),
			r.Week.Start.Format("2006-01-02"),
			metrics.FormatCurrency(r.GMV),
			metrics.FormatCurrency(r.AdSpend),
			metrics.FormatROAS(r.Metrics.ROAS),
			metrics.FormatCurrency(r.Metrics.NetProfit),
			metrics.FormatPercent(r.Metrics.ProfitMargin/100, 1),
		)
	}
	_ = w.Flush()
}

// formatReportDetail writes the summary, KPIs and top products to out.
func formatReportDetail(out io.Writer, d *report.Detail) {
	r := d.Report
	_, _ = fmt.Fprintf(out, "%s  %s\n\n%s\n\n", r.Week.Label(), r.ID, report.Summary(r))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range report.KPIs(r) {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", k.Label, k.Value)
	}
	_ = w.Flush()

	if len(d.TopProducts) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tPRODUCT\tGMV\tORDERS\tROAS\tNET_PROFIT")
	for _, p := range d.TopProducts {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.0f\t%s\t%s\n",
			p.Rank, p.ProductName, metrics.FormatCurrency(p.GMV), p.Orders,
			metrics.FormatROAS(p.ROAS), metrics.FormatCurrency(p.NetProfit))
	}
	_ = w.Flush()
	if r.Notes != "" {
		_, _ = fmt.Fprintf(out, "\nNotes: %s\n", r.Notes)
	}
}

// formatComparison writes each metric's change, sorted by key.
func formatComparison(out io.Writer, cmp *report.Comparison) {
	_, _ = fmt.Fprintf(out, "%s vs %s\n\n", cmp.Current.Week.Label(), cmp.Previous.Week.Label())
	cur, prev := cmp.Current.MetricMap(), cmp.Previous.MetricMap()

	keys := make([]string, 0, len(cmp.Deltas))
	for k := range cmp.Deltas {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METRIC\tCURRENT\tPREVIOUS\tCHANGE")
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%+.2f\n", k, cur[k], prev[k], cmp.Deltas[k])
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
