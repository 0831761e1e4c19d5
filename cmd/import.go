package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/config"
	"github.com/sells-group/gmv-tracker/internal/fetcher"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import one week of ads and fulfillment exports",
	Long: "Reads the ads and fulfillment exports (local path, http(s) or ftp URL; CSV or XLSX), " +
		"reconciles them, computes the weekly metrics and saves the report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		flags := cmd.Flags()
		week, err := resolveWeek(flags, time.Now())
		if err != nil {
			return err
		}
		fees, err := resolveFees(cmd, st)
		if err != nil {
			return err
		}
		policy, err := defaultPolicy()
		if err != nil {
			return err
		}
		if raw, _ := flags.GetString("policy"); raw != "" {
			if policy, err = reconcile.ParsePolicy(raw); err != nil {
				return err
			}
		}

		adsSrc, _ := flags.GetString("ads")
		fulSrc, _ := flags.GetString("fulfillment")
		opener := initFetcher()
		ads, err := opener.Open(ctx, adsSrc)
		if err != nil {
			return eris.Wrap(err, "open ads export")
		}
		defer ads.Close() //nolint:errcheck
		ful, err := opener.Open(ctx, fulSrc)
		if err != nil {
			return eris.Wrap(err, "open fulfillment export")
		}
		defer ful.Close() //nolint:errcheck

		notes, _ := flags.GetString("notes")
		topN, _ := flags.GetInt("top-n")
		replace, _ := flags.GetBool("replace")

		res, err := initService(st).Import(ctx, report.ImportRequest{
			Ads:         report.Source{Name: fetcher.Name(adsSrc), Body: ads},
			Fulfillment: report.Source{Name: fetcher.Name(fulSrc), Body: ful},
			Week:        week,
			Fees:        fees,
			Notes:       notes,
			Policy:      policy,
			TopN:        topN,
			Replace:     replace,
		})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("id", res.Report.ID),
			zap.String("week", week.Label()),
		)
		formatImportResult(os.Stdout, res)
		return nil
	},
}

// resolveWeek reads --year/--week, or --date, or falls back to the ISO week
// before now.
func resolveWeek(flags *pflag.FlagSet, now time.Time) (model.Week, error) {
	year, _ := flags.GetInt("year")
	num, _ := flags.GetInt("week")
	date, _ := flags.GetString("date")

	switch {
	case num > 0:
		if year == 0 {
			year, _ = now.ISOWeek()
		}
		w := model.NewWeek(year, num)
		return w, w.Validate()
	case date != "":
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return model.Week{}, eris.Wrapf(err, "parse --date %q", date)
		}
		return model.ISOWeek(t), nil
	default:
		return report.PreviousWeek(model.ISOWeek(now)), nil
	}
}

// resolveFees starts from config (or a named schedule in the store, or a
// fee file) and applies any rate flags on top.
func resolveFees(cmd *cobra.Command, st store.Store) (model.FeeSchedule, error) {
	flags := cmd.Flags()
	fees := cfg.Fees.FeeSchedule

	if name, _ := flags.GetString("fee-schedule"); name != "" {
		saved, err := st.GetFeeSchedule(cmd.Context(), name)
		if err != nil {
			return fees, eris.Wrapf(err, "fee schedule %q", name)
		}
		fees = *saved
	}
	if path, _ := flags.GetString("fee-file"); path != "" {
		loaded, err := config.LoadFeeFile(path)
		if err != nil {
			return fees, err
		}
		fees = *loaded
	}

	for flag, dst := range map[string]*float64{
		"commission-rate":  &fees.CommissionRate,
		"transaction-rate": &fees.TransactionRate,
		"payment-rate":     &fees.PaymentRate,
		"target-margin":    &fees.TargetMargin,
	} {
		if flags.Changed(flag) {
			*dst, _ = flags.GetFloat64(flag)
		}
	}
	return fees, fees.Validate()
}

func addFeeFlags(flags *pflag.FlagSet) {
	flags.Float64("commission-rate", 0, "marketplace commission rate as a fraction (overrides config)")
	flags.Float64("transaction-rate", 0, "transaction fee rate as a fraction (overrides config)")
	flags.Float64("payment-rate", 0, "payment fee rate as a fraction (overrides config)")
	flags.Float64("target-margin", 0, "target profit margin as a fraction (overrides config)")
}

// formatImportResult writes a short summary of an import to out.
func formatImportResult(out io.Writer, res *report.ImportResult) {
	r := res.Report
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Report\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Week\t%s (%s to %s)\n", r.Week.Label(), r.Week.Start.Format("2006-01-02"), r.Week.End.Format("2006-01-02"))
	if res.Replaced != "" {
		_, _ = fmt.Fprintf(w, "Replaced\t%s\n", res.Replaced)
	}
	_, _ = fmt.Fprintf(w, "Rows\tads %d (%d rejected), fulfillment %d (%d rejected)\n",
		res.AdsStats.Rows, res.AdsStats.Failed, res.FulfillmentStats.Rows, res.FulfillmentStats.Failed)
	_, _ = fmt.Fprintf(w, "Matched\t%d (unmatched ads %d, unmatched fulfillment %d)\n",
		r.MatchedCount, r.UnmatchedAds, r.UnmatchedFulfillment)
	for _, k := range report.KPIs(r) {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", k.Label, k.Value)
	}
	_ = w.Flush()

	if len(res.Warnings) > 0 {
		_, _ = fmt.Fprintf(out, "\n%d warning(s):\n", len(res.Warnings))
		for _, warn := range res.Warnings {
			_, _ = fmt.Fprintf(out, "  %s\n", warn)
		}
	}
}

func init() {
	f := importCmd.Flags()
	f.String("ads", "", "ads export: path or http(s)/ftp URL (required)")
	f.String("fulfillment", "", "fulfillment export: path or http(s)/ftp URL (required)")
	f.Int("year", 0, "ISO year of the report week (default: current year)")
	f.Int("week", 0, "ISO week number (default: last week)")
	f.String("date", "", "any date inside the report week, YYYY-MM-DD")
	f.String("notes", "", "free-text notes stored with the report")
	f.String("policy", "", "duplicate handling: first-wins or reject (default from config)")
	f.Int("top-n", 0, "number of top products to keep (default from config)")
	f.Bool("replace", false, "replace an existing report for the same week")
	f.String("fee-schedule", "", "named fee schedule saved with 'fees save'")
	f.String("fee-file", "", "YAML fee schedule file")
	addFeeFlags(f)
	_ = importCmd.MarkFlagRequired("ads")
	_ = importCmd.MarkFlagRequired("fulfillment")
	rootCmd.AddCommand(importCmd)
}
