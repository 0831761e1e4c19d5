package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/gmv-tracker/internal/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Calculate metrics for ad-hoc figures",
	Long:  "Runs the metrics engine on the given totals without touching the store. Rates come from config unless overridden.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		get := func(name string) float64 {
			v, _ := flags.GetFloat64(name)
			return v
		}

		fees := cfg.Fees.FeeSchedule
		for flag, dst := range map[string]*float64{
			"commission-rate":  &fees.CommissionRate,
			"transaction-rate": &fees.TransactionRate,
			"payment-rate":     &fees.PaymentRate,
			"target-margin":    &fees.TargetMargin,
		} {
			if flags.Changed(flag) {
				*dst = get(flag)
			}
		}

		in := metrics.Input{
			GMV:             get("gmv"),
			Orders:          get("orders"),
			Costs:           get("costs"),
			AdSpend:         get("ad-spend"),
			Clicks:          get("clicks"),
			Impressions:     get("impressions"),
			CommissionRate:  fees.CommissionRate,
			TransactionRate: fees.TransactionRate,
			PaymentRate:     fees.PaymentRate,
		}

		partial, _ := flags.GetBool("partial")
		if partial {
			p, err := metrics.CalculatePartial(in, fees.TargetMargin)
			if err != nil {
				return err
			}
			formatMetrics(os.Stdout, p.Output, p.Undefined)
			return nil
		}

		out, err := metrics.CalculateWithMargin(in, fees.TargetMargin)
		if err != nil {
			return err
		}
		formatMetrics(os.Stdout, out, nil)
		return nil
	},
}

// formatMetrics writes every metric to out, marking undefined ones.
func formatMetrics(out io.Writer, o metrics.Output, undefined []string) {
	skip := make(map[string]bool, len(undefined))
	for _, k := range undefined {
		skip[k] = true
	}
	rows := []struct {
		key, label, value string
	}{
		{metrics.KeyAOV, "AOV", metrics.FormatCurrency(o.AOV)},
		{metrics.KeyTotalFees, "Total Fees", metrics.FormatCurrency(o.TotalFees)},
		{metrics.KeyVAT, "VAT", metrics.FormatCurrency(o.VAT)},
		{metrics.KeyNetProfit, "Net Profit", metrics.FormatCurrency(o.NetProfit)},
		{metrics.KeyROAS, "ROAS", metrics.FormatROAS(o.ROAS)},
		{metrics.KeyRealROAS, "Real ROAS", metrics.FormatROAS(o.RealROAS)},
		{metrics.KeyBreakEvenROAS, "Break-even ROAS", metrics.FormatROAS(o.BreakEvenROAS)},
		{metrics.KeyTargetROAS, "Target ROAS", metrics.FormatROAS(o.TargetROAS)},
		{metrics.KeyCTR, "CTR", metrics.FormatPercent(o.CTR/100, 2)},
		{metrics.KeyCPC, "CPC", metrics.FormatCurrency(o.CPC)},
		{metrics.KeyCPA, "CPA", metrics.FormatCurrency(o.CPA)},
		{metrics.KeyConversionRate, "Conversion Rate", metrics.FormatPercent(o.ConversionRate/100, 2)},
		{metrics.KeyProfitMargin, "Profit Margin", metrics.FormatPercent(o.ProfitMargin/100, 2)},
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		v := r.value
		if skip[r.key] {
			v = "n/a"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r.label, v)
	}
	_ = w.Flush()
}

func init() {
	f := metricsCmd.Flags()
	f.Float64("gmv", 0, "gross merchandise value")
	f.Float64("orders", 0, "order count")
	f.Float64("costs", 0, "product cost plus affiliate commission")
	f.Float64("ad-spend", 0, "advertising spend")
	f.Float64("clicks", 0, "ad clicks")
	f.Float64("impressions", 0, "ad impressions")
	f.Bool("partial", false, "show n/a for metrics with a zero divisor instead of failing")
	addFeeFlags(f)
	rootCmd.AddCommand(metricsCmd)
}
