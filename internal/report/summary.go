package report

import (
	"fmt"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
)

// KPI is one formatted headline figure.
type KPI struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// KPIs returns the headline figures of r, formatted for display.
func KPIs(r *model.WeeklyReport) []KPI {
	m := r.Metrics
	return []KPI{
		{"GMV", metrics.FormatCurrency(r.GMV)},
		{"Orders", fmt.Sprintf("%.0f", r.Orders)},
		{"AOV", metrics.FormatCurrency(m.AOV)},
		{"Ad Spend", metrics.FormatCurrency(r.AdSpend)},
		{"ROAS", metrics.FormatROAS(m.ROAS)},
		{"Real ROAS", metrics.FormatROAS(m.RealROAS)},
		{"Break-even ROAS", metrics.FormatROAS(m.BreakEvenROAS)},
		{"Target ROAS", metrics.FormatROAS(m.TargetROAS)},
		{"Total Fees", metrics.FormatCurrency(m.TotalFees)},
		{"VAT", metrics.FormatCurrency(m.VAT)},
		{"Net Profit", metrics.FormatCurrency(m.NetProfit)},
		{"Profit Margin", metrics.FormatPercent(m.ProfitMargin/100, 2)},
		{"CTR", metrics.FormatPercent(m.CTR/100, 2)},
		{"CPC", metrics.FormatCurrency(m.CPC)},
		{"CPA", metrics.FormatCurrency(m.CPA)},
		{"Conversion Rate", metrics.FormatPercent(m.ConversionRate/100, 2)},
	}
}

// Summary is a one-paragraph description of the week.
func Summary(r *model.WeeklyReport) string {
	m := r.Metrics
	verdict := "below"
	switch {
	case m.ROAS >= m.TargetROAS:
		verdict = "at or above"
	case m.ROAS >= m.BreakEvenROAS:
		verdict = "above break-even but below"
	}
	return fmt.Sprintf(
		"Week %s generated %s GMV from %.0f orders on %s ad spend. ROAS was %s, %s the %s target, "+
			"leaving %s net profit (%s margin). %d products matched across both exports.",
		r.Week.Label(), metrics.FormatCurrency(r.GMV), r.Orders, metrics.FormatCurrency(r.AdSpend),
		metrics.FormatROAS(m.ROAS), verdict, metrics.FormatROAS(m.TargetROAS),
		metrics.FormatCurrency(m.NetProfit), metrics.FormatPercent(m.ProfitMargin/100, 1), r.MatchedCount,
	)
}
