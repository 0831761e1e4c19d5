package insight

import (
	"fmt"
	"strings"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
)

const systemPreamble = `You are an e-commerce performance analyst for a Thai marketplace seller.
Amounts are in Thai baht. Be specific and concise, and use only the figures given.`

var instructions = map[model.AnalysisType]string{
	model.AnalysisTrends: "Describe the notable trends in this week's performance compared with " +
		"the recent weeks, in at most five bullet points.",
	model.AnalysisRecommendations: "Give up to five concrete actions for next week as a numbered list, " +
		"most important first. Refer to products by name.",
	model.AnalysisPrediction: "Forecast next week's GMV and ROAS. Answer with exactly two lines, " +
		"`gmv=<number>` and `roas=<number>`, then one sentence of reasoning.",
}

var titles = map[model.AnalysisType]string{
	model.AnalysisTrends:          "Performance trends",
	model.AnalysisRecommendations: "Recommendations",
	model.AnalysisPrediction:      "Next week forecast",
}

// lower is more urgent
var priorities = map[model.AnalysisType]int{
	model.AnalysisRecommendations: 1,
	model.AnalysisTrends:          2,
	model.AnalysisPrediction:      3,
}

// BuildPrompt assembles the prompt for one analysis type. trend is oldest
// first and may include r itself.
func BuildPrompt(analysis model.AnalysisType, r *model.WeeklyReport, top []model.TopProduct, trend []model.WeeklyReport) Prompt {
	return Prompt{
		Analysis: string(analysis),
		System:   systemPreamble + "\n\n" + reportContext(r, top, trend),
		User:     instructions[analysis],
	}
}

func reportContext(r *model.WeeklyReport, top []model.TopProduct, trend []model.WeeklyReport) string {
	m := r.Metrics
	var b strings.Builder
	fmt.Fprintf(&b, "Week %s (%s to %s)\n", r.Week.Label(),
		r.Week.Start.Format("2006-01-02"), r.Week.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "GMV: %s\n", metrics.FormatCurrency(r.GMV))
	fmt.Fprintf(&b, "Orders: %.0f, units: %.0f, AOV: %s\n", r.Orders, r.Units, metrics.FormatCurrency(m.AOV))
	fmt.Fprintf(&b, "Ad spend: %s, impressions: %.0f, clicks: %.0f\n", metrics.FormatCurrency(r.AdSpend), r.Impressions, r.Clicks)
	fmt.Fprintf(&b, "ROAS: %s, real ROAS: %s, break-even ROAS: %s, target ROAS: %s\n",
		metrics.FormatROAS(m.ROAS), metrics.FormatROAS(m.RealROAS),
		metrics.FormatROAS(m.BreakEvenROAS), metrics.FormatROAS(m.TargetROAS))
	fmt.Fprintf(&b, "Fees: %s, VAT: %s, net profit: %s, profit margin: %s\n",
		metrics.FormatCurrency(m.TotalFees), metrics.FormatCurrency(m.VAT),
		metrics.FormatCurrency(m.NetProfit), metrics.FormatPercent(m.ProfitMargin/100, 2))
	fmt.Fprintf(&b, "CTR: %s, CPC: %s, CPA: %s, conversion rate: %s\n",
		metrics.FormatPercent(m.CTR/100, 2), metrics.FormatCurrency(m.CPC),
		metrics.FormatCurrency(m.CPA), metrics.FormatPercent(m.ConversionRate/100, 2))
	fmt.Fprintf(&b, "Matched products: %d, ads without fulfillment data: %d, fulfillment without ads: %d\n",
		r.MatchedCount, r.UnmatchedAds, r.UnmatchedFulfillment)

	if len(top) > 0 {
		b.WriteString("\nTop products by GMV:\n")
		for _, p := range top {
			name := p.ProductName
			if p.ProductSKU != "" {
				name += " (" + p.ProductSKU + ")"
			}
			fmt.Fprintf(&b, "%d. %s: GMV %s, ad spend %s, ROAS %s, net profit %s\n",
				p.Rank, name, metrics.FormatCurrency(p.GMV), metrics.FormatCurrency(p.AdSpend),
				metrics.FormatROAS(p.ROAS), metrics.FormatCurrency(p.NetProfit))
		}
	}

	if len(trend) > 0 {
		b.WriteString("\nRecent weeks, oldest first:\n")
		for _, w := range trend {
			fmt.Fprintf(&b, "%s: GMV %s, ad spend %s, ROAS %s, net profit %s\n",
				w.Week.Label(), metrics.FormatCurrency(w.GMV), metrics.FormatCurrency(w.AdSpend),
				metrics.FormatROAS(w.Metrics.ROAS), metrics.FormatCurrency(w.Metrics.NetProfit))
		}
	}
	return b.String()
}
