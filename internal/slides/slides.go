// Package slides renders a weekly report as a Markdown slide deck.
package slides

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
)

// Separator divides slides.
const Separator = "\n---\n"

// maxActions caps the Action Items slide.
const maxActions = 5

// Generate builds the deck: title, executive summary, KPIs, trends, top
// products, AI insights, action items and a closing slide. trend is oldest
// first.
func Generate(r *model.WeeklyReport, top []model.TopProduct, insights []model.Recommendation, trend []model.WeeklyReport) string {
	deck := []string{
		titleSlide(r),
		"## Executive Summary\n\n" + report.Summary(r),
		kpiSlide(r),
		trendSlide(trend),
		topProductsSlide(top),
		insightSlide(insights),
		actionSlide(r, top, insights),
		"# Thank You\n\nQuestions and feedback welcome.",
	}
	return Format(strings.Join(deck, Separator))
}

// Format trims every slide and rejoins them with a single separator, dropping
// empty slides.
func Format(deck string) string {
	parts := strings.Split(deck, "\n---")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n---\n\n") + "\n"
}

// Save writes content to dir/slides-<reportID>.md and returns the path.
func Save(dir, reportID, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "slides: create %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("slides-%s.md", reportID))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", eris.Wrapf(err, "slides: write %s", path)
	}
	return path, nil
}

// Render loads a report with its products, insights and trend, and generates
// its deck.
func Render(ctx context.Context, s store.Store, reportID string, trendWeeks int) (string, error) {
	r, err := s.GetReport(ctx, reportID)
	if err != nil {
		return "", eris.Wrap(err, "slides: load report")
	}
	top, err := s.ListTopProducts(ctx, reportID)
	if err != nil {
		return "", eris.Wrap(err, "slides: load top products")
	}
	recs, err := s.ListRecommendations(ctx, reportID)
	if err != nil {
		return "", eris.Wrap(err, "slides: load insights")
	}
	trend, err := s.ListTrend(ctx, trendWeeks)
	if err != nil {
		return "", eris.Wrap(err, "slides: load trend")
	}
	return Generate(r, top, recs, trend), nil
}

func titleSlide(r *model.WeeklyReport) string {
	return fmt.Sprintf("# Weekly GMV Report %s\n\n%s to %s",
		r.Week.Label(), r.Week.Start.Format("2 Jan 2006"), r.Week.End.Format("2 Jan 2006"))
}

func kpiSlide(r *model.WeeklyReport) string {
	var b strings.Builder
	b.WriteString("## KPIs Overview\n\n| Metric | Value |\n|---|---|\n")
	for _, k := range report.KPIs(r) {
		fmt.Fprintf(&b, "| %s | %s |\n", k.Label, k.Value)
	}
	return b.String()
}

func trendSlide(trend []model.WeeklyReport) string {
	var b strings.Builder
	b.WriteString("## Performance Trends\n\n")
	if len(trend) == 0 {
		b.WriteString("No earlier weeks recorded.")
		return b.String()
	}
	b.WriteString("| Week | GMV | Ad Spend | ROAS | Net Profit |\n|---|---|---|---|---|\n")
	for _, w := range trend {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", w.Week.Label(),
			metrics.FormatCurrency(w.GMV), metrics.FormatCurrency(w.AdSpend),
			metrics.FormatROAS(w.Metrics.ROAS), metrics.FormatCurrency(w.Metrics.NetProfit))
	}
	if n := len(trend); n >= 2 {
		first, last := trend[0], trend[n-1]
		if first.GMV != 0 {
			fmt.Fprintf(&b, "\nGMV changed %s over %d weeks.",
				metrics.FormatPercent((last.GMV-first.GMV)/first.GMV, 1), n)
		}
	}
	return b.String()
}

func topProductsSlide(top []model.TopProduct) string {
	var b strings.Builder
	b.WriteString("## Top Products\n\n")
	if len(top) == 0 {
		b.WriteString("No matched products this week.")
		return b.String()
	}
	b.WriteString("| # | Product | GMV | Ad Spend | ROAS | Net Profit |\n|---|---|---|---|---|---|\n")
	for _, p := range top {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n", p.Rank, escapeCell(p.ProductName),
			metrics.FormatCurrency(p.GMV), metrics.FormatCurrency(p.AdSpend),
			metrics.FormatROAS(p.ROAS), metrics.FormatCurrency(p.NetProfit))
	}
	return b.String()
}

func insightSlide(recs []model.Recommendation) string {
	var b strings.Builder
	b.WriteString("## AI Insights\n\n")
	n := 0
	for _, r := range recs {
		if r.AnalysisType == model.AnalysisRecommendations {
			continue
		}
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", r.Title, r.Provider, firstLine(r.Content))
		n++
	}
	if n == 0 {
		b.WriteString("No AI analysis has been run for this week.")
	}
	return b.String()
}

var listItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)

func actionSlide(r *model.WeeklyReport, top []model.TopProduct, recs []model.Recommendation) string {
	var actions []string
	for _, rec := range recs {
		if rec.AnalysisType != model.AnalysisRecommendations {
			continue
		}
		for _, line := range strings.Split(rec.Content, "\n") {
			if m := listItem.FindStringSubmatch(line); m != nil && len(actions) < maxActions {
				actions = append(actions, strings.TrimSpace(m[1]))
			}
		}
	}
	if len(actions) == 0 {
		actions = defaultActions(r, top)
	}

	var b strings.Builder
	b.WriteString("## Action Items\n\n")
	for i, a := range actions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	return b.String()
}

// defaultActions derives actions from the numbers when no AI
// recommendations are stored.
func defaultActions(r *model.WeeklyReport, top []model.TopProduct) []string {
	m := r.Metrics
	var out []string
	switch {
	case m.ROAS < m.BreakEvenROAS:
		out = append(out, fmt.Sprintf("ROAS %s is below break-even %s: pause or cut spend on unprofitable products.",
			metrics.FormatROAS(m.ROAS), metrics.FormatROAS(m.BreakEvenROAS)))
	case m.ROAS < m.TargetROAS:
		out = append(out, fmt.Sprintf("ROAS %s is profitable but under the %s target: tighten bids before scaling.",
			metrics.FormatROAS(m.ROAS), metrics.FormatROAS(m.TargetROAS)))
	default:
		out = append(out, fmt.Sprintf("ROAS %s beats the %s target: test a higher budget.",
			metrics.FormatROAS(m.ROAS), metrics.FormatROAS(m.TargetROAS)))
	}
	if len(top) > 0 {
		out = append(out, fmt.Sprintf("Protect stock and ad budget for %s, the top product by GMV.", top[0].ProductName))
	}
	if r.UnmatchedAds > 0 {
		out = append(out, fmt.Sprintf("Add cost data for %d advertised products missing from the fulfillment export.", r.UnmatchedAds))
	}
	if r.UnmatchedFulfillment > 0 {
		out = append(out, fmt.Sprintf("Review %d selling products that have no ads running.", r.UnmatchedFulfillment))
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
