// Package export writes stored reports to a spreadsheet.
package export

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/store"
)

const (
	reportsSheet     = "Reports"
	topProductsSheet = "Top Products"
)

var reportHeader = []string{
	"Week", "Start", "End", "GMV", "Orders", "Units", "Ad Spend", "Impressions", "Clicks",
	"Affiliate Commission", "Product Cost", "AOV", "Total Fees", "VAT", "Net Profit",
	"ROAS", "Real ROAS", "Break-even ROAS", "Target ROAS", "CTR %", "CPC", "CPA",
	"Conversion Rate %", "Profit Margin %", "Matched", "Unmatched Ads", "Unmatched Fulfillment", "Notes",
}

var topHeader = []string{"Week", "Rank", "Product", "SKU", "GMV", "Orders", "Units", "Ad Spend", "ROAS", "Net Profit", "Profit Margin %"}

// Build assembles the workbook. topByReport is keyed by report ID; reports
// without an entry get no product rows.
func Build(reports []model.WeeklyReport, topByReport map[string][]model.TopProduct) (*xlsx.File, error) {
	f := xlsx.NewFile()

	rs, err := f.AddSheet(reportsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add reports sheet")
	}
	addStrings(rs.AddRow(), reportHeader)
	for i := range reports {
		r := &reports[i]
		m := r.Metrics
		row := rs.AddRow()
		addStrings(row, []string{r.Week.Label(), date(r.Week.Start), date(r.Week.End)})
		addFloats(row, r.GMV, r.Orders, r.Units, r.AdSpend, r.Impressions, r.Clicks,
			r.AffiliateCommission, r.ProductCost, m.AOV, m.TotalFees, m.VAT, m.NetProfit,
			m.ROAS, m.RealROAS, m.BreakEvenROAS, m.TargetROAS, m.CTR, m.CPC, m.CPA,
			m.ConversionRate, m.ProfitMargin)
		row.AddCell().SetInt(r.MatchedCount)
		row.AddCell().SetInt(r.UnmatchedAds)
		row.AddCell().SetInt(r.UnmatchedFulfillment)
		row.AddCell().SetString(r.Notes)
	}

	ts, err := f.AddSheet(topProductsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add top products sheet")
	}
	addStrings(ts.AddRow(), topHeader)
	for _, r := range reports {
		for _, p := range topByReport[r.ID] {
			row := ts.AddRow()
			row.AddCell().SetString(r.Week.Label())
			row.AddCell().SetInt(p.Rank)
			addStrings(row, []string{p.ProductName, p.ProductSKU})
			addFloats(row, p.GMV, p.Orders, p.Units, p.AdSpend, p.ROAS, p.NetProfit, p.ProfitMargin)
		}
	}
	return f, nil
}

// WriteXLSX builds the workbook and saves it to path.
func WriteXLSX(path string, reports []model.WeeklyReport, topByReport map[string][]model.TopProduct) error {
	f, err := Build(reports, topByReport)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, reports []model.WeeklyReport, topByReport map[string][]model.TopProduct) error {
	f, err := Build(reports, topByReport)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// Load reads the reports matching filter and their top products, oldest week
// first.
func Load(ctx context.Context, s store.Store, filter store.ReportFilter) ([]model.WeeklyReport, map[string][]model.TopProduct, error) {
	reports, err := s.ListReports(ctx, filter)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: list reports")
	}
	slices.Reverse(reports) // ListReports is newest first

	top := make(map[string][]model.TopProduct, len(reports))
	for _, r := range reports {
		products, err := s.ListTopProducts(ctx, r.ID)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "export: top products for %s", r.ID)
		}
		top[r.ID] = products
	}
	return reports, top, nil
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloats(row *xlsx.Row, values ...float64) {
	for _, v := range values {
		row.AddCell().SetFloat(v)
	}
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
