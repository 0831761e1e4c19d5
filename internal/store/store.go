// Package store persists weekly reports and everything hanging off them:
// top products, import history, Notion sync logs, AI recommendations and fee
// schedules.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// ReportFilter narrows ListReports. Zero values mean no filter; Limit <= 0
// means 100.
type ReportFilter struct {
	Year  int `json:"year,omitempty"`
	Limit int `json:"limit,omitempty"`
}

func (f ReportFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for the tracker.
type Store interface {
	// Reports. CreateReport assigns an ID when empty and writes the report and
	// its top products in one transaction.
	CreateReport(ctx context.Context, report *model.WeeklyReport, top []model.TopProduct) error
	// ReplaceReport deletes oldID and writes report in the same transaction;
	// on failure the old report and its dependents are left untouched.
	ReplaceReport(ctx context.Context, oldID string, report *model.WeeklyReport, top []model.TopProduct) error
	GetReport(ctx context.Context, id string) (*model.WeeklyReport, error)
	GetReportByWeek(ctx context.Context, year, week int) (*model.WeeklyReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.WeeklyReport, error)
	UpdateReportNotes(ctx context.Context, id, notes string) error
	DeleteReport(ctx context.Context, id string) error
	// ListTrend returns the n most recent reports by start date, oldest first.
	ListTrend(ctx context.Context, n int) ([]model.WeeklyReport, error)
	ListTopProducts(ctx context.Context, reportID string) ([]model.TopProduct, error)

	// Import history
	RecordImport(ctx context.Context, rec *model.ImportRecord) error
	ListImports(ctx context.Context, reportID string) ([]model.ImportRecord, error)

	// Notion sync log
	RecordSync(ctx context.Context, log *model.SyncLog) error
	LatestSync(ctx context.Context, reportID string) (*model.SyncLog, error)

	// AI recommendations
	SaveRecommendations(ctx context.Context, recs []model.Recommendation) error
	ListRecommendations(ctx context.Context, reportID string) ([]model.Recommendation, error)
	DeleteRecommendations(ctx context.Context, reportID string) (int, error)

	// Fee schedules, keyed by name
	SaveFeeSchedule(ctx context.Context, name string, fees model.FeeSchedule) error
	GetFeeSchedule(ctx context.Context, name string) (*model.FeeSchedule, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// reportColumns is shared by both backends so that reportArgs and reportDest
// stay in lockstep with the SELECT and INSERT lists.
var reportColumns = []string{
	"id", "week_number", "year", "start_date", "end_date",
	"gmv", "orders", "units", "ad_spend", "impressions", "clicks", "affiliate_commission", "product_cost",
	"aov", "total_fees", "vat", "net_profit", "roas", "real_roas", "break_even_roas", "target_roas",
	"ctr", "cpc", "cpa", "conversion_rate", "profit_margin",
	"commission_rate", "transaction_rate", "payment_rate", "target_margin",
	"matched_count", "unmatched_ads", "unmatched_fulfillment", "products_advertised",
	"notes", "created_at", "updated_at",
}

var reportSelect = strings.Join(reportColumns, ", ")

func reportArgs(r *model.WeeklyReport) []any {
	m := r.Metrics
	return []any{
		r.ID, r.Week.Number, r.Week.Year, r.Week.Start, r.Week.End,
		r.GMV, r.Orders, r.Units, r.AdSpend, r.Impressions, r.Clicks, r.AffiliateCommission, r.ProductCost,
		m.AOV, m.TotalFees, m.VAT, m.NetProfit, m.ROAS, m.RealROAS, m.BreakEvenROAS, m.TargetROAS,
		m.CTR, m.CPC, m.CPA, m.ConversionRate, m.ProfitMargin,
		r.Fees.CommissionRate, r.Fees.TransactionRate, r.Fees.PaymentRate, r.Fees.TargetMargin,
		r.MatchedCount, r.UnmatchedAds, r.UnmatchedFulfillment, r.ProductsAdvertised,
		r.Notes, r.CreatedAt, r.UpdatedAt,
	}
}

func reportDest(r *model.WeeklyReport) []any {
	m := &r.Metrics
	return []any{
		&r.ID, &r.Week.Number, &r.Week.Year, &r.Week.Start, &r.Week.End,
		&r.GMV, &r.Orders, &r.Units, &r.AdSpend, &r.Impressions, &r.Clicks, &r.AffiliateCommission, &r.ProductCost,
		&m.AOV, &m.TotalFees, &m.VAT, &m.NetProfit, &m.ROAS, &m.RealROAS, &m.BreakEvenROAS, &m.TargetROAS,
		&m.CTR, &m.CPC, &m.CPA, &m.ConversionRate, &m.ProfitMargin,
		&r.Fees.CommissionRate, &r.Fees.TransactionRate, &r.Fees.PaymentRate, &r.Fees.TargetMargin,
		&r.MatchedCount, &r.UnmatchedAds, &r.UnmatchedFulfillment, &r.ProductsAdvertised,
		&r.Notes, &r.CreatedAt, &r.UpdatedAt,
	}
}

var topProductColumns = "report_id, rank, product_name, product_sku, gmv, orders, units, ad_spend, roas, net_profit, profit_margin"

func topProductArgs(p *model.TopProduct) []any {
	return []any{p.ReportID, p.Rank, p.ProductName, p.ProductSKU, p.GMV, p.Orders, p.Units, p.AdSpend, p.ROAS, p.NetProfit, p.ProfitMargin}
}

func topProductDest(p *model.TopProduct) []any {
	return []any{&p.ReportID, &p.Rank, &p.ProductName, &p.ProductSKU, &p.GMV, &p.Orders, &p.Units, &p.AdSpend, &p.ROAS, &p.NetProfit, &p.ProfitMargin}
}

// placeholders renders n bind parameters, "?" style or "$1" style.
func placeholders(n int, dollar bool) string {
	parts := make([]string, n)
	for i := range parts {
		if dollar {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}
