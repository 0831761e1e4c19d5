// Package report turns a pair of exports into a persisted weekly report.
package report

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
)

// DefaultTopN is the number of products ranked when a request leaves TopN unset.
const DefaultTopN = 10

// BuildRequest is the input to Builder.Build.
type BuildRequest struct {
	Ads         []model.AdRow
	Fulfillment []model.FulfillmentRow
	Week        model.Week
	Fees        model.FeeSchedule
	Notes       string
	Policy      reconcile.Policy
	TopN        int
}

// Result is a built but not yet persisted report.
type Result struct {
	Report         *model.WeeklyReport        `json:"report"`
	TopProducts    []model.TopProduct         `json:"top_products"`
	Reconciliation model.ReconciliationResult `json:"reconciliation"`
	Summary        model.SummaryTotals        `json:"summary"`
}

// Builder reconciles, aggregates and scores one week of exports.
type Builder struct {
	topN int
}

// NewBuilder creates a Builder. topN <= 0 means DefaultTopN.
func NewBuilder(topN int) *Builder {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Builder{topN: topN}
}

// Build runs reconciliation, totals the matched pairs and computes the weekly
// metrics. Costs passed to the metrics engine are product cost plus affiliate
// commission. Any non-finite metric fails the build.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Week.Validate(); err != nil {
		return nil, eris.Wrap(&InputError{Err: err}, "report: build")
	}
	if err := req.Fees.Validate(); err != nil {
		return nil, eris.Wrap(&InputError{Err: err}, "report: build")
	}

	rec, err := reconcile.WithPolicy(req.Policy, req.Ads, req.Fulfillment)
	if err != nil {
		return nil, eris.Wrap(err, "report: reconcile")
	}
	sum := reconcile.Summarize(rec.Matched)

	out, err := metrics.CalculateWithMargin(inputFor(sum, req.Fees), req.Fees.TargetMargin)
	if err != nil {
		return nil, eris.Wrapf(err, "report: metrics for %s", req.Week.Label())
	}
	if err := out.Finite(); err != nil {
		return nil, eris.Wrapf(err, "report: metrics for %s", req.Week.Label())
	}

	zap.L().Info("report: built",
		zap.String("week", req.Week.Label()),
		zap.Int("matched", len(rec.Matched)),
		zap.Int("unmatched_ads", len(rec.UnmatchedAds)),
		zap.Int("unmatched_fulfillment", len(rec.UnmatchedFulfillment)),
		zap.Float64("gmv", sum.TotalGMV),
		zap.Float64("roas", out.ROAS),
	)

	report := &model.WeeklyReport{
		Week:                 req.Week,
		GMV:                  sum.TotalGMV,
		Orders:               sum.TotalOrders,
		Units:                sum.TotalUnits,
		AdSpend:              sum.TotalAdSpend,
		Impressions:          sum.TotalImpressions,
		Clicks:               sum.TotalClicks,
		AffiliateCommission:  sum.TotalAffiliateCommission,
		ProductCost:          sum.TotalProductCost,
		Metrics:              out,
		Fees:                 req.Fees,
		MatchedCount:         len(rec.Matched),
		UnmatchedAds:         len(rec.UnmatchedAds),
		UnmatchedFulfillment: len(rec.UnmatchedFulfillment),
		ProductsAdvertised:   len(req.Ads),
		Notes:                req.Notes,
	}

	topN := req.TopN
	if topN <= 0 {
		topN = b.topN
	}
	top, err := rankProducts(rec.Matched, topN, req.Fees)
	if err != nil {
		return nil, err
	}

	return &Result{Report: report, TopProducts: top, Reconciliation: rec, Summary: sum}, nil
}

func inputFor(sum model.SummaryTotals, fees model.FeeSchedule) metrics.Input {
	return metrics.Input{
		GMV:             sum.TotalGMV,
		Orders:          sum.TotalOrders,
		Costs:           sum.TotalProductCost + sum.TotalAffiliateCommission,
		AdSpend:         sum.TotalAdSpend,
		Clicks:          sum.TotalClicks,
		Impressions:     sum.TotalImpressions,
		CommissionRate:  fees.CommissionRate,
		TransactionRate: fees.TransactionRate,
		PaymentRate:     fees.PaymentRate,
	}
}

// rankProducts scores the top matched pairs individually. A product with no
// clicks or no spend still ranks; its undefined ratios are stored as zero.
func rankProducts(matched []model.MatchedPair, n int, fees model.FeeSchedule) ([]model.TopProduct, error) {
	pairs := reconcile.TopProducts(matched, n)
	top := make([]model.TopProduct, 0, len(pairs))
	for i, p := range pairs {
		sum := reconcile.Summarize([]model.MatchedPair{p})
		part, err := metrics.CalculatePartial(inputFor(sum, fees), fees.TargetMargin)
		if err != nil {
			return nil, eris.Wrapf(err, "report: metrics for product %s", p.Ad.Key())
		}
		if len(part.Undefined) > 0 {
			zap.L().Debug("report: product metrics partially undefined",
				zap.String("product", p.Ad.Key()),
				zap.Strings("undefined", part.Undefined),
			)
		}
		if err := part.Output.Finite(); err != nil {
			return nil, eris.Wrapf(err, "report: metrics for product %s", p.Ad.Key())
		}
		top = append(top, model.TopProduct{
			Rank:         i + 1,
			ProductName:  p.Ad.ProductName,
			ProductSKU:   p.Ad.ProductSKU,
			GMV:          p.Ad.GMV,
			Orders:       p.Ad.Orders,
			Units:        p.Fulfillment.Units,
			AdSpend:      p.Ad.AdSpend,
			ROAS:         part.Output.ROAS,
			NetProfit:    part.Output.NetProfit,
			ProfitMargin: part.Output.ProfitMargin,
		})
	}
	return top, nil
}
