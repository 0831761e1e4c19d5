package insight

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/store"
)

// ConsensusProvider is the provider name on the averaged forecast.
const ConsensusProvider = "consensus"

// AllAnalyses is the default set run by Analyze.
var AllAnalyses = []model.AnalysisType{
	model.AnalysisTrends,
	model.AnalysisRecommendations,
	model.AnalysisPrediction,
}

// AnalyzerOptions tunes an Analyzer.
type AnalyzerOptions struct {
	Concurrency int
	TrendWeeks  int
}

// Analyzer produces and stores recommendations for a report.
type Analyzer struct {
	store     store.Store
	providers []Provider
	opts      AnalyzerOptions
}

// NewAnalyzer creates an Analyzer. TrendWeeks defaults to 8.
func NewAnalyzer(s store.Store, providers []Provider, opts AnalyzerOptions) *Analyzer {
	if opts.TrendWeeks <= 0 {
		opts.TrendWeeks = 8
	}
	return &Analyzer{store: s, providers: providers, opts: opts}
}

// Analyze returns the report's recommendations, generating them when none are
// stored. regenerate discards stored ones first. An empty types runs
// AllAnalyses.
func (a *Analyzer) Analyze(ctx context.Context, reportID string, regenerate bool, types ...model.AnalysisType) ([]model.Recommendation, error) {
	log := zap.L().With(zap.String("report_id", reportID))

	if regenerate {
		n, err := a.store.DeleteRecommendations(ctx, reportID)
		if err != nil {
			return nil, eris.Wrap(err, "insight: clear recommendations")
		}
		log.Info("insight: cleared recommendations", zap.Int("deleted", n))
	} else {
		existing, err := a.store.ListRecommendations(ctx, reportID)
		if err != nil {
			return nil, eris.Wrap(err, "insight: list recommendations")
		}
		if len(existing) > 0 {
			return existing, nil
		}
	}

	r, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "insight: load report")
	}
	top, err := a.store.ListTopProducts(ctx, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "insight: load top products")
	}
	trend, err := a.store.ListTrend(ctx, a.opts.TrendWeeks)
	if err != nil {
		return nil, eris.Wrap(err, "insight: load trend")
	}

	if len(types) == 0 {
		types = AllAnalyses
	}

	var (
		recs    []model.Recommendation
		lastErr error
	)
	for _, t := range types {
		results, err := FanOut(ctx, a.providers, BuildPrompt(t, r, top, trend), a.opts.Concurrency)
		if err != nil {
			lastErr = err
			continue
		}
		recs = append(recs, a.toRecommendations(r, t, results)...)
	}
	if len(recs) == 0 {
		if lastErr == nil {
			lastErr = ErrAllFailed
		}
		return nil, eris.Wrapf(lastErr, "insight: analyze %s", reportID)
	}

	if err := a.store.SaveRecommendations(ctx, recs); err != nil {
		return nil, eris.Wrap(err, "insight: save recommendations")
	}
	log.Info("insight: generated recommendations", zap.Int("count", len(recs)))
	return recs, nil
}

func (a *Analyzer) toRecommendations(r *model.WeeklyReport, t model.AnalysisType, results []Result) []model.Recommendation {
	var recs []model.Recommendation
	for _, res := range results {
		if !res.OK() {
			continue
		}
		recs = append(recs, model.Recommendation{
			ReportID:     r.ID,
			Provider:     res.Provider,
			AnalysisType: t,
			Title:        fmt.Sprintf("%s %s", titles[t], r.Week.Label()),
			Content:      res.Text,
			Priority:     priorities[t],
		})
	}

	if t != model.AnalysisPrediction {
		return recs
	}
	pred, err := PredictNextWeek(results)
	if err != nil {
		zap.L().Warn("insight: no consensus forecast", zap.String("report_id", r.ID), zap.Error(err))
		return recs
	}
	meta, _ := json.Marshal(pred) //nolint:errchkjson
	return append(recs, model.Recommendation{
		ReportID:     r.ID,
		Provider:     ConsensusProvider,
		AnalysisType: t,
		Title:        fmt.Sprintf("%s %s", titles[t], r.Week.Label()),
		Content: fmt.Sprintf("GMV %s, ROAS %s (average of %d providers)",
			metrics.FormatCurrency(pred.GMV), metrics.FormatROAS(pred.ROAS), len(pred.Providers)),
		Priority: priorities[t],
		Metadata: meta,
	})
}

// List returns the stored recommendations for a report.
func (a *Analyzer) List(ctx context.Context, reportID string) ([]model.Recommendation, error) {
	recs, err := a.store.ListRecommendations(ctx, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "insight: list recommendations")
	}
	return recs, nil
}

// ByProvider groups the stored recommendations for a report by provider.
func (a *Analyzer) ByProvider(ctx context.Context, reportID string) (map[string][]model.Recommendation, error) {
	recs, err := a.List(ctx, reportID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]model.Recommendation)
	for _, r := range recs {
		out[r.Provider] = append(out[r.Provider], r)
	}
	return out, nil
}
