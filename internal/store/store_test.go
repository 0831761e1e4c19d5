package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleReport(year, week int) *model.WeeklyReport {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (week-1)*7)
	return &model.WeeklyReport{
		Week:        model.Week{Number: week, Year: year, Start: start, End: start.AddDate(0, 0, 6)},
		GMV:         1000,
		Orders:      10,
		Units:       12,
		AdSpend:     100,
		Impressions: 5000,
		Clicks:      200,
		ProductCost: 400,
		Metrics: metrics.Output{
			AOV: 100, TotalFees: 50, VAT: 10.5, NetProfit: 439.5, ROAS: 10,
			RealROAS: 4.395, BreakEvenROAS: 4.605, TargetROAS: 5.1167, CTR: 4,
			CPC: 0.5, CPA: 10, ConversionRate: 5, ProfitMargin: 43.95,
		},
		Fees:               model.FeeSchedule{CommissionRate: 0.02, TransactionRate: 0.01, PaymentRate: 0.02, TargetMargin: 0.1},
		MatchedCount:       1,
		ProductsAdvertised: 1,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetReport", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sampleReport(2025, 7)
		top := []model.TopProduct{
			{Rank: 1, ProductName: "Mug", ProductSKU: "X1", GMV: 600, ROAS: 12},
			{Rank: 2, ProductName: "Tote", GMV: 400},
		}
		require.NoError(t, s.CreateReport(ctx, r, top))
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, r.ID, top[0].ReportID)

		got, err := s.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Week.Number)
		assert.Equal(t, 1000.0, got.GMV)
		assert.Equal(t, 439.5, got.Metrics.NetProfit)
		assert.Equal(t, 4.605, got.Metrics.BreakEvenROAS)
		assert.Equal(t, 0.02, got.Fees.CommissionRate)
		assert.True(t, r.Week.Start.Equal(got.Week.Start))

		products, err := s.ListTopProducts(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "Mug", products[0].ProductName)
		assert.Equal(t, 2, products[1].Rank)
	})

	t.Run("GetReportNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetReport(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("GetReportByWeek", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := sampleReport(2025, 3)
		require.NoError(t, s.CreateReport(ctx, r, nil))

		got, err := s.GetReportByWeek(ctx, 2025, 3)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)

		_, err = s.GetReportByWeek(ctx, 2025, 4)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListReportsFilterAndLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, w := range []int{1, 2, 3} {
			require.NoError(t, s.CreateReport(ctx, sampleReport(2025, w), nil))
		}
		require.NoError(t, s.CreateReport(ctx, sampleReport(2024, 52), nil))

		all, err := s.ListReports(ctx, ReportFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
		assert.Equal(t, 3, all[0].Week.Number)

		y, err := s.ListReports(ctx, ReportFilter{Year: 2024})
		require.NoError(t, err)
		require.Len(t, y, 1)
		assert.Equal(t, 52, y[0].Week.Number)

		limited, err := s.ListReports(ctx, ReportFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("ListTrendOldestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, w := range []int{5, 2, 9, 7} {
			require.NoError(t, s.CreateReport(ctx, sampleReport(2025, w), nil))
		}

		trend, err := s.ListTrend(ctx, 3)
		require.NoError(t, err)
		require.Len(t, trend, 3)
		assert.Equal(t, 5, trend[0].Week.Number)
		assert.Equal(t, 7, trend[1].Week.Number)
		assert.Equal(t, 9, trend[2].Week.Number)
	})

	t.Run("UpdateNotes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := sampleReport(2025, 1)
		require.NoError(t, s.CreateReport(ctx, r, nil))

		require.NoError(t, s.UpdateReportNotes(ctx, r.ID, "promo week"))
		got, err := s.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "promo week", got.Notes)

		err = s.UpdateReportNotes(ctx, "missing", "x")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := sampleReport(2025, 1)
		require.NoError(t, s.CreateReport(ctx, r, []model.TopProduct{{Rank: 1, ProductName: "Mug"}}))
		require.NoError(t, s.SaveRecommendations(ctx, []model.Recommendation{
			{ReportID: r.ID, Provider: "anthropic", AnalysisType: model.AnalysisTrends, Title: "t", Content: "c"},
		}))
		require.NoError(t, s.RecordSync(ctx, &model.SyncLog{ReportID: r.ID, DatabaseID: "db", Status: model.SyncStatusSuccess, SyncType: model.SyncTypeCreate}))
		require.NoError(t, s.RecordImport(ctx, &model.ImportRecord{ReportID: r.ID, FileName: "ads.csv", Source: model.ImportSourceAds, Status: model.ImportStatusSuccess}))

		require.NoError(t, s.DeleteReport(ctx, r.ID))

		_, err := s.GetReport(ctx, r.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		top, err := s.ListTopProducts(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, top)
		recs, err := s.ListRecommendations(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, recs)
		_, err = s.LatestSync(ctx, r.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		// import history outlives the report
		imports, err := s.ListImports(ctx, "")
		require.NoError(t, err)
		require.Len(t, imports, 1)
		assert.Empty(t, imports[0].ReportID)

		assert.True(t, errors.Is(s.DeleteReport(ctx, r.ID), ErrNotFound))
	})

	t.Run("ImportHistory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := sampleReport(2025, 1)
		require.NoError(t, s.CreateReport(ctx, r, nil))

		ok := &model.ImportRecord{ReportID: r.ID, FileName: "ads.csv", Source: model.ImportSourceAds, FileSize: 120, Status: model.ImportStatusSuccess, RecordsImported: 5, RecordsFailed: 1}
		require.NoError(t, s.RecordImport(ctx, ok))
		assert.NotEmpty(t, ok.ID)
		failed := &model.ImportRecord{FileName: "bad.csv", Source: model.ImportSourceFulfillment, Status: model.ImportStatusFailed, Error: "ingest: empty file"}
		require.NoError(t, s.RecordImport(ctx, failed))

		forReport, err := s.ListImports(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, forReport, 1)
		assert.Equal(t, model.ImportSourceAds, forReport[0].Source)
		assert.Equal(t, 5, forReport[0].RecordsImported)
		assert.Equal(t, int64(120), forReport[0].FileSize)

		all, err := s.ListImports(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("LatestSync", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := sampleReport(2025, 1)
		require.NoError(t, s.CreateReport(ctx, r, nil))

		_, err := s.LatestSync(ctx, r.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.RecordSync(ctx, &model.SyncLog{ReportID: r.ID, DatabaseID: "db", Status: model.SyncStatusFailed, SyncType: model.SyncTypeCreate, Error: "timeout"}))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.RecordSync(ctx, &model.SyncLog{ReportID: r.ID, NotionPageID: "page-1", DatabaseID: "db", Status: model.SyncStatusSuccess, SyncType: model.SyncTypeCreate}))

		last, err := s.LatestSync(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SyncStatusSuccess, last.Status)
		assert.Equal(t, "page-1", last.NotionPageID)
	})

	t.Run("Recommendations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := sampleReport(2025, 1)
		require.NoError(t, s.CreateReport(ctx, r, nil))

		recs := []model.Recommendation{
			{ReportID: r.ID, Provider: "anthropic", AnalysisType: model.AnalysisRecommendations, Title: "Raise budget", Content: "...", Priority: 2},
			{ReportID: r.ID, Provider: "anthropic", AnalysisType: model.AnalysisPrediction, Title: "Next week", Content: "gmv=1200", Priority: 1, Metadata: json.RawMessage(`{"gmv":1200}`)},
		}
		require.NoError(t, s.SaveRecommendations(ctx, recs))

		got, err := s.ListRecommendations(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Next week", got[0].Title)
		assert.JSONEq(t, `{"gmv":1200}`, string(got[0].Metadata))
		assert.Empty(t, got[1].Metadata)

		n, err := s.DeleteRecommendations(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("FeeSchedules", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetFeeSchedule(ctx, "default")
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.SaveFeeSchedule(ctx, "default", model.FeeSchedule{CommissionRate: 0.05, TargetMargin: 0.1}))
		require.NoError(t, s.SaveFeeSchedule(ctx, "default", model.FeeSchedule{CommissionRate: 0.06, PaymentRate: 0.02, TargetMargin: 0.15}))

		got, err := s.GetFeeSchedule(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, model.FeeSchedule{CommissionRate: 0.06, PaymentRate: 0.02, TargetMargin: 0.15}, *got)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_CreateReportRollsBackOnDuplicateRank(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	r := sampleReport(2025, 1)
	err := s.CreateReport(ctx, r, []model.TopProduct{{Rank: 1, ProductName: "A"}, {Rank: 1, ProductName: "B"}})
	require.Error(t, err)

	_, err = s.GetReport(ctx, r.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ReplaceReport(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	old := sampleReport(2025, 7)
	require.NoError(t, s.CreateReport(ctx, old, []model.TopProduct{{Rank: 1, ProductName: "Mug"}}))

	next := sampleReport(2025, 7)
	next.GMV = 2000
	require.NoError(t, s.ReplaceReport(ctx, old.ID, next, []model.TopProduct{{Rank: 1, ProductName: "Tote"}}))

	_, err := s.GetReport(ctx, old.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := s.GetReportByWeek(ctx, 2025, 7)
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.ID)
	assert.Equal(t, 2000.0, got.GMV)

	top, err := s.ListTopProducts(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Tote", top[0].ProductName)
}

func TestSQLite_ReplaceReportKeepsOldOnFailure(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	old := sampleReport(2025, 7)
	require.NoError(t, s.CreateReport(ctx, old, []model.TopProduct{{Rank: 1, ProductName: "Mug"}}))

	next := sampleReport(2025, 7)
	err := s.ReplaceReport(ctx, old.ID, next, []model.TopProduct{{Rank: 1, ProductName: "A"}, {Rank: 1, ProductName: "B"}})
	require.Error(t, err)

	got, err := s.GetReport(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)

	top, err := s.ListTopProducts(ctx, old.ID)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Mug", top[0].ProductName)

	_, err = s.GetReport(ctx, next.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ReplaceReportMissingOld(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	next := sampleReport(2025, 7)
	err := s.ReplaceReport(ctx, "missing", next, nil)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetReportByWeek(ctx, 2025, 7)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", placeholders(3, false))
	assert.Equal(t, "$1, $2", placeholders(2, true))
	assert.Len(t, reportArgs(&model.WeeklyReport{}), len(reportColumns))
	assert.Len(t, reportDest(&model.WeeklyReport{}), len(reportColumns))
}
