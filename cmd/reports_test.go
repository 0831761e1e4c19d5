package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/report"
)

func sampleReport(id string, week int, gmv float64) model.WeeklyReport {
	return model.WeeklyReport{
		ID:      id,
		Week:    model.NewWeek(2025, week),
		GMV:     gmv,
		AdSpend: 100,
		Metrics: metrics.Output{ROAS: gmv / 100, NetProfit: 439.5, ProfitMargin: 43.96},
	}
}

func TestFormatReportsList(t *testing.T) {
	reports := []model.WeeklyReport{
		sampleReport("abc12345-6789-0000-0000-000000000000", 8, 1200),
		sampleReport("def12345", 7, 1000),
	}

	var buf bytes.Buffer
	formatReportsList(&buf, reports)
	out := buf.String()
	assert.Contains(t, out, "WEEK")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "2025-W08")
	assert.Contains(t, out, "฿1,200.00")
	assert.Contains(t, out, "12.00x")
	assert.Contains(t, out, "44.0%")
}

func TestFormatReportDetail(t *testing.T) {
	r := sampleReport("r1", 7, 1000)
	r.Notes = "flash sale"
	d := &report.Detail{
		Report:      &r,
		TopProducts: []model.TopProduct{{Rank: 1, ProductName: "Mug", GMV: 1000, Orders: 10, ROAS: 10}},
	}

	var buf bytes.Buffer
	formatReportDetail(&buf, d)
	out := buf.String()
	assert.Contains(t, out, "2025-W07")
	assert.Contains(t, out, "Net Profit")
	assert.Contains(t, out, "Mug")
	assert.Contains(t, out, "10.00x")
	assert.Contains(t, out, "Notes: flash sale")
}

func TestFormatComparison(t *testing.T) {
	cur := sampleReport("b", 8, 1200)
	prev := sampleReport("a", 7, 1000)
	cmp := &report.Comparison{
		Current:  &cur,
		Previous: &prev,
		Deltas:   metrics.CompareWeeks(cur.MetricMap(), prev.MetricMap()),
	}

	var buf bytes.Buffer
	formatComparison(&buf, cmp)
	out := buf.String()
	assert.Contains(t, out, "2025-W08 vs 2025-W07")
	assert.Contains(t, out, "+200.00")
}

func TestFormatMetrics_MarksUndefined(t *testing.T) {
	var buf bytes.Buffer
	formatMetrics(&buf, metrics.Output{ROAS: 10}, []string{metrics.KeyCPC})
	out := buf.String()
	assert.Contains(t, out, "10.00x")
	assert.Regexp(t, `CPC\s+n/a`, out)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefghijk"))
	assert.Equal(t, "abc", shortID("abc"))
}
