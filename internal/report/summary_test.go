package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
)

func TestKPIs(t *testing.T) {
	t.Parallel()

	r := &model.WeeklyReport{GMV: 1234.5, Orders: 10, Metrics: metrics.Output{ROAS: 10, ProfitMargin: 43.95}}
	kpis := KPIs(r)
	require.Len(t, kpis, 16)
	assert.Equal(t, KPI{"GMV", "฿1,234.50"}, kpis[0])
	assert.Equal(t, KPI{"ROAS", "10.00x"}, kpis[4])
	assert.Equal(t, KPI{"Profit Margin", "43.95%"}, kpis[11])
}

func TestSummary(t *testing.T) {
	t.Parallel()

	r := &model.WeeklyReport{
		Week:         model.NewWeek(2025, 7),
		GMV:          1000,
		Orders:       10,
		AdSpend:      100,
		MatchedCount: 1,
		Metrics:      metrics.Output{ROAS: 10, BreakEvenROAS: 4.6, TargetROAS: 5.1, NetProfit: 439.5, ProfitMargin: 43.96},
	}
	s := Summary(r)
	assert.Contains(t, s, "Week 2025-W07 generated ฿1,000.00 GMV from 10 orders")
	assert.Contains(t, s, "at or above the 5.10x target")
	assert.Contains(t, s, "(44.0% margin)")

	r.Metrics.ROAS = 5
	assert.Contains(t, Summary(r), "above break-even but below")
	r.Metrics.ROAS = 2
	assert.Contains(t, Summary(r), "ROAS was 2.00x, below the")
}
