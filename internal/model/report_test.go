package model

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/gmv-tracker/internal/metrics"
)

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "X1", AdRow{ProductName: "Mug", ProductSKU: "X1"}.Key())
	assert.Equal(t, "Mug", AdRow{ProductName: "Mug"}.Key())
	assert.Equal(t, "Mug", FulfillmentRow{ProductName: "Mug"}.Key())
	assert.NotEqual(t, AdRow{ProductName: "mug"}.Key(), FulfillmentRow{ProductName: "Mug"}.Key())
}

func TestISOWeek(t *testing.T) {
	t.Parallel()

	// Wednesday 2025-02-12 is in ISO week 7.
	w := ISOWeek(time.Date(2025, 2, 12, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, 7, w.Number)
	assert.Equal(t, 2025, w.Year)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC), w.End)
	assert.Equal(t, "2025-W07", w.Label())
}

func TestISOWeek_Sunday(t *testing.T) {
	t.Parallel()

	w := ISOWeek(time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 7, w.Number)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), w.Start)
}

func TestNewWeek(t *testing.T) {
	t.Parallel()

	w := NewWeek(2025, 7)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC), w.End)

	// 2020 has 53 ISO weeks; the last one spills into January.
	w = NewWeek(2020, 53)
	assert.Equal(t, time.Date(2020, 12, 28, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, ISOWeek(w.Start), w)
}

func TestWeekValidate(t *testing.T) {
	tests := []struct {
		name    string
		week    Week
		wantErr bool
	}{
		{"valid", Week{Number: 12, Year: 2025}, false},
		{"zero week", Week{Number: 0, Year: 2025}, true},
		{"week 54", Week{Number: 54, Year: 2025}, true},
		{"bad year", Week{Number: 1, Year: 99}, true},
		{"reversed dates", Week{
			Number: 1, Year: 2025,
			Start: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.week.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFeeScheduleValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FeeSchedule{CommissionRate: 0.02, TransactionRate: 0.01, PaymentRate: 0.02, TargetMargin: 0.1}.Validate())
	assert.Error(t, FeeSchedule{CommissionRate: -0.01}.Validate())
	assert.Error(t, FeeSchedule{CommissionRate: 0.5, TransactionRate: 0.5}.Validate())

	err := FeeSchedule{TargetMargin: 1}.Validate()
	assert.True(t, eris.Is(err, metrics.ErrInvalidMargin))
}

func TestWeeklyReportMetricMap(t *testing.T) {
	t.Parallel()

	r := WeeklyReport{GMV: 1000, Orders: 10, Metrics: metrics.Output{ROAS: 4}}
	m := r.MetricMap()
	assert.Equal(t, 1000.0, m["gmv"])
	assert.Equal(t, 10.0, m["orders"])
	assert.Equal(t, 4.0, m[metrics.KeyROAS])
}
