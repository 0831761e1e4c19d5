package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gmv-tracker/internal/config"
	"github.com/sells-group/gmv-tracker/internal/ingest"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
)

func weekFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Int("year", 0, "")
	f.Int("week", 0, "")
	f.String("date", "", "")
	require.NoError(t, f.Parse(args))
	return f
}

func TestResolveWeek(t *testing.T) {
	now := time.Date(2025, 2, 19, 12, 0, 0, 0, time.UTC) // Wednesday of 2025-W08

	tests := []struct {
		name  string
		args  []string
		label string
		start string
	}{
		{"explicit", []string{"--year", "2024", "--week", "52"}, "2024-W52", "2024-12-23"},
		{"week only uses current year", []string{"--week", "7"}, "2025-W07", "2025-02-10"},
		{"date", []string{"--date", "2025-01-01"}, "2025-W01", "2024-12-30"},
		{"default is last week", nil, "2025-W07", "2025-02-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := resolveWeek(weekFlags(t, tt.args...), now)
			require.NoError(t, err)
			assert.Equal(t, tt.label, w.Label())
			assert.Equal(t, tt.start, w.Start.Format("2006-01-02"))
		})
	}
}

func TestResolveWeek_Invalid(t *testing.T) {
	_, err := resolveWeek(weekFlags(t, "--week", "54"), time.Now())
	assert.Error(t, err)

	_, err = resolveWeek(weekFlags(t, "--date", "19/02/2025"), time.Now())
	assert.Error(t, err)
}

func feeCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("fee-schedule", "", "")
	cmd.Flags().String("fee-file", "", "")
	addFeeFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse(args))
	cmd.SetContext(context.Background())
	return cmd
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestResolveFees(t *testing.T) {
	cfg = &config.Config{}
	cfg.Fees.FeeSchedule = model.FeeSchedule{CommissionRate: 0.05, TargetMargin: 0.1}
	st := testStore(t)

	fees, err := resolveFees(feeCommand(t), st)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, fees.CommissionRate, 1e-9)

	fees, err = resolveFees(feeCommand(t, "--payment-rate", "0.02", "--target-margin", "0.2"), st)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, fees.CommissionRate, 1e-9)
	assert.InDelta(t, 0.02, fees.PaymentRate, 1e-9)
	assert.InDelta(t, 0.2, fees.TargetMargin, 1e-9)

	require.NoError(t, st.SaveFeeSchedule(context.Background(), "promo", model.FeeSchedule{CommissionRate: 0.01}))
	fees, err = resolveFees(feeCommand(t, "--fee-schedule", "promo"), st)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, fees.CommissionRate, 1e-9)

	_, err = resolveFees(feeCommand(t, "--fee-schedule", "missing"), st)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = resolveFees(feeCommand(t, "--target-margin", "1"), st)
	assert.Error(t, err)
}

func TestResolveFees_FeeFile(t *testing.T) {
	cfg = &config.Config{}
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commission_rate: 0.03\ntarget_margin: 0.15\n"), 0644))

	fees, err := resolveFees(feeCommand(t, "--fee-file", path, "--commission-rate", "0.04"), testStore(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.04, fees.CommissionRate, 1e-9)
	assert.InDelta(t, 0.15, fees.TargetMargin, 1e-9)
}

func TestFormatImportResult(t *testing.T) {
	res := &report.ImportResult{
		Report: &model.WeeklyReport{
			ID:           "abc12345",
			Week:         model.NewWeek(2025, 7),
			GMV:          1000,
			MatchedCount: 1,
			UnmatchedAds: 1,
		},
		AdsStats:         &ingest.ParseStats{Rows: 2},
		FulfillmentStats: &ingest.ParseStats{Rows: 1, Failed: 1},
		Warnings:         []ingest.Warning{{Row: 2, Key: "x1", Field: "clicks", Message: "negative value"}},
		Replaced:         "old-id",
	}

	var buf bytes.Buffer
	formatImportResult(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "2025-W07 (2025-02-10 to 2025-02-16)")
	assert.Contains(t, out, "Replaced")
	assert.Contains(t, out, "fulfillment 1 (1 rejected)")
	assert.Contains(t, out, "unmatched ads 1")
	assert.Contains(t, out, "฿1,000.00")
	assert.Contains(t, out, "1 warning(s)")
}
