package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/store"
)

func TestWriteXLSX(t *testing.T) {
	reports := []model.WeeklyReport{
		{ID: "r6", Week: model.NewWeek(2025, 6), GMV: 800, Metrics: metrics.Output{ROAS: 8}},
		{ID: "r7", Week: model.NewWeek(2025, 7), GMV: 1000, MatchedCount: 3, Notes: "promo", Metrics: metrics.Output{ROAS: 10}},
	}
	top := map[string][]model.TopProduct{
		"r7": {{Rank: 1, ProductName: "Mug", ProductSKU: "X1", GMV: 600}, {Rank: 2, ProductName: "Tote", GMV: 400}},
	}

	path := filepath.Join(t.TempDir(), "reports.xlsx")
	require.NoError(t, WriteXLSX(path, reports, top))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	rs := f.Sheet[reportsSheet]
	require.NotNil(t, rs)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, "Week", rs.Rows[0].Cells[0].String())
	assert.Equal(t, len(reportHeader), len(rs.Rows[0].Cells))
	assert.Equal(t, len(reportHeader), len(rs.Rows[2].Cells))
	assert.Equal(t, "2025-W07", rs.Rows[2].Cells[0].String())
	assert.Equal(t, "2025-02-10", rs.Rows[2].Cells[1].String())
	gmv, err := rs.Rows[2].Cells[3].Float()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, gmv)
	assert.Equal(t, "promo", rs.Rows[2].Cells[len(reportHeader)-1].String())

	ts := f.Sheet[topProductsSheet]
	require.NotNil(t, ts)
	require.Len(t, ts.Rows, 3)
	assert.Equal(t, "2025-W07", ts.Rows[1].Cells[0].String())
	assert.Equal(t, "Mug", ts.Rows[1].Cells[2].String())
	assert.Equal(t, len(topHeader), len(ts.Rows[2].Cells))
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, nil))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Len(t, f.Sheet[reportsSheet].Rows, 1)
}

func TestLoad_OldestFirst(t *testing.T) {
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	for _, w := range []int{7, 6} {
		r := &model.WeeklyReport{Week: model.NewWeek(2025, w), GMV: float64(w)}
		require.NoError(t, s.CreateReport(ctx, r, []model.TopProduct{{Rank: 1, ProductName: "Mug"}}))
	}

	reports, top, err := Load(ctx, s, store.ReportFilter{Year: 2025})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 6, reports[0].Week.Number)
	assert.Len(t, top[reports[1].ID], 1)
}
