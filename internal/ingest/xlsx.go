package ingest

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// ParseAdsXLSX decodes the first sheet of an ads export workbook.
func ParseAdsXLSX(path string) ([]model.AdRow, *ParseStats, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}
	return parseAdsWorkbook(f)
}

// ParseFulfillmentXLSX decodes the first sheet of a fulfillment export workbook.
func ParseFulfillmentXLSX(path string) ([]model.FulfillmentRow, *ParseStats, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}
	return parseFulfillmentWorkbook(f)
}

// ParseAdsFile picks CSV or XLSX decoding from the file name's extension.
func ParseAdsFile(name string, r io.Reader) ([]model.AdRow, *ParseStats, error) {
	if !isWorkbook(name) {
		return ParseAds(r)
	}
	f, err := openWorkbook(r)
	if err != nil {
		return nil, nil, err
	}
	return parseAdsWorkbook(f)
}

// ParseFulfillmentFile picks CSV or XLSX decoding from the file name's extension.
func ParseFulfillmentFile(name string, r io.Reader) ([]model.FulfillmentRow, *ParseStats, error) {
	if !isWorkbook(name) {
		return ParseFulfillment(r)
	}
	f, err := openWorkbook(r)
	if err != nil {
		return nil, nil, err
	}
	return parseFulfillmentWorkbook(f)
}

func isWorkbook(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

func openWorkbook(r io.Reader) (*xlsx.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read xlsx")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	return f, nil
}

func parseAdsWorkbook(f *xlsx.File) ([]model.AdRow, *ParseStats, error) {
	rows, err := firstSheetRows(f)
	if err != nil {
		return nil, nil, err
	}
	recs, stats, err := decode(sliceRows(rows), adsAliases, func(a adRecord) model.AdRow { return a.row() })
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: parse ads xlsx")
	}
	return recs, stats, nil
}

func parseFulfillmentWorkbook(f *xlsx.File) ([]model.FulfillmentRow, *ParseStats, error) {
	rows, err := firstSheetRows(f)
	if err != nil {
		return nil, nil, err
	}
	recs, stats, err := decode(sliceRows(rows), fulfillmentAliases, func(r fulfillmentRecord) model.FulfillmentRow { return r.row() })
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: parse fulfillment xlsx")
	}
	return recs, stats, nil
}

func firstSheetRows(f *xlsx.File) ([][]string, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return padRows(rows), nil
}

// padRows extends short rows to the header width. Sheets drop trailing empty
// cells, which csvutil would otherwise reject as a field count mismatch.
func padRows(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	width := len(rows[0])
	for i, r := range rows {
		if len(r) < width {
			rows[i] = append(r, make([]string, width-len(r))...)
		}
	}
	return rows
}
