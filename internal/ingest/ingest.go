// Package ingest decodes the ads platform and fulfillment tool exports into
// model rows. Headers are matched loosely and numeric cells are coerced, so
// exports from different tools and locales decode without a mapping step.
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// ErrNoIdentityColumn is returned when the header has neither a product name
// nor a SKU column.
var ErrNoIdentityColumn = eris.New("ingest: no product name or SKU column")

// maxRowErrors caps the per-row errors kept in ParseStats; Failed still counts
// every rejected row.
const maxRowErrors = 50

// ParseStats reports how many data rows decoded and which were rejected.
type ParseStats struct {
	Rows   int        `json:"rows"`
	Failed int        `json:"failed"`
	Errors []RowError `json:"errors,omitempty"`
}

// RowError describes one rejected row. Row is 1-based and excludes the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (s *ParseStats) fail(row int, err error) {
	s.Failed++
	if len(s.Errors) < maxRowErrors {
		s.Errors = append(s.Errors, RowError{Row: row, Message: err.Error()})
	}
}

type adRecord struct {
	ProductName         string `csv:"product_name"`
	ProductSKU          string `csv:"product_sku"`
	AdSpend             Number `csv:"ad_spend"`
	Impressions         Number `csv:"impressions"`
	Clicks              Number `csv:"clicks"`
	Orders              Number `csv:"orders"`
	GMV                 Number `csv:"gmv"`
	AffiliateCommission Number `csv:"affiliate_commission"`
}

func (r adRecord) row() model.AdRow {
	return model.AdRow{
		ProductName:         strings.TrimSpace(r.ProductName),
		ProductSKU:          strings.TrimSpace(r.ProductSKU),
		AdSpend:             float64(r.AdSpend),
		Impressions:         float64(r.Impressions),
		Clicks:              float64(r.Clicks),
		Orders:              float64(r.Orders),
		GMV:                 float64(r.GMV),
		AffiliateCommission: float64(r.AffiliateCommission),
	}
}

type fulfillmentRecord struct {
	ProductName string `csv:"product_name"`
	ProductSKU  string `csv:"product_sku"`
	Orders      Number `csv:"orders"`
	Units       Number `csv:"units"`
	GMV         Number `csv:"gmv"`
	ProductCost Number `csv:"product_cost"`
}

func (r fulfillmentRecord) row() model.FulfillmentRow {
	return model.FulfillmentRow{
		ProductName: strings.TrimSpace(r.ProductName),
		ProductSKU:  strings.TrimSpace(r.ProductSKU),
		Orders:      float64(r.Orders),
		Units:       float64(r.Units),
		GMV:         float64(r.GMV),
		ProductCost: float64(r.ProductCost),
	}
}

var errNoIdentity = eris.New("missing product name and SKU")

// ParseAds decodes an ads export in CSV form.
func ParseAds(r io.Reader) ([]model.AdRow, *ParseStats, error) {
	recs, stats, err := decode(csvRows(r), adsAliases, func(a adRecord) model.AdRow { return a.row() })
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: parse ads")
	}
	return recs, stats, nil
}

// ParseFulfillment decodes a fulfillment export in CSV form.
func ParseFulfillment(r io.Reader) ([]model.FulfillmentRow, *ParseStats, error) {
	recs, stats, err := decode(csvRows(r), fulfillmentAliases, func(f fulfillmentRecord) model.FulfillmentRow { return f.row() })
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: parse fulfillment")
	}
	return recs, stats, nil
}

type identified interface {
	Key() string
}

// decode maps the header through aliases and feeds every following record to
// csvutil. Rows that fail to decode, or that carry no identity, are counted
// in the stats and skipped; only read errors abort.
func decode[R any, T identified](rows *rowReader, aliases map[string]string, convert func(R) T) ([]T, *ParseStats, error) {
	stats := &ParseStats{}

	raw, err := rows.header()
	if errors.Is(err, io.EOF) {
		return nil, stats, eris.New("empty file")
	}
	if err != nil {
		return nil, stats, eris.Wrap(err, "read header")
	}

	header := canonicalHeader(raw, aliases)
	if !slices.Contains(header, colProductName) && !slices.Contains(header, colProductSKU) {
		return nil, stats, ErrNoIdentityColumn
	}

	dec, err := csvutil.NewDecoder(rows, header...)
	if err != nil {
		return nil, stats, eris.Wrap(err, "init decoder")
	}

	out := []T{}
	for {
		var rec R
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if rows.fatal() {
				return nil, stats, eris.Wrap(err, "read row")
			}
			stats.fail(rows.n, err)
			continue
		}
		row := convert(rec)
		if row.Key() == "" {
			stats.fail(rows.n, errNoIdentity)
			continue
		}
		out = append(out, row)
		stats.Rows++
	}
	return out, stats, nil
}

// rowReader adapts a record source to csvutil.Reader, skipping blank records
// and tracking the current data row number.
type rowReader struct {
	next func() ([]string, error)
	n    int
	err  error
}

func csvRows(r io.Reader) *rowReader {
	// BOMOverride strips a UTF-8 BOM and switches to UTF-16 when a UTF-16 BOM
	// is present.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return &rowReader{next: cr.Read}
}

func sliceRows(rows [][]string) *rowReader {
	i := 0
	return &rowReader{next: func() ([]string, error) {
		if i >= len(rows) {
			return nil, io.EOF
		}
		i++
		return rows[i-1], nil
	}}
}

func (r *rowReader) header() ([]string, error) {
	for {
		rec, err := r.next()
		if err != nil || !blank(rec) {
			return rec, err
		}
	}
}

// Read implements csvutil.Reader.
func (r *rowReader) Read() ([]string, error) {
	for {
		rec, err := r.next()
		r.err = err
		if err == nil && blank(rec) {
			continue
		}
		if err == nil || isRecordError(err) {
			r.n++
		}
		return rec, err
	}
}

// fatal reports whether the last read failed for a reason other than a
// malformed record.
func (r *rowReader) fatal() bool {
	return r.err != nil && !errors.Is(r.err, io.EOF) && !isRecordError(r.err)
}

func isRecordError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
