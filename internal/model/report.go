package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/metrics"
)

// Week identifies the reporting period of a weekly report.
type Week struct {
	Number int       `json:"week_number"`
	Year   int       `json:"year"`
	Start  time.Time `json:"start_date"`
	End    time.Time `json:"end_date"`
}

// ISOWeek returns the ISO week containing t, spanning Monday through Sunday.
func ISOWeek(t time.Time) Week {
	year, num := t.ISOWeek()
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	start := t.AddDate(0, 0, -offset)
	return Week{
		Number: num,
		Year:   year,
		Start:  start,
		End:    start.AddDate(0, 0, 6),
	}
}

// NewWeek returns ISO week number of year with its Monday-Sunday dates.
func NewWeek(year, number int) Week {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	start := monday.AddDate(0, 0, 7*(number-1))
	return Week{Number: number, Year: year, Start: start, End: start.AddDate(0, 0, 6)}
}

// Validate checks the week number and date range.
func (w Week) Validate() error {
	if w.Number < 1 || w.Number > 53 {
		return eris.Errorf("model: week number %d out of range 1-53", w.Number)
	}
	if w.Year < 2000 || w.Year > 9999 {
		return eris.Errorf("model: year %d out of range", w.Year)
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return eris.New("model: week end date before start date")
	}
	return nil
}

// Label renders the week as "2025-W07".
func (w Week) Label() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Number)
}

// FeeSchedule holds the marketplace fee rates applied to GMV, as fractions.
type FeeSchedule struct {
	CommissionRate  float64 `json:"commission_rate" yaml:"commission_rate" mapstructure:"commission_rate"`
	TransactionRate float64 `json:"transaction_rate" yaml:"transaction_rate" mapstructure:"transaction_rate"`
	PaymentRate     float64 `json:"payment_rate" yaml:"payment_rate" mapstructure:"payment_rate"`
	TargetMargin    float64 `json:"target_margin" yaml:"target_margin" mapstructure:"target_margin"`
}

// Validate rejects negative rates and margins outside [0, 1).
func (f FeeSchedule) Validate() error {
	if f.CommissionRate < 0 || f.TransactionRate < 0 || f.PaymentRate < 0 {
		return eris.New("model: fee rates must be non-negative")
	}
	if f.CommissionRate+f.TransactionRate+f.PaymentRate >= 1 {
		return eris.New("model: combined fee rate must be below 100%")
	}
	return metrics.ValidateMargin(f.TargetMargin)
}

// WeeklyReport is the persisted outcome of one reconciliation and metrics run.
type WeeklyReport struct {
	ID   string `json:"id"`
	Week Week   `json:"week"`

	GMV                 float64 `json:"gmv"`
	Orders              float64 `json:"orders"`
	Units               float64 `json:"units"`
	AdSpend             float64 `json:"ad_spend"`
	Impressions         float64 `json:"impressions"`
	Clicks              float64 `json:"clicks"`
	AffiliateCommission float64 `json:"affiliate_commission"`
	ProductCost         float64 `json:"product_cost"`

	Metrics metrics.Output `json:"metrics"`
	Fees    FeeSchedule    `json:"fees"`

	MatchedCount         int `json:"matched_count"`
	UnmatchedAds         int `json:"unmatched_ads"`
	UnmatchedFulfillment int `json:"unmatched_fulfillment"`
	ProductsAdvertised   int `json:"products_advertised"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetricMap returns the totals and derived metrics keyed for week-over-week
// comparison.
func (r WeeklyReport) MetricMap() map[string]float64 {
	m := r.Metrics.Map()
	m["gmv"] = r.GMV
	m["orders"] = r.Orders
	m["units"] = r.Units
	m["adSpend"] = r.AdSpend
	m["impressions"] = r.Impressions
	m["clicks"] = r.Clicks
	return m
}

// TopProduct is one ranked row of a report's best sellers.
type TopProduct struct {
	ReportID     string  `json:"report_id"`
	Rank         int     `json:"rank"`
	ProductName  string  `json:"product_name"`
	ProductSKU   string  `json:"product_sku,omitempty"`
	GMV          float64 `json:"gmv"`
	Orders       float64 `json:"orders"`
	Units        float64 `json:"units"`
	AdSpend      float64 `json:"ad_spend"`
	ROAS         float64 `json:"roas"`
	NetProfit    float64 `json:"net_profit"`
	ProfitMargin float64 `json:"profit_margin"`
}

// ImportSource names which export a file came from.
type ImportSource string

const (
	ImportSourceAds         ImportSource = "ads"
	ImportSourceFulfillment ImportSource = "fulfillment"
)

// ImportStatus is the outcome of an import.
type ImportStatus string

const (
	ImportStatusSuccess ImportStatus = "success"
	ImportStatusFailed  ImportStatus = "failed"
)

// ImportRecord is one entry in the import history.
type ImportRecord struct {
	ID              string       `json:"id"`
	ReportID        string       `json:"report_id,omitempty"`
	FileName        string       `json:"file_name"`
	Source          ImportSource `json:"source"`
	FileSize        int64        `json:"file_size"`
	Status          ImportStatus `json:"status"`
	RecordsImported int          `json:"records_imported"`
	RecordsFailed   int          `json:"records_failed"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// SyncStatus is the outcome of a Notion sync.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncType distinguishes page creation from update.
type SyncType string

const (
	SyncTypeCreate SyncType = "create"
	SyncTypeUpdate SyncType = "update"
)

// SyncLog records one attempt to push a report to Notion.
type SyncLog struct {
	ID           string     `json:"id"`
	ReportID     string     `json:"report_id"`
	NotionPageID string     `json:"notion_page_id,omitempty"`
	DatabaseID   string     `json:"database_id"`
	Status       SyncStatus `json:"status"`
	SyncType     SyncType   `json:"sync_type"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AnalysisType classifies an AI recommendation.
type AnalysisType string

const (
	AnalysisTrends          AnalysisType = "trends"
	AnalysisRecommendations AnalysisType = "recommendations"
	AnalysisPrediction      AnalysisType = "prediction"
)

// Recommendation is one AI-generated insight attached to a report.
type Recommendation struct {
	ID           string          `json:"id"`
	ReportID     string          `json:"report_id"`
	Provider     string          `json:"provider"`
	AnalysisType AnalysisType    `json:"analysis_type"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Priority     int             `json:"priority"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
