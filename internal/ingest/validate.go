package ingest

import (
	"fmt"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// Warning flags a decoded row that is suspicious but still usable.
type Warning struct {
	Row     int    `json:"row"`
	Key     string `json:"key"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("row %d (%s): %s %s", w.Row, w.Key, w.Field, w.Message)
}

// ValidateAds reports negative values and clicks exceeding impressions.
func ValidateAds(rows []model.AdRow) []Warning {
	var out []Warning
	for i, r := range rows {
		out = appendNegatives(out, i+1, r.Key(), map[string]float64{
			colAdSpend:     r.AdSpend,
			colImpressions: r.Impressions,
			colClicks:      r.Clicks,
			colOrders:      r.Orders,
			colGMV:         r.GMV,
			colCommission:  r.AffiliateCommission,
		})
		if r.Clicks > r.Impressions {
			out = append(out, Warning{Row: i + 1, Key: r.Key(), Field: colClicks, Message: "exceed impressions"})
		}
	}
	return out
}

// ValidateFulfillment reports negative values and more orders than units.
func ValidateFulfillment(rows []model.FulfillmentRow) []Warning {
	var out []Warning
	for i, r := range rows {
		out = appendNegatives(out, i+1, r.Key(), map[string]float64{
			colOrders:      r.Orders,
			colUnits:       r.Units,
			colGMV:         r.GMV,
			colProductCost: r.ProductCost,
		})
		if r.Orders > r.Units && r.Units > 0 {
			out = append(out, Warning{Row: i + 1, Key: r.Key(), Field: colOrders, Message: "exceed units"})
		}
	}
	return out
}

// fieldOrder keeps warnings in a stable order across map iteration.
var fieldOrder = []string{
	colAdSpend, colImpressions, colClicks, colOrders, colUnits, colGMV, colCommission, colProductCost,
}

func appendNegatives(out []Warning, row int, key string, fields map[string]float64) []Warning {
	for _, name := range fieldOrder {
		v, ok := fields[name]
		if ok && v < 0 {
			out = append(out, Warning{Row: row, Key: key, Field: name, Message: "is negative"})
		}
	}
	return out
}
