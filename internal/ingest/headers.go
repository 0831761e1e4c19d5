package ingest

import (
	"fmt"
	"strings"
	"unicode"
)

// Canonical column names, matching the csv tags on the record structs.
const (
	colProductName = "product_name"
	colProductSKU  = "product_sku"
	colAdSpend     = "ad_spend"
	colImpressions = "impressions"
	colClicks      = "clicks"
	colOrders      = "orders"
	colGMV         = "gmv"
	colCommission  = "affiliate_commission"
	colUnits       = "units"
	colProductCost = "product_cost"
)

// Aliases are keyed by normalized header text.
var sharedAliases = map[string]string{
	"productname": colProductName,
	"product":     colProductName,
	"name":        colProductName,
	"itemname":    colProductName,
	"item":        colProductName,
	"ชื่อสินค้า":  colProductName,
	"สินค้า":      colProductName,

	"productsku": colProductSKU,
	"sku":        colProductSKU,
	"sellersku":  colProductSKU,
	"skuid":      colProductSKU,
	"itemsku":    colProductSKU,
	"parentsku":  colProductSKU,
	"modelsku":   colProductSKU,

	"orders":     colOrders,
	"order":      colOrders,
	"ordercount": colOrders,

	"gmv":     colGMV,
	"revenue": colGMV,
	"sales":   colGMV,
}

var adsAliases = merge(sharedAliases, map[string]string{
	"adspend":     colAdSpend,
	"spend":       colAdSpend,
	"expense":     colAdSpend,
	"expenses":    colAdSpend,
	"cost":        colAdSpend,
	"adcost":      colAdSpend,
	"impressions": colImpressions,
	"impression":  colImpressions,
	"views":       colImpressions,
	"clicks":      colClicks,
	"click":       colClicks,
	"conversions": colOrders,

	"affiliatecommission": colCommission,
	"commission":          colCommission,
	"affiliatefee":        colCommission,
})

var fulfillmentAliases = merge(sharedAliases, map[string]string{
	"units":       colUnits,
	"unit":        colUnits,
	"quantity":    colUnits,
	"qty":         colUnits,
	"unitssold":   colUnits,
	"itemssold":   colUnits,
	"productcost": colProductCost,
	"cost":        colProductCost,
	"cogs":        colProductCost,
	"totalcost":   colProductCost,
	"costofgoods": colProductCost,
})

func merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// normalizeHeader lowercases and drops everything but letters and digits, so
// "Product Name", "product_name" and "productName" compare equal.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// canonicalHeader maps a raw header row to canonical column names. The first
// column to claim a name keeps it; later claimants and unknown columns get a
// placeholder that no struct field decodes.
func canonicalHeader(raw []string, aliases map[string]string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, h := range raw {
		name, ok := aliases[normalizeHeader(h)]
		if !ok || taken[name] {
			out[i] = fmt.Sprintf("_unused_%d", i)
			continue
		}
		taken[name] = true
		out[i] = name
	}
	return out
}
