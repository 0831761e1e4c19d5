package model

// AdRow is one product line from the ads platform export.
type AdRow struct {
	ProductName         string  `json:"product_name"`
	ProductSKU          string  `json:"product_sku,omitempty"`
	AdSpend             float64 `json:"ad_spend"`
	Impressions         float64 `json:"impressions"`
	Clicks              float64 `json:"clicks"`
	Orders              float64 `json:"orders"`
	GMV                 float64 `json:"gmv"`
	AffiliateCommission float64 `json:"affiliate_commission"`
}

// Key returns the identity key used to join rows across sources.
func (r AdRow) Key() string { return IdentityKey(r.ProductSKU, r.ProductName) }

// FulfillmentRow is one product line from the seller-tool export.
type FulfillmentRow struct {
	ProductName string  `json:"product_name"`
	ProductSKU  string  `json:"product_sku,omitempty"`
	Orders      float64 `json:"orders"`
	Units       float64 `json:"units"`
	GMV         float64 `json:"gmv"`
	ProductCost float64 `json:"product_cost"`
}

// Key returns the identity key used to join rows across sources.
func (r FulfillmentRow) Key() string { return IdentityKey(r.ProductSKU, r.ProductName) }

// IdentityKey prefers the SKU and falls back to the product name. Matching is
// exact and case-sensitive.
func IdentityKey(sku, name string) string {
	if sku != "" {
		return sku
	}
	return name
}

// MatchedPair joins an ad row with the fulfillment row sharing its key.
type MatchedPair struct {
	Ad          AdRow          `json:"ad"`
	Fulfillment FulfillmentRow `json:"fulfillment"`
}

// ReconciliationResult partitions both inputs into matched pairs and
// leftovers. Matched follows the ad rows' input order.
type ReconciliationResult struct {
	Matched              []MatchedPair    `json:"matched"`
	UnmatchedAds         []AdRow          `json:"unmatched_ads"`
	UnmatchedFulfillment []FulfillmentRow `json:"unmatched_fulfillment"`
}

// SummaryTotals sums the matched pairs.
type SummaryTotals struct {
	TotalOrders              float64 `json:"total_orders"`
	TotalUnits               float64 `json:"total_units"`
	TotalGMV                 float64 `json:"total_gmv"`
	TotalAdSpend             float64 `json:"total_ad_spend"`
	TotalAffiliateCommission float64 `json:"total_affiliate_commission"`
	TotalProductCost         float64 `json:"total_product_cost"`
	TotalClicks              float64 `json:"total_clicks"`
	TotalImpressions         float64 `json:"total_impressions"`
}
