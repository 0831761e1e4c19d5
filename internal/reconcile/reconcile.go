// Package reconcile joins the ads export with the fulfillment export by
// product identity and aggregates the matched pairs.
package reconcile

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// ErrAmbiguousMatch is returned by ReconcileStrict when an identity key
// repeats within one source.
var ErrAmbiguousMatch = eris.New("reconcile: ambiguous match")

// Policy selects how duplicate identity keys within one source are handled.
type Policy string

const (
	// PolicyFirstWins keeps the first row for a key; later duplicates are left
	// unmatched.
	PolicyFirstWins Policy = "first-wins"
	// PolicyReject fails the whole reconciliation with ErrAmbiguousMatch.
	PolicyReject Policy = "reject"
)

// ParsePolicy maps a config or flag value to a Policy. Empty means
// PolicyFirstWins.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirstWins:
		return PolicyFirstWins, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", eris.Errorf("reconcile: unknown duplicate policy %q", s)
	}
}

// Reconcile matches ad rows to fulfillment rows by identity key. Each
// fulfillment row is consumed at most once, so a key yields at most one pair.
// When a key repeats in fulfillment, the first row wins and the rest are
// reported as unmatched. Matched follows the ad rows' order; both unmatched
// slices keep their source order.
func Reconcile(ads []model.AdRow, fulfillment []model.FulfillmentRow) model.ReconciliationResult {
	// index of the row each key resolves to; -1 once consumed
	lookup := make(map[string]int, len(fulfillment))
	for i, row := range fulfillment {
		k := row.Key()
		if _, dup := lookup[k]; dup {
			continue
		}
		lookup[k] = i
	}

	consumed := make([]bool, len(fulfillment))
	res := model.ReconciliationResult{
		Matched:              []model.MatchedPair{},
		UnmatchedAds:         []model.AdRow{},
		UnmatchedFulfillment: []model.FulfillmentRow{},
	}

	for _, ad := range ads {
		k := ad.Key()
		idx, ok := lookup[k]
		if !ok || idx < 0 {
			res.UnmatchedAds = append(res.UnmatchedAds, ad)
			continue
		}
		res.Matched = append(res.Matched, model.MatchedPair{Ad: ad, Fulfillment: fulfillment[idx]})
		consumed[idx] = true
		lookup[k] = -1
	}

	for i, row := range fulfillment {
		if !consumed[i] {
			res.UnmatchedFulfillment = append(res.UnmatchedFulfillment, row)
		}
	}
	return res
}

// ReconcileStrict behaves like Reconcile but rejects inputs in which any
// identity key repeats within the ads or within the fulfillment rows.
func ReconcileStrict(ads []model.AdRow, fulfillment []model.FulfillmentRow) (model.ReconciliationResult, error) {
	if k, ok := firstDuplicate(ads, model.AdRow.Key); ok {
		return model.ReconciliationResult{}, eris.Wrapf(ErrAmbiguousMatch, "duplicate key %q in ads export", k)
	}
	if k, ok := firstDuplicate(fulfillment, model.FulfillmentRow.Key); ok {
		return model.ReconciliationResult{}, eris.Wrapf(ErrAmbiguousMatch, "duplicate key %q in fulfillment export", k)
	}
	return Reconcile(ads, fulfillment), nil
}

// WithPolicy dispatches to Reconcile or ReconcileStrict.
func WithPolicy(p Policy, ads []model.AdRow, fulfillment []model.FulfillmentRow) (model.ReconciliationResult, error) {
	if p == PolicyReject {
		return ReconcileStrict(ads, fulfillment)
	}
	return Reconcile(ads, fulfillment), nil
}

func firstDuplicate[T any](rows []T, key func(T) string) (string, bool) {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		k := key(r)
		if _, ok := seen[k]; ok {
			return k, true
		}
		seen[k] = struct{}{}
	}
	return "", false
}

// Summarize totals the matched pairs. Unmatched rows have no joint cost and
// revenue basis and are excluded.
func Summarize(matched []model.MatchedPair) model.SummaryTotals {
	var s model.SummaryTotals
	for _, p := range matched {
		s.TotalOrders += p.Ad.Orders
		s.TotalUnits += p.Fulfillment.Units
		s.TotalGMV += p.Ad.GMV
		s.TotalAdSpend += p.Ad.AdSpend
		s.TotalAffiliateCommission += p.Ad.AffiliateCommission
		s.TotalProductCost += p.Fulfillment.ProductCost
		s.TotalClicks += p.Ad.Clicks
		s.TotalImpressions += p.Ad.Impressions
	}
	return s
}

// TopProducts returns up to n pairs ordered by ad GMV descending. Ties keep
// their matched order. n <= 0 returns every pair. matched is not modified.
func TopProducts(matched []model.MatchedPair, n int) []model.MatchedPair {
	sorted := slices.Clone(matched)
	slices.SortStableFunc(sorted, func(a, b model.MatchedPair) int {
		switch {
		case a.Ad.GMV > b.Ad.GMV:
			return -1
		case a.Ad.GMV < b.Ad.GMV:
			return 1
		default:
			return 0
		}
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
