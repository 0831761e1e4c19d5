package reconcile

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// Keys come from a small alphabet so collisions and duplicates are common.
func adsFrom(keys []int) []model.AdRow {
	out := make([]model.AdRow, len(keys))
	for i, k := range keys {
		out[i] = model.AdRow{ProductSKU: fmt.Sprintf("S%d", k), GMV: float64(i + 1)}
	}
	return out
}

func fulfillmentFrom(keys []int) []model.FulfillmentRow {
	out := make([]model.FulfillmentRow, len(keys))
	for i, k := range keys {
		out[i] = model.FulfillmentRow{ProductSKU: fmt.Sprintf("S%d", k), ProductCost: float64(i + 1)}
	}
	return out
}

func TestReconcileProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	keys := gen.SliceOf(gen.IntRange(0, 8))

	properties.Property("results partition both inputs", prop.ForAll(
		func(a, b []int) bool {
			ads, ful := adsFrom(a), fulfillmentFrom(b)
			res := Reconcile(ads, ful)
			return len(res.Matched)+len(res.UnmatchedAds) == len(ads) &&
				len(res.Matched)+len(res.UnmatchedFulfillment) == len(ful)
		},
		keys, keys,
	))

	properties.Property("no fulfillment row matches twice", prop.ForAll(
		func(a, b []int) bool {
			res := Reconcile(adsFrom(a), fulfillmentFrom(b))
			seen := map[string]bool{}
			for _, p := range res.Matched {
				if p.Ad.Key() != p.Fulfillment.Key() {
					return false
				}
				if seen[p.Fulfillment.Key()] {
					return false
				}
				seen[p.Fulfillment.Key()] = true
			}
			return true
		},
		keys, keys,
	))

	properties.Property("reconcile is deterministic", prop.ForAll(
		func(a, b []int) bool {
			ads, ful := adsFrom(a), fulfillmentFrom(b)
			return reflect.DeepEqual(Reconcile(ads, ful), Reconcile(ads, ful))
		},
		keys, keys,
	))

	properties.Property("summarized gmv equals sum over matched ads", prop.ForAll(
		func(a, b []int) bool {
			res := Reconcile(adsFrom(a), fulfillmentFrom(b))
			var want float64
			for _, p := range res.Matched {
				want += p.Ad.GMV
			}
			return Summarize(res.Matched).TotalGMV == want
		},
		keys, keys,
	))

	properties.Property("top products are sorted and bounded", prop.ForAll(
		func(a []int, n int) bool {
			res := Reconcile(adsFrom(a), fulfillmentFrom(a))
			top := TopProducts(res.Matched, n)
			if n > 0 && len(top) > n {
				return false
			}
			for i := 1; i < len(top); i++ {
				if top[i-1].Ad.GMV < top[i].Ad.GMV {
					return false
				}
			}
			return true
		},
		keys, gen.IntRange(-2, 12),
	))

	properties.TestingRun(t)
}
