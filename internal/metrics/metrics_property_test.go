package metrics

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNetProfitConsistencyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("netProfit equals gmv - costs - fees - spend - vat", prop.ForAll(
		func(gmv, costs, spend float64, orders, clicks int) bool {
			in := Input{
				GMV:             gmv,
				Orders:          float64(orders),
				Costs:           costs,
				AdSpend:         spend,
				Clicks:          float64(clicks),
				Impressions:     float64(clicks * 20),
				CommissionRate:  0.04,
				TransactionRate: 0.02,
				PaymentRate:     0.02,
			}
			out, err := Calculate(in)
			if err != nil {
				return false
			}
			return out.NetProfit == in.GMV-in.Costs-out.TotalFees-in.AdSpend-out.VAT
		},
		gen.Float64Range(1, 1e7),
		gen.Float64Range(0, 1e7),
		gen.Float64Range(1, 1e6),
		gen.IntRange(1, 10000),
		gen.IntRange(1, 100000),
	))

	properties.Property("spend at break-even roas zeroes net profit", prop.ForAll(
		func(costs, spend float64) bool {
			// Solve gmv so that gmv - spend = spend × breakEvenRoas(gmv).
			// fees = gmv×r, vat = (fees+spend)×VATRate, so
			// gmv(1 - r - r×VATRate) = costs + spend + spend×VATRate.
			r := 0.08
			gmv := (costs + spend + spend*VATRate) / (1 - r - r*VATRate)
			in := Input{
				GMV: gmv, Orders: 1, Costs: costs, AdSpend: spend, Clicks: 1, Impressions: 1,
				CommissionRate: r,
			}
			out, err := Calculate(in)
			if err != nil {
				return false
			}
			return math.Abs(out.NetProfit) < 1e-6*math.Max(1, gmv)
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(1, 1e5),
	))

	properties.TestingRun(t)
}
