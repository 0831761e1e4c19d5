// Package metrics derives profitability and ad-performance figures from weekly
// aggregate inputs under a fixed fee and VAT model.
package metrics

import (
	"fmt"
	"math"
	"slices"

	"github.com/rotisserie/eris"
)

// VATRate is applied to the fees plus ad spend base. It is a domain constant
// and is not part of the fee schedule.
const VATRate = 0.07

// DefaultTargetMargin is the profit margin targetRoas is computed against
// when the caller does not supply one.
const DefaultTargetMargin = 0.10

var (
	// ErrDivisionByZero is returned when a metric's divisor is zero.
	ErrDivisionByZero = eris.New("metrics: division by zero")
	// ErrInvalidMargin is returned when the target margin is outside [0, 1).
	ErrInvalidMargin = eris.New("metrics: invalid target margin")
	// ErrNonFinite is returned when a computed output holds NaN or Inf.
	ErrNonFinite = eris.New("metrics: non-finite value")
)

// DivisionByZeroError names the metric that could not be computed.
type DivisionByZeroError struct {
	Metric  string
	Divisor string
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("metrics: %s undefined: %s is zero", e.Metric, e.Divisor)
}

// Unwrap lets errors.Is match ErrDivisionByZero.
func (e *DivisionByZeroError) Unwrap() error { return ErrDivisionByZero }

// Input is the aggregate snapshot a report's metrics are derived from.
// Rates are fractions (0.02 means 2%).
type Input struct {
	GMV             float64 `json:"gmv"`
	Orders          float64 `json:"orders"`
	Costs           float64 `json:"costs"`
	AdSpend         float64 `json:"ad_spend"`
	Clicks          float64 `json:"clicks"`
	Impressions     float64 `json:"impressions"`
	CommissionRate  float64 `json:"commission_rate"`
	TransactionRate float64 `json:"transaction_rate"`
	PaymentRate     float64 `json:"payment_rate"`
}

// Output holds every derived metric. CTR, ConversionRate and ProfitMargin are
// in percentage units.
type Output struct {
	AOV            float64 `json:"aov"`
	TotalFees      float64 `json:"total_fees"`
	VAT            float64 `json:"vat"`
	NetProfit      float64 `json:"net_profit"`
	ROAS           float64 `json:"roas"`
	RealROAS       float64 `json:"real_roas"`
	BreakEvenROAS  float64 `json:"break_even_roas"`
	TargetROAS     float64 `json:"target_roas"`
	CTR            float64 `json:"ctr"`
	CPC            float64 `json:"cpc"`
	CPA            float64 `json:"cpa"`
	ConversionRate float64 `json:"conversion_rate"`
	ProfitMargin   float64 `json:"profit_margin"`
}

// Metric keys used by Map and CompareWeeks.
const (
	KeyAOV            = "aov"
	KeyTotalFees      = "totalFees"
	KeyVAT            = "vat"
	KeyNetProfit      = "netProfit"
	KeyROAS           = "roas"
	KeyRealROAS       = "realRoas"
	KeyBreakEvenROAS  = "breakEvenRoas"
	KeyTargetROAS     = "targetRoas"
	KeyCTR            = "ctr"
	KeyCPC            = "cpc"
	KeyCPA            = "cpa"
	KeyConversionRate = "conversionRate"
	KeyProfitMargin   = "profitMargin"
)

// AOV is the average order value.
func AOV(gmv, orders float64) float64 { return gmv / orders }

// TotalFees applies the proportional marketplace fee model.
func TotalFees(gmv, commissionRate, transactionRate, paymentRate float64) float64 {
	return gmv * (commissionRate + transactionRate + paymentRate)
}

// VAT is charged on fees plus ad spend.
func VAT(totalFees, adSpend float64) float64 { return (totalFees + adSpend) * VATRate }

// NetProfit is what remains of GMV after costs, fees, ad spend and VAT.
func NetProfit(gmv, costs, totalFees, adSpend, vat float64) float64 {
	return gmv - costs - totalFees - adSpend - vat
}

// ROAS is revenue over ad spend.
func ROAS(gmv, adSpend float64) float64 { return gmv / adSpend }

// RealROAS is net profit over ad spend.
func RealROAS(netProfit, adSpend float64) float64 { return netProfit / adSpend }

// BreakEvenROAS is the ROAS at which net profit is zero.
func BreakEvenROAS(costs, totalFees, vat, adSpend float64) float64 {
	return (costs + totalFees + vat) / adSpend
}

// TargetROAS scales break-even ROAS up to reach targetMargin.
func TargetROAS(breakEvenROAS, targetMargin float64) float64 {
	return breakEvenROAS / (1 - targetMargin)
}

// CTR is click-through rate in percent.
func CTR(clicks, impressions float64) float64 { return clicks / impressions * 100 }

// CPC is cost per click.
func CPC(adSpend, clicks float64) float64 { return adSpend / clicks }

// CPA is cost per acquired order.
func CPA(adSpend, orders float64) float64 { return adSpend / orders }

// ConversionRate is orders per click in percent.
func ConversionRate(orders, clicks float64) float64 { return orders / clicks * 100 }

// ProfitMargin is net profit over GMV in percent.
func ProfitMargin(netProfit, gmv float64) float64 { return netProfit / gmv * 100 }

// Calculate derives every metric using DefaultTargetMargin.
func Calculate(in Input) (Output, error) {
	return CalculateWithMargin(in, DefaultTargetMargin)
}

// CalculateWithMargin derives every metric from in. It fails with
// ErrInvalidMargin when targetMargin is outside [0, 1) and with a
// *DivisionByZeroError when any divisor is zero; it never returns a partially
// filled Output.
func CalculateWithMargin(in Input, targetMargin float64) (Output, error) {
	if err := ValidateMargin(targetMargin); err != nil {
		return Output{}, err
	}
	if err := checkDivisors(in); err != nil {
		return Output{}, err
	}
	out, _ := compute(in, targetMargin)
	return out, nil
}

// Partial is the result of CalculatePartial.
type Partial struct {
	Output    Output   `json:"output"`
	Undefined []string `json:"undefined,omitempty"`
}

// Defined reports whether the named metric was computed.
func (p Partial) Defined(key string) bool {
	for _, k := range p.Undefined {
		if k == key {
			return false
		}
	}
	return true
}

// CalculatePartial computes every metric whose divisor is non-zero. Metrics
// that cannot be computed are left at zero and listed in Undefined.
func CalculatePartial(in Input, targetMargin float64) (Partial, error) {
	if err := ValidateMargin(targetMargin); err != nil {
		return Partial{}, err
	}
	out, undefined := compute(in, targetMargin)
	return Partial{Output: out, Undefined: undefined}, nil
}

// ValidateMargin checks that targetMargin lies in [0, 1).
func ValidateMargin(targetMargin float64) error {
	if math.IsNaN(targetMargin) || targetMargin < 0 || targetMargin >= 1 {
		return eris.Wrapf(ErrInvalidMargin, "target margin %v must be in [0, 1)", targetMargin)
	}
	return nil
}

func checkDivisors(in Input) error {
	for _, d := range []struct {
		metric, divisor string
		value           float64
	}{
		{KeyAOV, "orders", in.Orders},
		{KeyROAS, "adSpend", in.AdSpend},
		{KeyCTR, "impressions", in.Impressions},
		{KeyCPC, "clicks", in.Clicks},
		{KeyProfitMargin, "gmv", in.GMV},
	} {
		if d.value == 0 {
			return &DivisionByZeroError{Metric: d.metric, Divisor: d.divisor}
		}
	}
	return nil
}

// compute walks the dependency graph once: totalFees, vat, netProfit, then
// the spend ratios, then the independent leaves.
func compute(in Input, targetMargin float64) (Output, []string) {
	var out Output
	var undefined []string
	guard := func(key string, d float64, f func() float64) float64 {
		if d == 0 {
			undefined = append(undefined, key)
			return 0
		}
		return f()
	}

	out.TotalFees = TotalFees(in.GMV, in.CommissionRate, in.TransactionRate, in.PaymentRate)
	out.VAT = VAT(out.TotalFees, in.AdSpend)
	out.NetProfit = NetProfit(in.GMV, in.Costs, out.TotalFees, in.AdSpend, out.VAT)

	out.ROAS = guard(KeyROAS, in.AdSpend, func() float64 { return ROAS(in.GMV, in.AdSpend) })
	out.RealROAS = guard(KeyRealROAS, in.AdSpend, func() float64 { return RealROAS(out.NetProfit, in.AdSpend) })
	out.BreakEvenROAS = guard(KeyBreakEvenROAS, in.AdSpend, func() float64 {
		return BreakEvenROAS(in.Costs, out.TotalFees, out.VAT, in.AdSpend)
	})
	out.TargetROAS = guard(KeyTargetROAS, in.AdSpend, func() float64 {
		return TargetROAS(out.BreakEvenROAS, targetMargin)
	})

	out.AOV = guard(KeyAOV, in.Orders, func() float64 { return AOV(in.GMV, in.Orders) })
	out.CTR = guard(KeyCTR, in.Impressions, func() float64 { return CTR(in.Clicks, in.Impressions) })
	out.CPC = guard(KeyCPC, in.Clicks, func() float64 { return CPC(in.AdSpend, in.Clicks) })
	out.CPA = guard(KeyCPA, in.Orders, func() float64 { return CPA(in.AdSpend, in.Orders) })
	out.ConversionRate = guard(KeyConversionRate, in.Clicks, func() float64 {
		return ConversionRate(in.Orders, in.Clicks)
	})
	out.ProfitMargin = guard(KeyProfitMargin, in.GMV, func() float64 {
		return ProfitMargin(out.NetProfit, in.GMV)
	})

	return out, undefined
}

// Map returns the metrics keyed by their camelCase names.
func (o Output) Map() map[string]float64 {
	return map[string]float64{
		KeyAOV:            o.AOV,
		KeyTotalFees:      o.TotalFees,
		KeyVAT:            o.VAT,
		KeyNetProfit:      o.NetProfit,
		KeyROAS:           o.ROAS,
		KeyRealROAS:       o.RealROAS,
		KeyBreakEvenROAS:  o.BreakEvenROAS,
		KeyTargetROAS:     o.TargetROAS,
		KeyCTR:            o.CTR,
		KeyCPC:            o.CPC,
		KeyCPA:            o.CPA,
		KeyConversionRate: o.ConversionRate,
		KeyProfitMargin:   o.ProfitMargin,
	}
}

// Finite returns ErrNonFinite naming the first metric that is NaN or Inf.
// Callers must check it before persisting an Output built from unsanitized
// input.
func (o Output) Finite() error {
	m := o.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := m[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Wrapf(ErrNonFinite, "metric %s is %v", k, v)
		}
	}
	return nil
}

// CompareWeeks returns current minus previous for every key present in both
// maps. Keys present on only one side are omitted.
func CompareWeeks(current, previous map[string]float64) map[string]float64 {
	deltas := make(map[string]float64, len(current))
	for k, cur := range current {
		prev, ok := previous[k]
		if !ok {
			continue
		}
		deltas[k] = cur - prev
	}
	return deltas
}
