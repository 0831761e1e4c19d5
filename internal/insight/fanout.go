package insight

import (
	"bufio"
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoProviders is returned when FanOut is called with no providers.
	ErrNoProviders = eris.New("insight: no providers configured")
	// ErrAllFailed is returned when every provider fails.
	ErrAllFailed = eris.New("insight: all providers failed")
	// ErrNoPrediction is returned when no provider produced a usable figure.
	ErrNoPrediction = eris.New("insight: no usable prediction")
)

// DefaultConcurrency bounds the number of providers queried at once.
const DefaultConcurrency = 4

// Result is one provider's answer. Err is set when the provider failed.
type Result struct {
	Provider string        `json:"provider"`
	Text     string        `json:"text,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the provider answered.
func (r Result) OK() bool { return r.Err == nil }

// FanOut sends prompt to every provider in parallel, at most limit at a time.
// Results keep the providers' order. A failing provider is recorded in its
// Result; the call itself fails only when every provider does.
func FanOut(ctx context.Context, providers []Provider, prompt Prompt, limit int) ([]Result, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range providers {
		g.Go(func() error {
			start := time.Now()
			text, err := p.Analyze(gctx, prompt)
			results[i] = Result{Provider: p.Name(), Text: text, Err: err, Duration: time.Since(start)}
			if err != nil {
				zap.L().Warn("insight: provider failed",
					zap.String("provider", p.Name()),
					zap.String("analysis", prompt.Analysis),
					zap.Error(err),
				)
			}
			return nil // one provider must not cancel the others
		})
	}
	_ = g.Wait()

	errs := make([]error, 0, len(results))
	for _, r := range results {
		if r.OK() {
			return results, nil
		}
		errs = append(errs, r.Err)
	}
	return results, eris.Wrapf(ErrAllFailed, "%s: %v", prompt.Analysis, errors.Join(errs...))
}

// Concatenate joins the successful answers under a heading per provider, in
// provider order.
func Concatenate(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		if !r.OK() || strings.TrimSpace(r.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### ")
		b.WriteString(r.Provider)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(r.Text))
	}
	return b.String()
}

// Mean averages values. ok is false for an empty slice.
func Mean(values []float64) (mean float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Prediction is the consensus next-week forecast.
type Prediction struct {
	GMV       float64  `json:"gmv"`
	ROAS      float64  `json:"roas"`
	Providers []string `json:"providers"`
}

// PredictNextWeek averages the "gmv=" and "roas=" lines of every successful
// answer. A provider counts towards a figure only if it supplied that figure.
func PredictNextWeek(results []Result) (*Prediction, error) {
	var gmvs, roases []float64
	pred := &Prediction{}
	for _, r := range results {
		if !r.OK() {
			continue
		}
		gmv, roas, found := parsePrediction(r.Text)
		if gmv != nil {
			gmvs = append(gmvs, *gmv)
		}
		if roas != nil {
			roases = append(roases, *roas)
		}
		if found {
			pred.Providers = append(pred.Providers, r.Provider)
		}
	}

	var okGMV, okROAS bool
	pred.GMV, okGMV = Mean(gmvs)
	pred.ROAS, okROAS = Mean(roases)
	if !okGMV && !okROAS {
		return nil, ErrNoPrediction
	}
	return pred, nil
}

func parsePrediction(text string) (gmv, roas *float64, found bool) {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.Trim(key, " \t*-`"))
		val = strings.NewReplacer(",", "", "฿", "", "$", "", "`", "", "*", "").Replace(val)
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		switch key {
		case "gmv":
			gmv, found = &f, true
		case "roas":
			roas, found = &f, true
		}
	}
	return gmv, roas, found
}
