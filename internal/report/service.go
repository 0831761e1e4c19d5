package report

import (
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/ingest"
	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
	"github.com/sells-group/gmv-tracker/internal/store"
)

// ErrWeekExists is returned by Import when the week already has a report and
// the request does not ask to replace it.
var ErrWeekExists = eris.New("report: week already imported")

// InputError marks a failure caused by the caller's data: an unreadable
// export, an invalid week or fee schedule.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }

func (e *InputError) Unwrap() error { return e.Err }

// Source is one uploaded or fetched export. Name decides the format: a
// ".xlsx" suffix is read as a workbook, anything else as CSV.
type Source struct {
	Name string
	Body io.Reader
}

// ImportRequest carries both exports and the parameters of the week.
type ImportRequest struct {
	Ads         Source
	Fulfillment Source
	Week        model.Week
	Fees        model.FeeSchedule
	Notes       string
	Policy      reconcile.Policy
	TopN        int
	// Replace deletes an existing report for the same week before saving.
	Replace bool
}

// ImportResult is returned by a successful Import.
type ImportResult struct {
	Report               *model.WeeklyReport    `json:"report"`
	TopProducts          []model.TopProduct     `json:"top_products"`
	AdsStats             *ingest.ParseStats     `json:"ads_stats"`
	FulfillmentStats     *ingest.ParseStats     `json:"fulfillment_stats"`
	Warnings             []ingest.Warning       `json:"warnings,omitempty"`
	UnmatchedAds         []model.AdRow          `json:"unmatched_ads"`
	UnmatchedFulfillment []model.FulfillmentRow `json:"unmatched_fulfillment"`
	Replaced             string                 `json:"replaced,omitempty"`
}

// Comparison holds two reports and the per-metric change between them.
type Comparison struct {
	Current  *model.WeeklyReport `json:"current"`
	Previous *model.WeeklyReport `json:"previous"`
	Deltas   map[string]float64  `json:"deltas"`
}

// Service wires the Builder to a Store.
type Service struct {
	store   store.Store
	builder *Builder
}

// NewService creates a Service.
func NewService(s store.Store, b *Builder) *Service {
	if b == nil {
		b = NewBuilder(DefaultTopN)
	}
	return &Service{store: s, builder: b}
}

// Import parses both exports, builds the report and saves it with its top
// products. Every call leaves one import history entry per source, failed or
// not.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	log := zap.L().With(zap.String("week", req.Week.Label()))

	adsIn := &countingReader{r: req.Ads.Body}
	fulIn := &countingReader{r: req.Fulfillment.Body}
	adsRec := &model.ImportRecord{FileName: req.Ads.Name, Source: model.ImportSourceAds}
	fulRec := &model.ImportRecord{FileName: req.Fulfillment.Name, Source: model.ImportSourceFulfillment}

	fail := func(err error) (*ImportResult, error) {
		adsRec.FileSize, fulRec.FileSize = adsIn.n, fulIn.n
		for _, rec := range []*model.ImportRecord{adsRec, fulRec} {
			rec.Status = model.ImportStatusFailed
			rec.ReportID = ""
			rec.Error = err.Error()
			s.recordImport(ctx, rec)
		}
		log.Warn("report: import failed", zap.Error(err))
		return nil, err
	}

	ads, adsStats, err := ingest.ParseAdsFile(req.Ads.Name, adsIn)
	if err != nil {
		return fail(eris.Wrapf(&InputError{Err: err}, "report: parse ads %s", req.Ads.Name))
	}
	adsRec.RecordsImported, adsRec.RecordsFailed = len(ads), adsStats.Failed

	ful, fulStats, err := ingest.ParseFulfillmentFile(req.Fulfillment.Name, fulIn)
	if err != nil {
		return fail(eris.Wrapf(&InputError{Err: err}, "report: parse fulfillment %s", req.Fulfillment.Name))
	}
	fulRec.RecordsImported, fulRec.RecordsFailed = len(ful), fulStats.Failed

	replaced := ""
	existing, err := s.store.GetReportByWeek(ctx, req.Week.Year, req.Week.Number)
	switch {
	case err == nil && !req.Replace:
		return fail(eris.Wrapf(ErrWeekExists, "report: %s exists as %s", req.Week.Label(), existing.ID))
	case err == nil:
		replaced = existing.ID
	case !errors.Is(err, store.ErrNotFound):
		return fail(eris.Wrap(err, "report: look up week"))
	}

	res, err := s.builder.Build(ctx, BuildRequest{
		Ads:         ads,
		Fulfillment: ful,
		Week:        req.Week,
		Fees:        req.Fees,
		Notes:       req.Notes,
		Policy:      req.Policy,
		TopN:        req.TopN,
	})
	if err != nil {
		return fail(err)
	}

	if replaced != "" {
		if err := s.store.ReplaceReport(ctx, replaced, res.Report, res.TopProducts); err != nil {
			return fail(eris.Wrapf(err, "report: replace %s", replaced))
		}
		log.Info("report: replaced existing report", zap.String("id", replaced))
	} else if err := s.store.CreateReport(ctx, res.Report, res.TopProducts); err != nil {
		return fail(eris.Wrap(err, "report: save"))
	}

	adsRec.FileSize, fulRec.FileSize = adsIn.n, fulIn.n
	for _, rec := range []*model.ImportRecord{adsRec, fulRec} {
		rec.ReportID = res.Report.ID
		rec.Status = model.ImportStatusSuccess
		s.recordImport(ctx, rec)
	}

	warnings := append(ingest.ValidateAds(ads), ingest.ValidateFulfillment(ful)...)
	log.Info("report: imported",
		zap.String("id", res.Report.ID),
		zap.Int("ads_rows", len(ads)),
		zap.Int("fulfillment_rows", len(ful)),
		zap.Int("warnings", len(warnings)),
	)

	return &ImportResult{
		Report:               res.Report,
		TopProducts:          res.TopProducts,
		AdsStats:             adsStats,
		FulfillmentStats:     fulStats,
		Warnings:             warnings,
		UnmatchedAds:         res.Reconciliation.UnmatchedAds,
		UnmatchedFulfillment: res.Reconciliation.UnmatchedFulfillment,
		Replaced:             replaced,
	}, nil
}

// recordImport never fails the import; a lost history row is only logged.
func (s *Service) recordImport(ctx context.Context, rec *model.ImportRecord) {
	if err := s.store.RecordImport(ctx, rec); err != nil {
		zap.L().Error("report: record import history",
			zap.String("file", rec.FileName),
			zap.Error(err),
		)
	}
}

// Compare loads two reports and returns current minus previous for every
// metric. An empty prevID selects the report for the preceding ISO week.
func (s *Service) Compare(ctx context.Context, id, prevID string) (*Comparison, error) {
	cur, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "report: compare")
	}

	var prev *model.WeeklyReport
	if prevID != "" {
		prev, err = s.store.GetReport(ctx, prevID)
	} else {
		w := PreviousWeek(cur.Week)
		prev, err = s.store.GetReportByWeek(ctx, w.Year, w.Number)
	}
	if err != nil {
		return nil, eris.Wrap(err, "report: compare previous")
	}

	return &Comparison{
		Current:  cur,
		Previous: prev,
		Deltas:   metrics.CompareWeeks(cur.MetricMap(), prev.MetricMap()),
	}, nil
}

// Trend returns up to weeks reports, oldest first.
func (s *Service) Trend(ctx context.Context, weeks int) ([]model.WeeklyReport, error) {
	reports, err := s.store.ListTrend(ctx, weeks)
	if err != nil {
		return nil, eris.Wrap(err, "report: trend")
	}
	return reports, nil
}

// Detail is a report with its ranked products.
type Detail struct {
	Report      *model.WeeklyReport `json:"report"`
	TopProducts []model.TopProduct  `json:"top_products"`
}

// Get loads a report and its top products.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "report: get")
	}
	top, err := s.store.ListTopProducts(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "report: get top products")
	}
	return &Detail{Report: r, TopProducts: top}, nil
}

// PreviousWeek returns the ISO week before w. When w has no start date it is
// derived from the week number.
func PreviousWeek(w model.Week) model.Week {
	start := w.Start
	if start.IsZero() {
		start = model.NewWeek(w.Year, w.Number).Start
	}
	return model.ISOWeek(start.AddDate(0, 0, -7))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, io.EOF
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
