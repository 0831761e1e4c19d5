// Package notionsync publishes weekly reports to a Notion database, one page
// per week.
package notionsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
	"github.com/sells-group/gmv-tracker/pkg/notion"
)

// ErrNotConfigured is returned when no database ID is set.
var ErrNotConfigured = eris.New("notionsync: database id not configured")

// Config names the target database and its title property.
type Config struct {
	DatabaseID    string
	TitleProperty string
	Concurrency   int
}

// Syncer pushes reports to Notion and records every attempt.
type Syncer struct {
	client notion.Client
	store  store.Store
	cfg    Config
}

// New creates a Syncer. TitleProperty defaults to "Week".
func New(client notion.Client, s store.Store, cfg Config) *Syncer {
	if cfg.TitleProperty == "" {
		cfg.TitleProperty = "Week"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &Syncer{client: client, store: s, cfg: cfg}
}

// SyncReport creates or refreshes the page for a report's week and logs the
// outcome. A failed attempt is logged before the error is returned.
func (s *Syncer) SyncReport(ctx context.Context, reportID string) (*model.SyncLog, error) {
	if s.cfg.DatabaseID == "" {
		return nil, ErrNotConfigured
	}
	log := zap.L().With(zap.String("report_id", reportID))

	r, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "notionsync: load report")
	}

	entry := &model.SyncLog{ReportID: reportID, DatabaseID: s.cfg.DatabaseID, SyncType: model.SyncTypeCreate}
	pageID, err := s.push(ctx, r, entry)
	if err != nil {
		entry.Status = model.SyncStatusFailed
		entry.Error = err.Error()
		s.record(ctx, entry)
		log.Warn("notionsync: sync failed", zap.Error(err))
		return entry, err
	}

	entry.Status = model.SyncStatusSuccess
	entry.NotionPageID = pageID
	s.record(ctx, entry)
	log.Info("notionsync: synced",
		zap.String("page_id", pageID),
		zap.String("sync_type", string(entry.SyncType)),
	)
	return entry, nil
}

func (s *Syncer) push(ctx context.Context, r *model.WeeklyReport, entry *model.SyncLog) (string, error) {
	top, err := s.store.ListTopProducts(ctx, r.ID)
	if err != nil {
		return "", eris.Wrap(err, "notionsync: load top products")
	}
	recs, err := s.store.ListRecommendations(ctx, r.ID)
	if err != nil {
		return "", eris.Wrap(err, "notionsync: load recommendations")
	}

	props := Properties(s.cfg.TitleProperty, r)
	blocks := Blocks(r, top, recs)

	existing, err := notion.FindByTitle(ctx, s.client, s.cfg.DatabaseID, s.cfg.TitleProperty, r.Week.Label())
	if err != nil {
		return "", eris.Wrap(err, "notionsync: find page")
	}

	if existing != nil {
		entry.SyncType = model.SyncTypeUpdate
		pageID := string(existing.ID)
		if _, err := s.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", eris.Wrap(err, "notionsync: update page")
		}
		if err := s.replaceBody(ctx, pageID, blocks); err != nil {
			return "", eris.Wrap(err, "notionsync: replace page body")
		}
		return pageID, nil
	}

	first := blocks[:min(len(blocks), notion.MaxBlocksPerRequest)]
	page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.cfg.DatabaseID),
		},
		Properties: props,
		Children:   first,
	})
	if err != nil {
		return "", eris.Wrap(err, "notionsync: create page")
	}
	pageID := string(page.ID)
	if rest := blocks[len(first):]; len(rest) > 0 {
		if err := s.client.AppendBlocks(ctx, pageID, rest); err != nil {
			return "", eris.Wrap(err, "notionsync: append page body")
		}
	}
	return pageID, nil
}

func (s *Syncer) replaceBody(ctx context.Context, pageID string, blocks []notionapi.Block) error {
	old, err := s.client.ListBlocks(ctx, pageID)
	if err != nil {
		return err
	}
	for _, b := range old {
		if err := s.client.DeleteBlock(ctx, string(b.GetID())); err != nil {
			return err
		}
	}
	return s.client.AppendBlocks(ctx, pageID, blocks)
}

func (s *Syncer) record(ctx context.Context, entry *model.SyncLog) {
	if err := s.store.RecordSync(ctx, entry); err != nil {
		zap.L().Error("notionsync: record sync log", zap.String("report_id", entry.ReportID), zap.Error(err))
	}
}

// Summary counts the outcome of SyncAll.
type Summary struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// SyncAll syncs every stored report, continuing past individual failures.
func (s *Syncer) SyncAll(ctx context.Context) (*Summary, error) {
	reports, err := s.store.ListReports(ctx, store.ReportFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "notionsync: list reports")
	}

	var mu sync.Mutex
	sum := &Summary{Errors: map[string]string{}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, r := range reports {
		g.Go(func() error {
			_, err := s.SyncReport(gctx, r.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed++
				sum.Errors[r.ID] = err.Error()
				if errors.Is(err, ErrNotConfigured) {
					return err
				}
				return nil
			}
			sum.Succeeded++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "notionsync: sync all")
	}
	return sum, nil
}

// Status is the last known sync state of a report.
type Status struct {
	Synced bool           `json:"synced"`
	Last   *model.SyncLog `json:"last,omitempty"`
}

// String renders the status for the CLI.
func (st Status) String() string {
	if !st.Synced {
		return "never synced"
	}
	s := fmt.Sprintf("%s %s at %s", st.Last.SyncType, st.Last.Status, st.Last.CreatedAt.Format("2006-01-02 15:04"))
	if st.Last.NotionPageID != "" {
		s += " (page " + st.Last.NotionPageID + ")"
	}
	if st.Last.Error != "" {
		s += ": " + st.Last.Error
	}
	return s
}

// Status returns the last sync attempt for a report.
func (s *Syncer) Status(ctx context.Context, reportID string) (*Status, error) {
	last, err := s.store.LatestSync(ctx, reportID)
	if errors.Is(err, store.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "notionsync: status")
	}
	return &Status{Synced: true, Last: last}, nil
}

// Properties maps a report onto the database columns.
func Properties(titleProperty string, r *model.WeeklyReport) notionapi.Properties {
	m := r.Metrics
	return notionapi.Properties{
		titleProperty:   notion.TitleProp(r.Week.Label()),
		"Dates":         notion.DateProp(r.Week.Start, r.Week.End),
		"GMV":           notion.NumberProp(r.GMV),
		"Orders":        notion.NumberProp(r.Orders),
		"Ad Spend":      notion.NumberProp(r.AdSpend),
		"ROAS":          notion.NumberProp(round(m.ROAS, 2)),
		"Real ROAS":     notion.NumberProp(round(m.RealROAS, 2)),
		"Net Profit":    notion.NumberProp(round(m.NetProfit, 2)),
		"Profit Margin": notion.NumberProp(round(m.ProfitMargin, 2)),
		"Summary":       notion.TextProp(report.Summary(r)),
	}
}

// Blocks renders the page body: summary, KPIs, top products and insights.
func Blocks(r *model.WeeklyReport, top []model.TopProduct, recs []model.Recommendation) []notionapi.Block {
	blocks := []notionapi.Block{
		notion.Heading2("Summary"),
		notion.Paragraph(report.Summary(r)),
		notion.Heading2("KPIs"),
	}
	for _, k := range report.KPIs(r) {
		blocks = append(blocks, notion.Bullet(k.Label+": "+k.Value))
	}

	blocks = append(blocks, notion.Heading2("Top Products"))
	if len(top) == 0 {
		blocks = append(blocks, notion.Paragraph("No matched products."))
	}
	for _, p := range top {
		blocks = append(blocks, notion.Bullet(fmt.Sprintf("%d. %s: GMV %s, ROAS %s, net profit %s",
			p.Rank, p.ProductName, metrics.FormatCurrency(p.GMV), metrics.FormatROAS(p.ROAS),
			metrics.FormatCurrency(p.NetProfit))))
	}

	if len(recs) > 0 {
		blocks = append(blocks, notion.Divider(), notion.Heading2("AI Insights"))
		for _, rec := range recs {
			blocks = append(blocks, notion.Paragraph(fmt.Sprintf("%s (%s)", rec.Title, rec.Provider)))
			blocks = append(blocks, notion.Paragraph(rec.Content))
		}
	}
	return blocks
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
