package store

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps the pragmas in force for every statement.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS weekly_reports (
	id                    TEXT PRIMARY KEY,
	week_number           INTEGER NOT NULL,
	year                  INTEGER NOT NULL,
	start_date            DATETIME NOT NULL,
	end_date              DATETIME NOT NULL,
	gmv                   REAL NOT NULL DEFAULT 0,
	orders                REAL NOT NULL DEFAULT 0,
	units                 REAL NOT NULL DEFAULT 0,
	ad_spend              REAL NOT NULL DEFAULT 0,
	impressions           REAL NOT NULL DEFAULT 0,
	clicks                REAL NOT NULL DEFAULT 0,
	affiliate_commission  REAL NOT NULL DEFAULT 0,
	product_cost          REAL NOT NULL DEFAULT 0,
	aov                   REAL NOT NULL DEFAULT 0,
	total_fees            REAL NOT NULL DEFAULT 0,
	vat                   REAL NOT NULL DEFAULT 0,
	net_profit            REAL NOT NULL DEFAULT 0,
	roas                  REAL NOT NULL DEFAULT 0,
	real_roas             REAL NOT NULL DEFAULT 0,
	break_even_roas       REAL NOT NULL DEFAULT 0,
	target_roas           REAL NOT NULL DEFAULT 0,
	ctr                   REAL NOT NULL DEFAULT 0,
	cpc                   REAL NOT NULL DEFAULT 0,
	cpa                   REAL NOT NULL DEFAULT 0,
	conversion_rate       REAL NOT NULL DEFAULT 0,
	profit_margin         REAL NOT NULL DEFAULT 0,
	commission_rate       REAL NOT NULL DEFAULT 0,
	transaction_rate      REAL NOT NULL DEFAULT 0,
	payment_rate          REAL NOT NULL DEFAULT 0,
	target_margin         REAL NOT NULL DEFAULT 0,
	matched_count         INTEGER NOT NULL DEFAULT 0,
	unmatched_ads         INTEGER NOT NULL DEFAULT 0,
	unmatched_fulfillment INTEGER NOT NULL DEFAULT 0,
	products_advertised   INTEGER NOT NULL DEFAULT 0,
	notes                 TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS top_products (
	report_id     TEXT NOT NULL REFERENCES weekly_reports(id) ON DELETE CASCADE,
	rank          INTEGER NOT NULL,
	product_name  TEXT NOT NULL,
	product_sku   TEXT NOT NULL DEFAULT '',
	gmv           REAL NOT NULL DEFAULT 0,
	orders        REAL NOT NULL DEFAULT 0,
	units         REAL NOT NULL DEFAULT 0,
	ad_spend      REAL NOT NULL DEFAULT 0,
	roas          REAL NOT NULL DEFAULT 0,
	net_profit    REAL NOT NULL DEFAULT 0,
	profit_margin REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (report_id, rank)
);

CREATE TABLE IF NOT EXISTS import_history (
	id               TEXT PRIMARY KEY,
	report_id        TEXT REFERENCES weekly_reports(id) ON DELETE SET NULL,
	file_name        TEXT NOT NULL,
	source           TEXT NOT NULL,
	file_size        INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	records_imported INTEGER NOT NULL DEFAULT 0,
	records_failed   INTEGER NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS notion_sync_log (
	id             TEXT PRIMARY KEY,
	report_id      TEXT NOT NULL REFERENCES weekly_reports(id) ON DELETE CASCADE,
	notion_page_id TEXT NOT NULL DEFAULT '',
	database_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	sync_type      TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ai_recommendations (
	id            TEXT PRIMARY KEY,
	report_id     TEXT NOT NULL REFERENCES weekly_reports(id) ON DELETE CASCADE,
	provider      TEXT NOT NULL,
	analysis_type TEXT NOT NULL,
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fee_schedules (
	name             TEXT PRIMARY KEY,
	commission_rate  REAL NOT NULL,
	transaction_rate REAL NOT NULL,
	payment_rate     REAL NOT NULL,
	target_margin    REAL NOT NULL,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_weekly_reports_week ON weekly_reports(year, week_number);
CREATE INDEX IF NOT EXISTS idx_weekly_reports_start ON weekly_reports(start_date);
CREATE INDEX IF NOT EXISTS idx_import_history_report ON import_history(report_id);
CREATE INDEX IF NOT EXISTS idx_notion_sync_log_report ON notion_sync_log(report_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ai_recommendations_report ON ai_recommendations(report_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.WeeklyReport, top []model.TopProduct) error {
	return s.ReplaceReport(ctx, "", r, top)
}

func (s *SQLiteStore) ReplaceReport(ctx context.Context, oldID string, r *model.WeeklyReport, top []model.TopProduct) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save report")
	}
	defer tx.Rollback() //nolint:errcheck

	if oldID != "" {
		res, err := tx.ExecContext(ctx, `DELETE FROM weekly_reports WHERE id = ?`, oldID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete replaced report %s", oldID)
		}
		if err := checkRowsAffected(res, "report", oldID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO weekly_reports (`+reportSelect+`) VALUES (`+placeholders(len(reportColumns), false)+`)`,
		reportArgs(r)...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert report")
	}

	for i := range top {
		top[i].ReportID = r.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO top_products (`+topProductColumns+`) VALUES (`+placeholders(11, false)+`)`,
			topProductArgs(&top[i])...,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert top product rank %d", top[i].Rank)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save report")
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.WeeklyReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportSelect+` FROM weekly_reports WHERE id = ?`, id)
	return scanReport(row, id)
}

func (s *SQLiteStore) GetReportByWeek(ctx context.Context, year, week int) (*model.WeeklyReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportSelect+` FROM weekly_reports WHERE year = ? AND week_number = ?
		 ORDER BY created_at DESC LIMIT 1`, year, week)
	return scanReport(row, model.Week{Year: year, Number: week}.Label())
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.WeeklyReport, error) {
	query := `SELECT ` + reportSelect + ` FROM weekly_reports WHERE 1=1`
	var args []any
	if filter.Year > 0 {
		query += ` AND year = ?`
		args = append(args, filter.Year)
	}
	query += ` ORDER BY year DESC, week_number DESC LIMIT ?`
	args = append(args, filter.limit())

	return s.queryReports(ctx, "list reports", query, args...)
}

func (s *SQLiteStore) ListTrend(ctx context.Context, n int) ([]model.WeeklyReport, error) {
	if n <= 0 {
		n = 8
	}
	reports, err := s.queryReports(ctx, "list trend",
		`SELECT `+reportSelect+` FROM weekly_reports ORDER BY start_date DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(reports)
	return reports, nil
}

func (s *SQLiteStore) queryReports(ctx context.Context, op, query string, args ...any) ([]model.WeeklyReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close() //nolint:errcheck

	reports := []model.WeeklyReport{}
	for rows.Next() {
		var r model.WeeklyReport
		if err := rows.Scan(reportDest(&r)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) UpdateReportNotes(ctx context.Context, id, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE weekly_reports SET notes = ?, updated_at = ? WHERE id = ?`,
		notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update notes %s", id)
	}
	return checkRowsAffected(res, "report", id)
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM weekly_reports WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete report %s", id)
	}
	return checkRowsAffected(res, "report", id)
}

func (s *SQLiteStore) ListTopProducts(ctx context.Context, reportID string) ([]model.TopProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topProductColumns+` FROM top_products WHERE report_id = ? ORDER BY rank`, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list top products")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.TopProduct{}
	for rows.Next() {
		var p model.TopProduct
		if err := rows.Scan(topProductDest(&p)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan top product")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list top products iterate")
}

func (s *SQLiteStore) RecordImport(ctx context.Context, rec *model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_history (id, report_id, file_name, source, file_size, status, records_imported, records_failed, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nullString(rec.ReportID), rec.FileName, string(rec.Source), rec.FileSize, string(rec.Status),
		rec.RecordsImported, rec.RecordsFailed, rec.Error, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record import")
}

func (s *SQLiteStore) ListImports(ctx context.Context, reportID string) ([]model.ImportRecord, error) {
	query := `SELECT id, report_id, file_name, source, file_size, status, records_imported, records_failed, error, created_at
		FROM import_history`
	var args []any
	if reportID != "" {
		query += ` WHERE report_id = ?`
		args = append(args, reportID)
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list imports")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.ImportRecord{}
	for rows.Next() {
		var rec model.ImportRecord
		var reportNull sql.NullString
		if err := rows.Scan(&rec.ID, &reportNull, &rec.FileName, &rec.Source, &rec.FileSize, &rec.Status,
			&rec.RecordsImported, &rec.RecordsFailed, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import")
		}
		rec.ReportID = reportNull.String
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list imports iterate")
}

func (s *SQLiteStore) RecordSync(ctx context.Context, l *model.SyncLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notion_sync_log (id, report_id, notion_page_id, database_id, status, sync_type, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ReportID, l.NotionPageID, l.DatabaseID, string(l.Status), string(l.SyncType), l.Error, l.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record sync")
}

func (s *SQLiteStore) LatestSync(ctx context.Context, reportID string) (*model.SyncLog, error) {
	var l model.SyncLog
	err := s.db.QueryRowContext(ctx,
		`SELECT id, report_id, notion_page_id, database_id, status, sync_type, error, created_at
		 FROM notion_sync_log WHERE report_id = ? ORDER BY created_at DESC LIMIT 1`, reportID,
	).Scan(&l.ID, &l.ReportID, &l.NotionPageID, &l.DatabaseID, &l.Status, &l.SyncType, &l.Error, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sync log for report %s", reportID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest sync")
	}
	return &l, nil
}

func (s *SQLiteStore) SaveRecommendations(ctx context.Context, recs []model.Recommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save recommendations")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.CreatedAt = now
		var meta any
		if len(r.Metadata) > 0 {
			meta = string(r.Metadata)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ai_recommendations (id, report_id, provider, analysis_type, title, content, priority, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.ReportID, r.Provider, string(r.AnalysisType), r.Title, r.Content, r.Priority, meta, r.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert recommendation")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit recommendations")
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, reportID string) ([]model.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_id, provider, analysis_type, title, content, priority, metadata, created_at
		 FROM ai_recommendations WHERE report_id = ? ORDER BY priority, created_at`, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recommendations")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Recommendation{}
	for rows.Next() {
		var r model.Recommendation
		var meta sql.NullString
		if err := rows.Scan(&r.ID, &r.ReportID, &r.Provider, &r.AnalysisType, &r.Title, &r.Content,
			&r.Priority, &meta, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recommendation")
		}
		if meta.Valid {
			r.Metadata = []byte(meta.String)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list recommendations iterate")
}

func (s *SQLiteStore) DeleteRecommendations(ctx context.Context, reportID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_recommendations WHERE report_id = ?`, reportID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete recommendations")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveFeeSchedule(ctx context.Context, name string, f model.FeeSchedule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fee_schedules (name, commission_rate, transaction_rate, payment_rate, target_margin, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			commission_rate = excluded.commission_rate,
			transaction_rate = excluded.transaction_rate,
			payment_rate = excluded.payment_rate,
			target_margin = excluded.target_margin,
			updated_at = excluded.updated_at`,
		name, f.CommissionRate, f.TransactionRate, f.PaymentRate, f.TargetMargin, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save fee schedule %s", name)
}

func (s *SQLiteStore) GetFeeSchedule(ctx context.Context, name string) (*model.FeeSchedule, error) {
	var f model.FeeSchedule
	err := s.db.QueryRowContext(ctx,
		`SELECT commission_rate, transaction_rate, payment_rate, target_margin FROM fee_schedules WHERE name = ?`, name,
	).Scan(&f.CommissionRate, &f.TransactionRate, &f.PaymentRate, &f.TargetMargin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "fee schedule %s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get fee schedule")
	}
	return &f, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable, ref string) (*model.WeeklyReport, error) {
	var r model.WeeklyReport
	err := row.Scan(reportDest(&r)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", ref)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
