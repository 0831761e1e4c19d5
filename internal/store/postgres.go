package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/model"
)

// Pool is the subset of *pgxpool.Pool the Postgres store needs.
// pgxmock.PgxPoolIface satisfies it for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS weekly_reports (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	week_number           INTEGER NOT NULL,
	year                  INTEGER NOT NULL,
	start_date            TIMESTAMPTZ NOT NULL,
	end_date              TIMESTAMPTZ NOT NULL,
	gmv                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	orders                DOUBLE PRECISION NOT NULL DEFAULT 0,
	units                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	ad_spend              DOUBLE PRECISION NOT NULL DEFAULT 0,
	impressions           DOUBLE PRECISION NOT NULL DEFAULT 0,
	clicks                DOUBLE PRECISION NOT NULL DEFAULT 0,
	affiliate_commission  DOUBLE PRECISION NOT NULL DEFAULT 0,
	product_cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	aov                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_fees            DOUBLE PRECISION NOT NULL DEFAULT 0,
	vat                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	net_profit            DOUBLE PRECISION NOT NULL DEFAULT 0,
	roas                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	real_roas             DOUBLE PRECISION NOT NULL DEFAULT 0,
	break_even_roas       DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_roas           DOUBLE PRECISION NOT NULL DEFAULT 0,
	ctr                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpc                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpa                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	conversion_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_margin         DOUBLE PRECISION NOT NULL DEFAULT 0,
	commission_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
	transaction_rate      DOUBLE PRECISION NOT NULL DEFAULT 0,
	payment_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_margin         DOUBLE PRECISION NOT NULL DEFAULT 0,
	matched_count         INTEGER NOT NULL DEFAULT 0,
	unmatched_ads         INTEGER NOT NULL DEFAULT 0,
	unmatched_fulfillment INTEGER NOT NULL DEFAULT 0,
	products_advertised   INTEGER NOT NULL DEFAULT 0,
	notes                 TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS top_products (
	report_id     TEXT NOT NULL REFERENCES weekly_reports(id) ON DELETE CASCADE,
	rank          INTEGER NOT NULL,
	product_name  TEXT NOT NULL,
	product_sku   TEXT NOT NULL DEFAULT '',
	gmv           DOUBLE PRECISION NOT NULL DEFAULT 0,
	orders        DOUBLE PRECISION NOT NULL DEFAULT 0,
	units         DOUBLE PRECISION NOT NULL DEFAULT 0,
	ad_spend      DOUBLE PRECISION NOT NULL DEFAULT 0,
	roas          DOUBLE PRECISION NOT NULL DEFAULT 0,
	net_profit    DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_margin DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (report_id, rank)
);

CREATE TABLE IF NOT EXISTS import_history (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_id        TEXT REFERENCES weekly_reports(id) ON DELETE SET NULL,
	file_name        TEXT NOT NULL,
	source           TEXT NOT NULL,
	file_size        BIGINT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	records_imported INTEGER NOT NULL DEFAULT 0,
	records_failed   INTEGER NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notion_sync_log (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_id      TEXT NOT NULL REFERENCES weekly_reports(id) ON DELETE CASCADE,
	notion_page_id TEXT NOT NULL DEFAULT '',
	database_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	sync_type      TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_recommendations (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_id     TEXT NOT NULL REFERENCES weekly_reports(id) ON DELETE CASCADE,
	provider      TEXT NOT NULL,
	analysis_type TEXT NOT NULL,
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fee_schedules (
	name             TEXT PRIMARY KEY,
	commission_rate  DOUBLE PRECISION NOT NULL,
	transaction_rate DOUBLE PRECISION NOT NULL,
	payment_rate     DOUBLE PRECISION NOT NULL,
	target_margin    DOUBLE PRECISION NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_weekly_reports_week ON weekly_reports(year, week_number);
CREATE INDEX IF NOT EXISTS idx_weekly_reports_start ON weekly_reports(start_date DESC);
CREATE INDEX IF NOT EXISTS idx_import_history_report ON import_history(report_id);
CREATE INDEX IF NOT EXISTS idx_notion_sync_log_report ON notion_sync_log(report_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ai_recommendations_report ON ai_recommendations(report_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, r *model.WeeklyReport, top []model.TopProduct) error {
	return s.ReplaceReport(ctx, "", r, top)
}

func (s *PostgresStore) ReplaceReport(ctx context.Context, oldID string, r *model.WeeklyReport, top []model.TopProduct) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save report")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if oldID != "" {
		tag, err := tx.Exec(ctx, `DELETE FROM weekly_reports WHERE id = $1`, oldID)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete replaced report %s", oldID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "report %s", oldID)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO weekly_reports (`+reportSelect+`) VALUES (`+placeholders(len(reportColumns), true)+`)`,
		reportArgs(r)...,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert report")
	}

	for i := range top {
		top[i].ReportID = r.ID
		_, err := tx.Exec(ctx,
			`INSERT INTO top_products (`+topProductColumns+`) VALUES (`+placeholders(11, true)+`)`,
			topProductArgs(&top[i])...,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert top product rank %d", top[i].Rank)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save report")
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.WeeklyReport, error) {
	var r model.WeeklyReport
	err := s.pool.QueryRow(ctx,
		`SELECT `+reportSelect+` FROM weekly_reports WHERE id = $1`, id,
	).Scan(reportDest(&r)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}
	return &r, nil
}

func (s *PostgresStore) GetReportByWeek(ctx context.Context, year, week int) (*model.WeeklyReport, error) {
	var r model.WeeklyReport
	err := s.pool.QueryRow(ctx,
		`SELECT `+reportSelect+` FROM weekly_reports WHERE year = $1 AND week_number = $2
		 ORDER BY created_at DESC LIMIT 1`, year, week,
	).Scan(reportDest(&r)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %d-W%02d", year, week)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get report by week")
	}
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.WeeklyReport, error) {
	query := `SELECT ` + reportSelect + ` FROM weekly_reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Year > 0 {
		query += fmt.Sprintf(` AND year = $%d`, argIdx)
		args = append(args, filter.Year)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY year DESC, week_number DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())

	return s.queryReports(ctx, "list reports", query, args...)
}

func (s *PostgresStore) ListTrend(ctx context.Context, n int) ([]model.WeeklyReport, error) {
	if n <= 0 {
		n = 8
	}
	reports, err := s.queryReports(ctx, "list trend",
		`SELECT `+reportSelect+` FROM weekly_reports ORDER BY start_date DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(reports)
	return reports, nil
}

func (s *PostgresStore) queryReports(ctx context.Context, op, query string, args ...any) ([]model.WeeklyReport, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	reports := []model.WeeklyReport{}
	for rows.Next() {
		var r model.WeeklyReport
		if err := rows.Scan(reportDest(&r)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) UpdateReportNotes(ctx context.Context, id, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE weekly_reports SET notes = $1, updated_at = $2 WHERE id = $3`,
		notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update notes %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "report %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteReport(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM weekly_reports WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete report %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "report %s", id)
	}
	return nil
}

func (s *PostgresStore) ListTopProducts(ctx context.Context, reportID string) ([]model.TopProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+topProductColumns+` FROM top_products WHERE report_id = $1 ORDER BY rank`, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list top products")
	}
	defer rows.Close()

	out := []model.TopProduct{}
	for rows.Next() {
		var p model.TopProduct
		if err := rows.Scan(topProductDest(&p)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan top product")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list top products iterate")
}

func (s *PostgresStore) RecordImport(ctx context.Context, rec *model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	var reportID *string
	if rec.ReportID != "" {
		reportID = &rec.ReportID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_history (id, report_id, file_name, source, file_size, status, records_imported, records_failed, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, reportID, rec.FileName, string(rec.Source), rec.FileSize, string(rec.Status),
		rec.RecordsImported, rec.RecordsFailed, rec.Error, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record import")
}

func (s *PostgresStore) ListImports(ctx context.Context, reportID string) ([]model.ImportRecord, error) {
	query := `SELECT id, report_id, file_name, source, file_size, status, records_imported, records_failed, error, created_at
		FROM import_history`
	var args []any
	if reportID != "" {
		query += ` WHERE report_id = $1`
		args = append(args, reportID)
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list imports")
	}
	defer rows.Close()

	out := []model.ImportRecord{}
	for rows.Next() {
		var rec model.ImportRecord
		var reportNull *string
		if err := rows.Scan(&rec.ID, &reportNull, &rec.FileName, &rec.Source, &rec.FileSize, &rec.Status,
			&rec.RecordsImported, &rec.RecordsFailed, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import")
		}
		if reportNull != nil {
			rec.ReportID = *reportNull
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list imports iterate")
}

func (s *PostgresStore) RecordSync(ctx context.Context, l *model.SyncLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO notion_sync_log (id, report_id, notion_page_id, database_id, status, sync_type, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.ReportID, l.NotionPageID, l.DatabaseID, string(l.Status), string(l.SyncType), l.Error, l.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record sync")
}

func (s *PostgresStore) LatestSync(ctx context.Context, reportID string) (*model.SyncLog, error) {
	var l model.SyncLog
	err := s.pool.QueryRow(ctx,
		`SELECT id, report_id, notion_page_id, database_id, status, sync_type, error, created_at
		 FROM notion_sync_log WHERE report_id = $1 ORDER BY created_at DESC LIMIT 1`, reportID,
	).Scan(&l.ID, &l.ReportID, &l.NotionPageID, &l.DatabaseID, &l.Status, &l.SyncType, &l.Error, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sync log for report %s", reportID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest sync")
	}
	return &l, nil
}

func (s *PostgresStore) SaveRecommendations(ctx context.Context, recs []model.Recommendation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save recommendations")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.CreatedAt = now
		var meta []byte
		if len(r.Metadata) > 0 {
			meta = r.Metadata
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO ai_recommendations (id, report_id, provider, analysis_type, title, content, priority, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.ReportID, r.Provider, string(r.AnalysisType), r.Title, r.Content, r.Priority, meta, r.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert recommendation")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit recommendations")
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, reportID string) ([]model.Recommendation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, report_id, provider, analysis_type, title, content, priority, metadata, created_at
		 FROM ai_recommendations WHERE report_id = $1 ORDER BY priority, created_at`, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recommendations")
	}
	defer rows.Close()

	out := []model.Recommendation{}
	for rows.Next() {
		var r model.Recommendation
		var meta *[]byte
		if err := rows.Scan(&r.ID, &r.ReportID, &r.Provider, &r.AnalysisType, &r.Title, &r.Content,
			&r.Priority, &meta, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recommendation")
		}
		if meta != nil {
			r.Metadata = *meta
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list recommendations iterate")
}

func (s *PostgresStore) DeleteRecommendations(ctx context.Context, reportID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_recommendations WHERE report_id = $1`, reportID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete recommendations")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveFeeSchedule(ctx context.Context, name string, f model.FeeSchedule) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fee_schedules (name, commission_rate, transaction_rate, payment_rate, target_margin, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE SET
			commission_rate = EXCLUDED.commission_rate,
			transaction_rate = EXCLUDED.transaction_rate,
			payment_rate = EXCLUDED.payment_rate,
			target_margin = EXCLUDED.target_margin,
			updated_at = EXCLUDED.updated_at`,
		name, f.CommissionRate, f.TransactionRate, f.PaymentRate, f.TargetMargin, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save fee schedule %s", name)
}

func (s *PostgresStore) GetFeeSchedule(ctx context.Context, name string) (*model.FeeSchedule, error) {
	var f model.FeeSchedule
	err := s.pool.QueryRow(ctx,
		`SELECT commission_rate, transaction_rate, payment_rate, target_margin FROM fee_schedules WHERE name = $1`, name,
	).Scan(&f.CommissionRate, &f.TransactionRate, &f.PaymentRate, &f.TargetMargin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "fee schedule %s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get fee schedule")
	}
	return &f, nil
}
