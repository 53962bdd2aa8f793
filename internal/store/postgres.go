package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/db"
	"github.com/sells-group/ta-tracker/internal/model"
)

// PostgresStore implements Store using pgxpool. Used for shared deployments
// where several analysts read the same dataset.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2

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
CREATE SCHEMA IF NOT EXISTS ta;

CREATE TABLE IF NOT EXISTS ta.snapshots (
	cik         TEXT NOT NULL,
	period      TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	method      TEXT NOT NULL,
	filings     JSONB NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cik, period)
);

CREATE TABLE IF NOT EXISTS ta.review_items (
	cik            TEXT NOT NULL,
	period         TEXT NOT NULL,
	id             TEXT NOT NULL,
	groups         JSONB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	resolved_agent TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cik, period)
);

CREATE TABLE IF NOT EXISTS ta.change_log (
	seq             BIGSERIAL PRIMARY KEY,
	kind            TEXT NOT NULL,
	cik             TEXT NOT NULL,
	period          TEXT NOT NULL,
	agent_id        TEXT NOT NULL,
	prev_agent_id   TEXT,
	confidence      DOUBLE PRECISION NOT NULL,
	prev_confidence DOUBLE PRECISION,
	note            TEXT,
	at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ta.runs (
	id           TEXT PRIMARY KEY,
	note         TEXT,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	summary      JSONB,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_ta_snapshots_agent ON ta.snapshots(agent_id);
CREATE INDEX IF NOT EXISTS idx_ta_snapshots_period ON ta.snapshots(period);
CREATE INDEX IF NOT EXISTS idx_ta_review_status ON ta.review_items(status);
CREATE INDEX IF NOT EXISTS idx_ta_change_log_key ON ta.change_log(cik, period);
`

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

func (s *PostgresStore) GetSnapshot(ctx context.Context, cik, period string) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT cik, period, agent_id, confidence, method, filings, resolved_at
		 FROM ta.snapshots WHERE cik = $1 AND period = $2`,
		cik, period,
	)

	var snap model.Snapshot
	var filingsJSON []byte
	err := row.Scan(&snap.CIK, &snap.Period, &snap.AgentID, &snap.Confidence, &snap.Method, &filingsJSON, &snap.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get snapshot")
	}
	if err := json.Unmarshal(filingsJSON, &snap.Filings); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal filings")
	}
	return &snap, nil
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snap model.Snapshot) error {
	return s.UpsertSnapshots(ctx, []model.Snapshot{snap})
}

func (s *PostgresStore) UpsertSnapshots(ctx context.Context, snaps []model.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(snaps))
	for _, snap := range snaps {
		filingsJSON, err := json.Marshal(snap.Filings)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal filings")
		}
		rows = append(rows, []any{
			snap.CIK, snap.Period, snap.AgentID, snap.Confidence,
			string(snap.Method), filingsJSON, snap.ResolvedAt.UTC(),
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, "ta.snapshots",
		[]string{"cik", "period", "agent_id", "confidence", "method", "filings", "resolved_at"},
		[]string{"cik", "period"},
		rows)
	return eris.Wrap(err, "postgres: upsert snapshots")
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.Snapshot, error) {
	query := `SELECT cik, period, agent_id, confidence, method, filings, resolved_at FROM ta.snapshots WHERE 1=1`
	var args []any

	if filter.CIK != "" {
		args = append(args, filter.CIK)
		query += ` AND cik = $1`
	}
	if filter.Period != "" {
		args = append(args, filter.Period)
		query += placeholder(` AND period = $%d`, len(args))
	}
	query += ` ORDER BY cik, period`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += placeholder(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var filingsJSON []byte
		if err := rows.Scan(&snap.CIK, &snap.Period, &snap.AgentID, &snap.Confidence, &snap.Method, &filingsJSON, &snap.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		if err := json.Unmarshal(filingsJSON, &snap.Filings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal filings")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

func (s *PostgresStore) AgentHistory(ctx context.Context, cik string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, COUNT(*) FROM ta.snapshots WHERE cik = $1 GROUP BY agent_id`,
		cik,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: agent history")
	}
	defer rows.Close()

	history := make(map[string]int)
	for rows.Next() {
		var agentID string
		var n int64
		if err := rows.Scan(&agentID, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan agent history")
		}
		history[agentID] = int(n)
	}
	return history, eris.Wrap(rows.Err(), "postgres: agent history iterate")
}

func (s *PostgresStore) UpsertReviewItem(ctx context.Context, item model.ReviewItem) error {
	groupsJSON, err := json.Marshal(item.Groups)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal review groups")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ta.review_items (cik, period, id, groups, status, resolved_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (cik, period) DO UPDATE SET
		   groups = EXCLUDED.groups,
		   status = EXCLUDED.status,
		   resolved_agent = EXCLUDED.resolved_agent,
		   updated_at = EXCLUDED.updated_at`,
		item.CIK, item.Period, item.ID, groupsJSON, string(item.Status),
		textOrNil(item.ResolvedAgentID), item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert review item %s/%s", item.CIK, item.Period)
}

func (s *PostgresStore) GetReviewItem(ctx context.Context, cik, period string) (*model.ReviewItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT cik, period, id, groups, status, resolved_agent, created_at, updated_at
		 FROM ta.review_items WHERE cik = $1 AND period = $2`,
		cik, period,
	)

	item, err := scanPgReviewItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (s *PostgresStore) ListReviewItems(ctx context.Context, status model.ReviewStatus) ([]model.ReviewItem, error) {
	query := `SELECT cik, period, id, groups, status, resolved_agent, created_at, updated_at FROM ta.review_items`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY cik, period`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review items")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanPgReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list review items iterate")
}

func (s *PostgresStore) MarkReviewResolved(ctx context.Context, cik, period, agentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ta.review_items SET status = $1, resolved_agent = $2, updated_at = $3
		 WHERE cik = $4 AND period = $5 AND status = $6`,
		string(model.ReviewResolved), agentID, time.Now().UTC(),
		cik, period, string(model.ReviewPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve review item %s/%s", cik, period)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending review item %s/%s", cik, period)
	}
	return nil
}

func (s *PostgresStore) AppendChanges(ctx context.Context, entries []model.ChangeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{
			string(e.Kind), e.CIK, e.Period, e.AgentID, textOrNil(e.PrevAgentID),
			e.Confidence, e.PrevConfidence, textOrNil(e.Note), e.At.UTC(),
		})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"ta", "change_log"},
		[]string{"kind", "cik", "period", "agent_id", "prev_agent_id", "confidence", "prev_confidence", "note", "at"},
		pgx.CopyFromRows(rows),
	)
	return eris.Wrap(err, "postgres: append change log")
}

func (s *PostgresStore) ListChanges(ctx context.Context, limit int) ([]model.ChangeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT kind, cik, period, agent_id, COALESCE(prev_agent_id, ''), confidence,
		        COALESCE(prev_confidence, 0), COALESCE(note, ''), at
		 FROM ta.change_log ORDER BY seq DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changes")
	}
	defer rows.Close()

	var entries []model.ChangeEntry
	for rows.Next() {
		var e model.ChangeEntry
		if err := rows.Scan(&e.Kind, &e.CIK, &e.Period, &e.AgentID, &e.PrevAgentID, &e.Confidence, &e.PrevConfidence, &e.Note, &e.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list changes iterate")
}

func (s *PostgresStore) StartRun(ctx context.Context, note string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ta.runs (id, note, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, textOrNil(note), string(model.RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: start run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ta.runs SET status = $1, completed_at = $2, summary = $3 WHERE id = $4`,
		string(model.RunComplete), time.Now().UTC(), summaryJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ta.runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.RunFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(note, ''), status, started_at, completed_at, summary, COALESCE(error, '')
		 FROM ta.runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var entries []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var completedAt *time.Time
		var summaryJSON []byte
		if err := rows.Scan(&e.ID, &e.Note, &e.Status, &e.StartedAt, &completedAt, &summaryJSON, &e.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		e.CompletedAt = completedAt
		if len(summaryJSON) > 0 {
			e.Summary = &model.RunSummary{}
			if err := json.Unmarshal(summaryJSON, e.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run summary")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// helpers

func placeholder(format string, n int) string {
	return fmt.Sprintf(format, n)
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanPgReviewItem(row pgx.Row) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var groupsJSON []byte
	var resolvedAgent *string

	err := row.Scan(&item.CIK, &item.Period, &item.ID, &groupsJSON, &item.Status, &resolvedAgent, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan review item")
	}
	if err := json.Unmarshal(groupsJSON, &item.Groups); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal review groups")
	}
	if resolvedAgent != nil {
		item.ResolvedAgentID = *resolvedAgent
	}
	return &item, nil
}
