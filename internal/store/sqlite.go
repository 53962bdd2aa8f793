package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ta-tracker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suitable for local
// single-machine runs; writes are serialized by SQLite itself.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	cik         TEXT NOT NULL,
	period      TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	confidence  REAL NOT NULL,
	method      TEXT NOT NULL,
	filings     TEXT NOT NULL,
	resolved_at DATETIME NOT NULL,
	PRIMARY KEY (cik, period)
);

CREATE TABLE IF NOT EXISTS review_items (
	cik              TEXT NOT NULL,
	period           TEXT NOT NULL,
	id               TEXT NOT NULL,
	groups           TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	resolved_agent   TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	PRIMARY KEY (cik, period)
);

CREATE TABLE IF NOT EXISTS change_log (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT NOT NULL,
	cik             TEXT NOT NULL,
	period          TEXT NOT NULL,
	agent_id        TEXT NOT NULL,
	prev_agent_id   TEXT,
	confidence      REAL NOT NULL,
	prev_confidence REAL,
	note            TEXT,
	at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	note         TEXT,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	summary      TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_agent ON snapshots(agent_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_period ON snapshots(period);
CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status);
CREATE INDEX IF NOT EXISTS idx_change_log_cik ON change_log(cik, period);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, cik, period string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cik, period, agent_id, confidence, method, filings, resolved_at
		 FROM snapshots WHERE cik = ? AND period = ?`,
		cik, period,
	)

	var snap model.Snapshot
	var filingsJSON string
	err := row.Scan(&snap.CIK, &snap.Period, &snap.AgentID, &snap.Confidence, &snap.Method, &filingsJSON, &snap.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get snapshot")
	}
	if err := json.Unmarshal([]byte(filingsJSON), &snap.Filings); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal filings")
	}
	return &snap, nil
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap model.Snapshot) error {
	filingsJSON, err := json.Marshal(snap.Filings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal filings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (cik, period, agent_id, confidence, method, filings, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cik, period) DO UPDATE SET
		   agent_id = excluded.agent_id,
		   confidence = excluded.confidence,
		   method = excluded.method,
		   filings = excluded.filings,
		   resolved_at = excluded.resolved_at`,
		snap.CIK, snap.Period, snap.AgentID, snap.Confidence, string(snap.Method), string(filingsJSON), snap.ResolvedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert snapshot %s/%s", snap.CIK, snap.Period)
}

func (s *SQLiteStore) UpsertSnapshots(ctx context.Context, snaps []model.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot tx")
	}
	defer tx.Rollback()

	for _, snap := range snaps {
		filingsJSON, err := json.Marshal(snap.Filings)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal filings")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (cik, period, agent_id, confidence, method, filings, resolved_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (cik, period) DO UPDATE SET
			   agent_id = excluded.agent_id,
			   confidence = excluded.confidence,
			   method = excluded.method,
			   filings = excluded.filings,
			   resolved_at = excluded.resolved_at`,
			snap.CIK, snap.Period, snap.AgentID, snap.Confidence, string(snap.Method), string(filingsJSON), snap.ResolvedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert snapshot %s/%s", snap.CIK, snap.Period)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit snapshots")
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.Snapshot, error) {
	query := `SELECT cik, period, agent_id, confidence, method, filings, resolved_at FROM snapshots WHERE 1=1`
	var args []any

	if filter.CIK != "" {
		query += ` AND cik = ?`
		args = append(args, filter.CIK)
	}
	if filter.Period != "" {
		query += ` AND period = ?`
		args = append(args, filter.Period)
	}
	query += ` ORDER BY cik, period`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var filingsJSON string
		if err := rows.Scan(&snap.CIK, &snap.Period, &snap.AgentID, &snap.Confidence, &snap.Method, &filingsJSON, &snap.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		if err := json.Unmarshal([]byte(filingsJSON), &snap.Filings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal filings")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

func (s *SQLiteStore) AgentHistory(ctx context.Context, cik string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, COUNT(*) FROM snapshots WHERE cik = ? GROUP BY agent_id`,
		cik,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: agent history")
	}
	defer rows.Close()

	history := make(map[string]int)
	for rows.Next() {
		var agentID string
		var n int
		if err := rows.Scan(&agentID, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent history")
		}
		history[agentID] = n
	}
	return history, eris.Wrap(rows.Err(), "sqlite: agent history iterate")
}

func (s *SQLiteStore) UpsertReviewItem(ctx context.Context, item model.ReviewItem) error {
	groupsJSON, err := json.Marshal(item.Groups)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal review groups")
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	// Re-enqueue keeps the original id and created_at but replaces the
	// presented evidence with the latest run's candidate set.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_items (cik, period, id, groups, status, resolved_agent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cik, period) DO UPDATE SET
		   groups = excluded.groups,
		   status = excluded.status,
		   resolved_agent = excluded.resolved_agent,
		   updated_at = excluded.updated_at`,
		item.CIK, item.Period, item.ID, string(groupsJSON), string(item.Status),
		nullString(item.ResolvedAgentID), item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert review item %s/%s", item.CIK, item.Period)
}

func (s *SQLiteStore) GetReviewItem(ctx context.Context, cik, period string) (*model.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cik, period, id, groups, status, resolved_agent, created_at, updated_at
		 FROM review_items WHERE cik = ? AND period = ?`,
		cik, period,
	)
	item, err := scanReviewItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, status model.ReviewStatus) ([]model.ReviewItem, error) {
	query := `SELECT cik, period, id, groups, status, resolved_agent, created_at, updated_at FROM review_items`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY cik, period`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review items")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list review items iterate")
}

func (s *SQLiteStore) MarkReviewResolved(ctx context.Context, cik, period, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_items SET status = ?, resolved_agent = ?, updated_at = ?
		 WHERE cik = ? AND period = ? AND status = ?`,
		string(model.ReviewResolved), agentID, time.Now().UTC(),
		cik, period, string(model.ReviewPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve review item %s/%s", cik, period)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "pending review item %s/%s", cik, period)
	}
	return nil
}

func (s *SQLiteStore) AppendChanges(ctx context.Context, entries []model.ChangeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin change log tx")
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO change_log (kind, cik, period, agent_id, prev_agent_id, confidence, prev_confidence, note, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(e.Kind), e.CIK, e.Period, e.AgentID, nullString(e.PrevAgentID),
			e.Confidence, e.PrevConfidence, nullString(e.Note), e.At.UTC(),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert change entry")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit change log")
}

func (s *SQLiteStore) ListChanges(ctx context.Context, limit int) ([]model.ChangeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, cik, period, agent_id, prev_agent_id, confidence, prev_confidence, note, at
		 FROM change_log ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changes")
	}
	defer rows.Close()

	var entries []model.ChangeEntry
	for rows.Next() {
		var e model.ChangeEntry
		var prevAgent, note sql.NullString
		var prevConf sql.NullFloat64
		if err := rows.Scan(&e.Kind, &e.CIK, &e.Period, &e.AgentID, &prevAgent, &e.Confidence, &prevConf, &note, &e.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change entry")
		}
		e.PrevAgentID = prevAgent.String
		e.PrevConfidence = prevConf.Float64
		e.Note = note.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list changes iterate")
}

func (s *SQLiteStore) StartRun(ctx context.Context, note string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, note, status, started_at) VALUES (?, ?, ?, ?)`,
		id, nullString(note), string(model.RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: start run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, summary = ? WHERE id = ?`,
		string(model.RunComplete), time.Now().UTC(), string(summaryJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note, status, started_at, completed_at, summary, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var entries []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var note, summaryJSON, errStr sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&e.ID, &note, &e.Status, &e.StartedAt, &completedAt, &summaryJSON, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		e.Note = note.String
		e.Error = errStr.String
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		if summaryJSON.Valid {
			e.Summary = &model.RunSummary{}
			if err := json.Unmarshal([]byte(summaryJSON.String), e.Summary); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal run summary")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
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

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReviewItem(row scannable) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var groupsJSON string
	var resolvedAgent sql.NullString

	err := row.Scan(&item.CIK, &item.Period, &item.ID, &groupsJSON, &item.Status, &resolvedAgent, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan review item")
	}
	if err := json.Unmarshal([]byte(groupsJSON), &item.Groups); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal review groups")
	}
	item.ResolvedAgentID = resolvedAgent.String
	return &item, nil
}
