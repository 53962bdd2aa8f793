package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// BulkUpsert loads rows through a transient staging table: COPY the rows into
// the staging table, then fold them into the target with INSERT ... ON
// CONFLICT, overwriting every non-key column from the incoming row. The
// staging table drops with the transaction. Returns the row count of the
// final insert.
func BulkUpsert(ctx context.Context, pool Pool, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, eris.Errorf("db: upsert %s: no columns", table)
	}
	if len(keys) == 0 {
		return 0, eris.Errorf("db: upsert %s: no conflict keys", table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin", table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "_stage_" + strings.ReplaceAll(table, ".", "_")
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), quoteTable(table),
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: copy", table)
	}

	tag, err := tx.Exec(ctx, upsertSQL(table, staging, columns, keys))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: fold staging rows", table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", table)
	}
	return tag.RowsAffected(), nil
}

// upsertSQL builds the statement folding the staging table into the target.
// When every column is part of the conflict key there is nothing to update,
// so duplicates are skipped instead.
func upsertSQL(table, staging string, columns, keys []string) string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var set []string
	for _, c := range columns {
		if keySet[c] {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		set = append(set, q+" = EXCLUDED."+q)
	}

	cols := quoteList(columns)
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s)",
		quoteTable(table), cols, cols, pgx.Identifier{staging}.Sanitize(), quoteList(keys),
	)
	if len(set) == 0 {
		return stmt + " DO NOTHING"
	}
	return stmt + " DO UPDATE SET " + strings.Join(set, ", ")
}

// quoteTable quotes a possibly schema-qualified table name like "ta.snapshots".
func quoteTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
