package catalog

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteClient keeps a local mirror of the artifacts table so the pipeline
// can run without the remote catalog, and so tests exercise real SQL
// semantics including the unique (r2_bucket, r2_key) index.
type SQLiteClient struct {
	sql *sql.DB
}

func OpenSQLite(path string) (*SQLiteClient, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS artifacts (
  id           INTEGER PRIMARY KEY,
  artifact_id  TEXT NOT NULL,
  source_type  TEXT,
  source_url   TEXT,
  content_hash TEXT NOT NULL,
  fetched_at   TEXT,
  r2_bucket    TEXT NOT NULL,
  r2_key       TEXT NOT NULL,
  ticker       TEXT,
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(r2_bucket, r2_key)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_source_type ON artifacts(source_type);
CREATE INDEX IF NOT EXISTS idx_artifacts_bucket ON artifacts(r2_bucket);
    `); err != nil {
		return nil, err
	}
	return &SQLiteClient{sql: db}, nil
}

func (c *SQLiteClient) Close() error {
	if c == nil || c.sql == nil {
		return nil
	}
	return c.sql.Close()
}

func (c *SQLiteClient) Exists(ctx context.Context, bucket, key string) (bool, error) {
	var one int
	err := c.sql.QueryRowContext(ctx,
		`SELECT 1 FROM artifacts WHERE r2_bucket = ? AND r2_key = ? LIMIT 1`,
		bucket, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *SQLiteClient) Insert(ctx context.Context, a Artifact) (bool, error) {
	res, err := c.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO artifacts (
  artifact_id, source_type, source_url, content_hash, fetched_at, r2_bucket, r2_key, ticker
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ArtifactID, a.SourceType, a.SourceURL, a.ContentHash, a.FetchedAt, a.Bucket, a.Key, a.Ticker)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *SQLiteClient) UpgradeSourceType(ctx context.Context, bucket, key, sourceType string) (bool, error) {
	res, err := c.sql.ExecContext(ctx,
		`UPDATE artifacts SET source_type = ?
 WHERE r2_bucket = ? AND r2_key = ?
   AND (source_type = 'unknown' OR source_type IS NULL)`,
		sourceType, bucket, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SourceTypeStat is one row of the per-source-type breakdown.
type SourceTypeStat struct {
	SourceType string
	Count      int
}

// GetStats returns artifact counts grouped by source type.
func (c *SQLiteClient) GetStats(ctx context.Context) ([]SourceTypeStat, error) {
	rows, err := c.sql.QueryContext(ctx, `
		SELECT
			COALESCE(source_type, 'unknown'),
			COUNT(*)
		FROM
			artifacts
		GROUP BY
			COALESCE(source_type, 'unknown')
		ORDER BY
			COUNT(*) DESC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SourceTypeStat
	for rows.Next() {
		var s SourceTypeStat
		if err := rows.Scan(&s.SourceType, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// GetSourceType reads the stored classification for one object, mainly for
// tests and spot checks.
func (c *SQLiteClient) GetSourceType(ctx context.Context, bucket, key string) (string, error) {
	var st sql.NullString
	err := c.sql.QueryRowContext(ctx,
		`SELECT source_type FROM artifacts WHERE r2_bucket = ? AND r2_key = ?`,
		bucket, key).Scan(&st)
	if err != nil {
		return "", err
	}
	if !st.Valid {
		return "", nil
	}
	return st.String, nil
}

// Count returns the number of artifacts under a key prefix.
func (c *SQLiteClient) Count(ctx context.Context, bucket, prefix string) (int64, error) {
	var n int64
	err := c.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM artifacts WHERE r2_bucket = ? AND r2_key LIKE ?`,
		bucket, prefix+"%").Scan(&n)
	return n, err
}
