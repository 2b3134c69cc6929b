package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const schema = `CREATE TABLE IF NOT EXISTS capture_results (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	captured_at DATETIME(3) NOT NULL,
	raw_text LONGTEXT NOT NULL,
	translated_text LONGTEXT NOT NULL,
	INDEX idx_captured_at (captured_at)
) CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci`

// Record is an archived frame.
type Record struct {
	ID             int64
	CapturedAt     time.Time
	RawText        string
	TranslatedText string
}

// MySQLArchive stores processed frames in MySQL.
type MySQLArchive struct {
	db *sql.DB
}

// OpenArchive connects to dsn and creates the capture_results table if
// needed. Timestamps are always parsed into time.Time.
func OpenArchive(ctx context.Context, dsn string) (*MySQLArchive, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to archive: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create capture_results: %w", err)
	}
	return &MySQLArchive{db: db}, nil
}

// Close closes the connection pool.
func (a *MySQLArchive) Close() error {
	return a.db.Close()
}

// Save inserts r, one line per row of text.
func (a *MySQLArchive) Save(ctx context.Context, r Result) error {
	_, err := a.insert(ctx, r)
	return err
}

func (a *MySQLArchive) insert(ctx context.Context, r Result) (int64, error) {
	res, err := a.db.ExecContext(ctx,
		"INSERT INTO capture_results (captured_at, raw_text, translated_text) VALUES (?, ?, ?)",
		r.CapturedAt.UTC(), strings.Join(r.Lines, "\n"), strings.Join(r.Translations, "\n"))
	if err != nil {
		return 0, fmt.Errorf("insert capture result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (a *MySQLArchive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx,
		"SELECT id, captured_at, raw_text, translated_text FROM capture_results ORDER BY captured_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query capture results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CapturedAt, &rec.RawText, &rec.TranslatedText); err != nil {
			return nil, fmt.Errorf("scan capture result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capture results: %w", err)
	}
	return records, nil
}
