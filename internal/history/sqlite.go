package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS correlation_history (
	position INTEGER PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	timestamp TEXT NOT NULL,
	factor_version TEXT NOT NULL,
	factor_names_json TEXT NOT NULL,
	matrix_json TEXT NOT NULL,
	missing_json TEXT NOT NULL
);`

// SQLiteBackend stores the history in a SQLite database, one row per record.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, timestamp, factor_version, factor_names_json, matrix_json, missing_json
		FROM correlation_history ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var ts, names, matrix, missing string
		if err := rows.Scan(&r.ID, &ts, &r.Dataset, &names, &matrix, &missing); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(names), &r.Tables); err != nil {
			return nil, fmt.Errorf("decode names of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(matrix), &r.Matrix); err != nil {
			return nil, fmt.Errorf("decode matrix of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(missing), &r.Missing); err != nil {
			return nil, fmt.Errorf("decode missing of %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// SaveAll replaces every row inside one transaction.
func (b *SQLiteBackend) SaveAll(ctx context.Context, records []Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM correlation_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO correlation_history
			(position, id, timestamp, factor_version, factor_names_json, matrix_json, missing_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		names, err := json.Marshal(nonNil(r.Tables))
		if err != nil {
			return fmt.Errorf("encode names: %w", err)
		}
		matrix, err := json.Marshal(r.Matrix)
		if err != nil {
			return fmt.Errorf("encode matrix: %w", err)
		}
		missing, err := json.Marshal(nonNil(r.Missing))
		if err != nil {
			return fmt.Errorf("encode missing: %w", err)
		}
		ts := r.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, i, r.ID, ts, r.Dataset, string(names), string(matrix), string(missing)); err != nil {
			return fmt.Errorf("insert history %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
