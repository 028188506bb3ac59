package diag

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samcharles93/autoflex/internal/flex"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs(
	id TEXT PRIMARY KEY,
	started REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS scales(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	fixed_point INTEGER NOT NULL,
	entry_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	scale REAL NOT NULL,
	max_abs REAL NOT NULL,
	step_index INTEGER NOT NULL,
	clipped INTEGER NOT NULL,
	overflows INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scales_run_step ON scales(run_id, step);
`

// SQLiteSink stores records in a SQLite database, one row per entry per
// snapshot.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

func OpenSQLite(path, runID string) (*SQLiteSink, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`INSERT OR IGNORE INTO runs(id, started) VALUES(?, ?)`,
		runID, float64(time.Now().UnixMilli())/1000.0)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("diag: register run: %w", err)
	}
	return &SQLiteSink{db: db, runID: runID}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("diag: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("diag: create schema: %w", err)
	}
	return db, nil
}

func (s *SQLiteSink) Write(ctx context.Context, snap flex.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scales(run_id, step, fixed_point, entry_id, name, scale, max_abs, step_index, clipped, overflows)
		VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records(s.runID, snap) {
		_, err := stmt.ExecContext(ctx, r.RunID, r.Step, r.FixedPoint, r.EntryID, r.Name,
			r.Scale, r.MaxAbs, r.StepIndex, r.Clipped, r.Overflows)
		if err != nil {
			return fmt.Errorf("diag: insert step %d entry %d: %w", r.Step, r.EntryID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

// ReadSQLite loads every stored record ordered by insertion.
func ReadSQLite(path string) ([]Record, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.Query(`SELECT run_id, step, fixed_point, entry_id, name, scale, max_abs, step_index, clipped, overflows
		FROM scales ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RunID, &r.Step, &r.FixedPoint, &r.EntryID, &r.Name,
			&r.Scale, &r.MaxAbs, &r.StepIndex, &r.Clipped, &r.Overflows); err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
