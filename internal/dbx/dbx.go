// Package dbx opens the SQLite-backed stores shared by the session, event,
// mail, and merge-queue packages. Every store in this module is a
// multi-process WAL-mode database per spec.md §5: writers serialize inside
// SQLite, readers never block under WAL, and a busy timeout absorbs
// contention between the orchestrator process and the agent subprocesses
// that invoke hook helpers concurrently.
//
// Grounded on kadirpekel-hector's v2/task/store.go SQL-store pattern
// (database/sql + a driver import for its side effect), narrowed to SQLite
// only since spec.md §5 names SQLite specifically rather than leaving the
// dialect open.
package dbx

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// BusyTimeoutMS is the writer busy-timeout mandated by spec.md §5.
const BusyTimeoutMS = 5000

// Open opens (creating parent directories as needed) a WAL-mode SQLite
// database at path with the busy timeout and synchronous settings spec.md
// §5 requires, and applies schema via the supplied migrate function.
func Open(path string, migrate func(*sql.DB) error) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_foreign_keys=on",
		url.PathEscape(path), BusyTimeoutMS,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	// A single SQLite connection per *sql.DB avoids "database is locked"
	// errors that surface when the pool hands out a second writer
	// connection while the first still holds the WAL lock.
	db.SetMaxOpenConns(1)

	if migrate != nil {
		if err := migrate(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrating %s: %w", path, err)
		}
	}

	return db, nil
}

// ColumnExists reports whether table has a column named name.
func ColumnExists(db *sql.DB, table, name string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			colName    string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if colName == name {
			return true, nil
		}
	}
	return false, rows.Err()
}

// TableExists reports whether the given table is present in the database.
func TableExists(db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
