// Package persistence reads build databases written by the build engine.
// Stores are opened read-only; nothing in this package writes to a build record.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/buildscope/internal/records"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by point lookups that match no record.
var ErrNotFound = errors.New("record not found")

// SQLiteStore is a read-only view of a SQLite build database.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	version int
	buildID string
	q       queries
}

var _ records.Source = (*SQLiteStore)(nil)

// Open opens the build database at dbPath read-only and checks its schema version.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// mode=ro would otherwise report a missing file lazily, on first query
	if _, err := os.Stat(dbPath); err != nil {
		return nil, records.IOFailure(dbPath, -1, err)
	}

	connStr, err := readOnlyDSN(dbPath)
	if err != nil {
		return nil, records.IOFailure(dbPath, -1, err)
	}
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, records.IOFailure(dbPath, -1, fmt.Errorf("failed to open database: %w", err))
	}

	// Allow 2 connections: one for the task cursor, one for per-task subqueries
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.readInfo(ctx); err != nil {
		db.Close()
		return nil, err
	}
	store.q = queriesFor(store.version)

	return store, nil
}

// readOnlyDSN builds a read-only SQLite URI for path. The path is made
// absolute and percent-escaped so "?" or "#" in a directory name cannot end
// the filename early. Pragmas go in the query so every pooled connection
// gets them.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	u := url.URL{Path: filepath.ToSlash(abs)}
	escaped := u.EscapedPath()
	if !strings.HasPrefix(escaped, "/") {
		escaped = "/" + escaped // Windows drive letters
	}
	return "file:" + escaped + "?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)", nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion is the schema version recorded by the build engine.
func (s *SQLiteStore) SchemaVersion() int { return s.version }

// BuildID is the build identifier recorded by the build engine, if any.
func (s *SQLiteStore) BuildID() string { return s.buildID }

// Describe identifies the store by path and build id.
func (s *SQLiteStore) Describe() string {
	if s.buildID == "" {
		return s.path
	}
	return fmt.Sprintf("%s (build %s)", s.path, s.buildID)
}

// Records streams all task runs in recording order.
func (s *SQLiteStore) Records(ctx context.Context) iter.Seq2[records.TaskRecord, error] {
	return func(yield func(records.TaskRecord, error) bool) {
		rows, err := s.db.QueryContext(ctx, s.q.listRuns)
		if err != nil {
			yield(records.TaskRecord{}, s.ioFailure(-1, fmt.Errorf("failed to query task runs: %w", err)))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := s.scanRun(rows)
			if err == nil {
				err = s.loadRelations(ctx, &rec)
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(records.TaskRecord{}, s.ioFailure(-1, fmt.Errorf("error iterating task runs: %w", err)))
		}
	}
}

// GetRecord fetches a single task run by id.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (records.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q.runByID, id)
	if err != nil {
		return records.TaskRecord{}, s.ioFailure(-1, fmt.Errorf("failed to query task run: %w", err))
	}
	recs, err := s.collect(ctx, rows)
	if err != nil {
		return records.TaskRecord{}, err
	}
	if len(recs) == 0 {
		return records.TaskRecord{}, fmt.Errorf("task run %q in %s: %w", id, s.Describe(), ErrNotFound)
	}
	return recs[0], nil
}

// FindByName fetches every task run recorded under the given task name.
func (s *SQLiteStore) FindByName(ctx context.Context, name string) ([]records.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q.runsByName, name)
	if err != nil {
		return nil, s.ioFailure(-1, fmt.Errorf("failed to query task runs: %w", err))
	}
	recs, err := s.collect(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("task name %q in %s: %w", name, s.Describe(), ErrNotFound)
	}
	return recs, nil
}

func (s *SQLiteStore) collect(ctx context.Context, rows *sql.Rows) ([]records.TaskRecord, error) {
	defer rows.Close()

	var out []records.TaskRecord
	for rows.Next() {
		rec, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		if err := s.loadRelations(ctx, &rec); err != nil {
			return nil, err
		}
		if rec, err = records.Normalize(s.Describe(), rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.ioFailure(-1, fmt.Errorf("error iterating task runs: %w", err))
	}
	return out, nil
}

func (s *SQLiteStore) ioFailure(offset int64, err error) error {
	return records.IOFailure(s.Describe(), offset, err)
}
