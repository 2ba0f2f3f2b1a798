package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/aristath/buildscope/internal/records"
)

// Schema versions this reader understands.
//
// Version 1 stores inputs and outputs as comma-separated columns on task_runs.
// Version 2 moves them to a task_resources table keyed by task id and kind.
// Columns and resource kinds added by later engines are ignored.
const (
	MinSchemaVersion = 1
	MaxSchemaVersion = 2
)

const runColumns = `seq, id, name, start_ns, end_ns, status`

type queries struct {
	listRuns   string
	runByID    string
	runsByName string
	deps       string
	resources  string // empty when resources live on task_runs
}

func queriesFor(version int) queries {
	cols := runColumns + `, inputs, outputs`
	resources := ""
	if version >= 2 {
		cols = runColumns + `, NULL, NULL`
		resources = `SELECT kind, resource_key FROM task_resources WHERE task_id = ? ORDER BY kind, resource_key`
	}
	return queries{
		listRuns:   `SELECT ` + cols + ` FROM task_runs ORDER BY seq`,
		runByID:    `SELECT ` + cols + ` FROM task_runs WHERE id = ?`,
		runsByName: `SELECT ` + cols + ` FROM task_runs WHERE name = ? ORDER BY seq`,
		deps:       `SELECT depends_on_id FROM task_dependencies WHERE task_id = ? ORDER BY depends_on_id`,
		resources:  resources,
	}
}

// readInfo loads the schema version and build id from the info table.
// A database without an info table is reported as version 0.
func (s *SQLiteStore) readInfo(ctx context.Context) error {
	var tables int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'info'`).Scan(&tables)
	if err != nil {
		return records.IOFailure(s.path, -1, fmt.Errorf("failed to inspect schema: %w", err))
	}
	if tables == 0 {
		return records.UnsupportedVersion(s.path, 0, MinSchemaVersion, MaxSchemaVersion)
	}

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM info WHERE key = 'schema_version'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return records.UnsupportedVersion(s.path, 0, MinSchemaVersion, MaxSchemaVersion)
	}
	if err != nil {
		return records.IOFailure(s.path, -1, fmt.Errorf("failed to read schema version: %w", err))
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return records.Corruptf(s.path, -1, "", "schema_version %q is not an integer", raw)
	}
	if version < MinSchemaVersion || version > MaxSchemaVersion {
		return records.UnsupportedVersion(s.path, version, MinSchemaVersion, MaxSchemaVersion)
	}
	s.version = version

	err = s.db.QueryRowContext(ctx, `SELECT value FROM info WHERE key = 'build_id'`).Scan(&s.buildID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return records.IOFailure(s.path, -1, fmt.Errorf("failed to read build id: %w", err))
	}
	return nil
}
