package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/buildscope/internal/records"
)

const (
	resourceInput  = "input"
	resourceOutput = "output"
)

// scanRun reads one task_runs row. Dependencies and (for version 2) resources
// are loaded separately by loadRelations.
func (s *SQLiteStore) scanRun(rows *sql.Rows) (records.TaskRecord, error) {
	var (
		rec             records.TaskRecord
		name            sql.NullString
		status          string
		startNS, endNS  int64
		inputs, outputs sql.NullString
	)
	if err := rows.Scan(&rec.Offset, &rec.ID, &name, &startNS, &endNS, &status, &inputs, &outputs); err != nil {
		return records.TaskRecord{}, &records.LoadError{
			Kind:   records.ErrCorrupt,
			Source: s.Describe(),
			Offset: -1,
			Msg:    "failed to scan task run",
			Err:    err,
		}
	}

	st, ok := records.ParseStatus(status)
	if !ok {
		return records.TaskRecord{}, records.Corruptf(s.Describe(), rec.Offset, rec.ID, "unknown status %q", status)
	}

	rec.Name = name.String
	rec.Start = time.Duration(startNS)
	rec.End = time.Duration(endNS)
	rec.Status = st
	rec.Inputs = splitList(inputs.String)
	rec.Outputs = splitList(outputs.String)
	return rec, nil
}

// loadRelations fills in dependency ids and, for version 2 stores, resources.
func (s *SQLiteStore) loadRelations(ctx context.Context, rec *records.TaskRecord) error {
	depRows, err := s.db.QueryContext(ctx, s.q.deps, rec.ID)
	if err != nil {
		return s.ioFailure(rec.Offset, fmt.Errorf("failed to query dependencies for task %s: %w", rec.ID, err))
	}
	for depRows.Next() {
		var depID string
		if err := depRows.Scan(&depID); err != nil {
			depRows.Close()
			return s.ioFailure(rec.Offset, fmt.Errorf("failed to scan dependency: %w", err))
		}
		rec.Dependencies = append(rec.Dependencies, depID)
	}
	depRows.Close()
	if err := depRows.Err(); err != nil {
		return s.ioFailure(rec.Offset, fmt.Errorf("error iterating dependencies: %w", err))
	}

	if s.q.resources == "" {
		return nil
	}

	resRows, err := s.db.QueryContext(ctx, s.q.resources, rec.ID)
	if err != nil {
		return s.ioFailure(rec.Offset, fmt.Errorf("failed to query resources for task %s: %w", rec.ID, err))
	}
	defer resRows.Close()

	for resRows.Next() {
		var kind, key string
		if err := resRows.Scan(&kind, &key); err != nil {
			return s.ioFailure(rec.Offset, fmt.Errorf("failed to scan resource: %w", err))
		}
		switch kind {
		case resourceInput:
			rec.Inputs = append(rec.Inputs, key)
		case resourceOutput:
			rec.Outputs = append(rec.Outputs, key)
		}
	}
	if err := resRows.Err(); err != nil {
		return s.ioFailure(rec.Offset, fmt.Errorf("error iterating resources: %w", err))
	}
	return nil
}

// splitList parses a version 1 comma-separated resource column.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
