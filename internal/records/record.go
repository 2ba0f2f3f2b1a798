// Package records defines the task-run record read from a build database and
// the lazy loader that normalizes records coming out of any Source.
package records

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
)

// Status is the terminal state a build engine recorded for a task run.
type Status int

const (
	StatusUnknown   Status = iota // Never valid in a loaded record
	StatusSucceeded               // Task ran and finished successfully
	StatusFailed                  // Task ran and failed
	StatusSkipped                 // Task was up to date or intentionally not run
	StatusCancelled               // Task was interrupted before finishing
)

var statusNames = map[Status]string{
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
	StatusSkipped:   "skipped",
	StatusCancelled: "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus maps a stored status string to a Status. Matching is case-insensitive.
func ParseStatus(s string) (Status, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == s {
			return st, true
		}
	}
	return StatusUnknown, false
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	st, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown status %q", string(b))
	}
	*s = st
	return nil
}

// TaskRecord is one persisted task run. Start and End are monotonic offsets
// from an arbitrary per-build epoch.
type TaskRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Start        time.Duration `json:"start"`
	End          time.Duration `json:"end"`
	Status       Status        `json:"status"`
	Inputs       []string      `json:"inputs,omitempty"`
	Outputs      []string      `json:"outputs,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`

	// Offset locates the record in its source (row sequence or line number).
	Offset int64 `json:"-"`
}

// Duration is the wall-clock time the task spent running.
func (r TaskRecord) Duration() time.Duration {
	return r.End - r.Start
}

// Equal reports whether two records carry the same content. Offset is ignored.
func (r TaskRecord) Equal(o TaskRecord) bool {
	return r.ID == o.ID &&
		r.Name == o.Name &&
		r.Start == o.Start &&
		r.End == o.End &&
		r.Status == o.Status &&
		slices.Equal(r.Inputs, o.Inputs) &&
		slices.Equal(r.Outputs, o.Outputs) &&
		slices.Equal(r.Dependencies, o.Dependencies)
}

// Source is a read-only view of a build record store.
type Source interface {
	// Records enumerates the store. Each call starts a fresh enumeration.
	Records(ctx context.Context) iter.Seq2[TaskRecord, error]
	// Describe identifies the store in errors and logs (path, build id).
	Describe() string
}

// Load validates and normalizes every record produced by src. The returned
// sequence is lazy and stops after the first error it yields.
func Load(ctx context.Context, src Source) iter.Seq2[TaskRecord, error] {
	return func(yield func(TaskRecord, error) bool) {
		for rec, err := range src.Records(ctx) {
			if err != nil {
				yield(TaskRecord{}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(TaskRecord{}, fmt.Errorf("loading %s: %w", src.Describe(), err))
				return
			}
			rec, err = Normalize(src.Describe(), rec)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Normalize validates a raw record and canonicalizes its sets. source names the
// store in the returned error.
func Normalize(source string, rec TaskRecord) (TaskRecord, error) {
	if rec.ID == "" {
		return TaskRecord{}, corruptf(source, rec.Offset, "", "record has empty id")
	}
	if _, ok := statusNames[rec.Status]; !ok {
		return TaskRecord{}, corruptf(source, rec.Offset, rec.ID, "record has invalid status %d", int(rec.Status))
	}
	if rec.End < rec.Start {
		return TaskRecord{}, corruptf(source, rec.Offset, rec.ID, "end %v precedes start %v", rec.End, rec.Start)
	}
	rec.Inputs = normalizeSet(rec.Inputs)
	rec.Outputs = normalizeSet(rec.Outputs)
	rec.Dependencies = normalizeSet(rec.Dependencies)
	return rec, nil
}

// normalizeSet sorts, de-duplicates and drops empty keys. Empty sets become nil.
func normalizeSet(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Collect drains a record sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[TaskRecord, error]) ([]TaskRecord, error) {
	var out []TaskRecord
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
