package records

import (
	"context"
	"iter"
)

// Slice is an in-memory Source, used by embedding callers and tests.
type Slice struct {
	Name  string
	Items []TaskRecord
}

// Records yields the items in order. Offsets default to the slice index.
func (s Slice) Records(ctx context.Context) iter.Seq2[TaskRecord, error] {
	return func(yield func(TaskRecord, error) bool) {
		for i, rec := range s.Items {
			if err := ctx.Err(); err != nil {
				yield(TaskRecord{}, err)
				return
			}
			if rec.Offset == 0 {
				rec.Offset = int64(i)
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s Slice) Describe() string {
	if s.Name == "" {
		return "memory"
	}
	return s.Name
}
