package records

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func sampleRecords() []TaskRecord {
	return []TaskRecord{
		{ID: "1", Name: "compile", Start: 0, End: 10 * time.Second, Status: StatusSucceeded, Outputs: []string{"a.o"}},
		{ID: "2", Name: "link", Start: 10 * time.Second, End: 25 * time.Second, Status: StatusFailed,
			Inputs: []string{"a.o"}, Dependencies: []string{"1"}},
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"succeeded", StatusSucceeded, true},
		{"FAILED", StatusFailed, true},
		{" skipped ", StatusSkipped, true},
		{"cancelled", StatusCancelled, true},
		{"running", StatusUnknown, false},
		{"", StatusUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStatus(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadNormalizesSets(t *testing.T) {
	src := Slice{Items: []TaskRecord{{
		ID:           "1",
		Name:         "gen",
		Status:       StatusSucceeded,
		Inputs:       []string{"b", "a", "b", " "},
		Outputs:      []string{},
		Dependencies: []string{"9", "3", "9"},
	}}}

	recs, err := Collect(Load(context.Background(), src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if !slices.Equal(recs[0].Inputs, []string{"a", "b"}) {
		t.Errorf("inputs = %v, want [a b]", recs[0].Inputs)
	}
	if recs[0].Outputs != nil {
		t.Errorf("outputs = %v, want nil", recs[0].Outputs)
	}
	if !slices.Equal(recs[0].Dependencies, []string{"3", "9"}) {
		t.Errorf("dependencies = %v, want [3 9]", recs[0].Dependencies)
	}
}

func TestLoadRejectsCorruptRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  TaskRecord
	}{
		{"empty id", TaskRecord{Name: "x", Status: StatusSucceeded}},
		{"unknown status", TaskRecord{ID: "1", Name: "x"}},
		{"end before start", TaskRecord{ID: "1", Name: "x", Status: StatusSucceeded, Start: 5, End: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Slice{Name: "fixture", Items: []TaskRecord{sampleRecords()[0], tt.rec}}
			_, err := Collect(Load(context.Background(), src))
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
			if le.Offset != 1 {
				t.Errorf("offset = %d, want 1", le.Offset)
			}
			if le.Source != "fixture" {
				t.Errorf("source = %q, want fixture", le.Source)
			}
		})
	}
}

func TestLoadStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(Load(ctx, Slice{Items: sampleRecords()}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, "build-7", sampleRecords()); err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}

	got, err := Collect(ReadJSONL(context.Background(), "buf", &buf))
	if err != nil {
		t.Fatalf("ReadJSONL failed: %v", err)
	}
	want := sampleRecords()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	// Header is line 1, records follow.
	if got[0].Offset != 2 || got[1].Offset != 3 {
		t.Errorf("offsets = %d, %d; want 2, 3", got[0].Offset, got[1].Offset)
	}
}

func TestJSONLIgnoresUnknownFields(t *testing.T) {
	in := `{"format":"buildscope.records","version":1,"engine":"future"}
{"id":"1","name":"a","start_ns":0,"end_ns":5,"status":"skipped","cache_key":"abc","attempts":3}
`
	got, err := Collect(ReadJSONL(context.Background(), "in", strings.NewReader(in)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Status != StatusSkipped {
		t.Fatalf("got %+v", got)
	}
}

func TestJSONLErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"missing header", "", ErrCorrupt},
		{"wrong format", `{"format":"other","version":1}`, ErrCorrupt},
		{"newer version", `{"format":"buildscope.records","version":9}`, ErrUnsupportedVersion},
		{"zero version", `{"format":"buildscope.records"}`, ErrUnsupportedVersion},
		{"malformed record", "{\"format\":\"buildscope.records\",\"version\":1}\n{not json", ErrCorrupt},
		{"unknown status", "{\"format\":\"buildscope.records\",\"version\":1}\n{\"id\":\"1\",\"status\":\"running\"}", ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(ReadJSONL(context.Background(), "in", strings.NewReader(tt.in)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestJSONLFileZstd(t *testing.T) {
	var plain bytes.Buffer
	if err := WriteJSONL(&plain, "", sampleRecords()); err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("creating zstd writer: %v", err)
	}
	if _, err := enc.Write(plain.Bytes()); err != nil {
		t.Fatalf("compressing: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing zstd writer: %v", err)
	}

	dir := t.TempDir()
	for name, data := range map[string][]byte{
		"plain.jsonl":       plain.Bytes(),
		"records.jsonl.zst": compressed.Bytes(),
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		got, err := Collect(Load(context.Background(), JSONLFile{Path: path}))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if len(got) != 2 || got[1].Name != "link" {
			t.Errorf("%s: got %+v", name, got)
		}
	}
}

func TestJSONLFileMissing(t *testing.T) {
	_, err := Collect(Load(context.Background(), JSONLFile{Path: filepath.Join(t.TempDir(), "nope.jsonl")}))
	if !errors.Is(err, ErrIOFailure) {
		t.Fatalf("expected ErrIOFailure, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}
