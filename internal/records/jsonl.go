package records

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLFormat is the header format tag of a JSON-lines record export.
const JSONLFormat = "buildscope.records"

// Supported JSON-lines header versions.
const (
	MinJSONLVersion = 1
	MaxJSONLVersion = 1
)

const maxJSONLLine = 16 << 20

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// JSONLHeader is the first line of an export.
type JSONLHeader struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
	BuildID string `json:"build_id,omitempty"`
}

// jsonlRecord is the wire shape of one record line. Unknown keys are ignored.
type jsonlRecord struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	StartNS      int64    `json:"start_ns"`
	EndNS        int64    `json:"end_ns"`
	Status       string   `json:"status"`
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
	Dependencies []string `json:"deps"`
}

// JSONLFile reads a JSON-lines record export from disk. Files starting with the
// zstd frame magic are decompressed transparently.
type JSONLFile struct {
	Path string
}

func (f JSONLFile) Describe() string { return f.Path }

// Records opens the file and streams its records. The header is validated
// before the first record is produced.
func (f JSONLFile) Records(ctx context.Context) iter.Seq2[TaskRecord, error] {
	return func(yield func(TaskRecord, error) bool) {
		file, err := os.Open(f.Path)
		if err != nil {
			yield(TaskRecord{}, IOFailure(f.Path, -1, err))
			return
		}
		defer file.Close()

		r, closeFn, err := decompress(file)
		if err != nil {
			yield(TaskRecord{}, IOFailure(f.Path, -1, err))
			return
		}
		defer closeFn()

		for rec, err := range ReadJSONL(ctx, f.Path, r) {
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// decompress sniffs the stream and wraps it in a zstd decoder when needed.
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	if !bytes.Equal(magic, zstdMagic) {
		return br, func() {}, nil
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	return dec, dec.Close, nil
}

// ReadJSONL parses an uncompressed JSON-lines stream. source names the stream in errors.
func ReadJSONL(ctx context.Context, source string, r io.Reader) iter.Seq2[TaskRecord, error] {
	return func(yield func(TaskRecord, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxJSONLLine)

		var line int64
		headerSeen := false
		for sc.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				yield(TaskRecord{}, err)
				return
			}
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}

			if !headerSeen {
				if err := checkHeader(source, line, raw); err != nil {
					yield(TaskRecord{}, err)
					return
				}
				headerSeen = true
				continue
			}

			rec, err := decodeJSONLRecord(source, line, raw)
			if !yield(rec, err) || err != nil {
				return
			}
		}

		if err := sc.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				yield(TaskRecord{}, corruptf(source, line+1, "", "line exceeds %d bytes", maxJSONLLine))
				return
			}
			yield(TaskRecord{}, IOFailure(source, line, err))
			return
		}
		if !headerSeen {
			yield(TaskRecord{}, corruptf(source, 0, "", "missing %s header", JSONLFormat))
		}
	}
}

func checkHeader(source string, line int64, raw []byte) error {
	var hdr JSONLHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return &LoadError{Kind: ErrCorrupt, Source: source, Offset: line, Msg: "malformed header", Err: err}
	}
	if hdr.Format != JSONLFormat {
		return corruptf(source, line, "", "unexpected format %q", hdr.Format)
	}
	if hdr.Version < MinJSONLVersion || hdr.Version > MaxJSONLVersion {
		return UnsupportedVersion(source, hdr.Version, MinJSONLVersion, MaxJSONLVersion)
	}
	return nil
}

func decodeJSONLRecord(source string, line int64, raw []byte) (TaskRecord, error) {
	var w jsonlRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return TaskRecord{}, &LoadError{Kind: ErrCorrupt, Source: source, Offset: line, Msg: "malformed record", Err: err}
	}
	status, ok := ParseStatus(w.Status)
	if !ok {
		return TaskRecord{}, corruptf(source, line, w.ID, "unknown status %q", w.Status)
	}
	return TaskRecord{
		ID:           w.ID,
		Name:         w.Name,
		Start:        time.Duration(w.StartNS),
		End:          time.Duration(w.EndNS),
		Status:       status,
		Inputs:       w.Inputs,
		Outputs:      w.Outputs,
		Dependencies: w.Dependencies,
		Offset:       line,
	}, nil
}

// WriteJSONL writes records in export format. It is used to produce fixtures
// and offline snapshots; it never touches a live build database.
func WriteJSONL(w io.Writer, buildID string, recs []TaskRecord) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(JSONLHeader{Format: JSONLFormat, Version: MaxJSONLVersion, BuildID: buildID}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, rec := range recs {
		wire := jsonlRecord{
			ID:           rec.ID,
			Name:         rec.Name,
			StartNS:      int64(rec.Start),
			EndNS:        int64(rec.End),
			Status:       rec.Status.String(),
			Inputs:       rec.Inputs,
			Outputs:      rec.Outputs,
			Dependencies: rec.Dependencies,
		}
		if err := enc.Encode(wire); err != nil {
			return fmt.Errorf("writing record %q: %w", rec.ID, err)
		}
	}
	return nil
}
