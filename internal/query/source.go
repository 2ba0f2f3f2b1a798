package query

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/aristath/buildscope/internal/persistence"
	"github.com/aristath/buildscope/internal/records"
)

var sqliteMagic = []byte("SQLite format 3\x00")

// OpenPath picks a reader for the build record at path by sniffing its first
// bytes: SQLite databases go to the persistence store, everything else is
// read as a (possibly zstd-compressed) JSON-lines export. The returned close
// function must be called once the source is no longer needed.
func OpenPath(ctx context.Context, path string) (records.Source, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, classify(records.IOFailure(path, -1, err))
	}
	head := make([]byte, len(sqliteMagic))
	n, err := io.ReadFull(f, head)
	f.Close()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, classify(records.IOFailure(path, -1, err))
	}

	if bytes.Equal(head[:n], sqliteMagic) {
		store, err := persistence.Open(ctx, path)
		if err != nil {
			return nil, nil, classify(err)
		}
		return store, store.Close, nil
	}
	return records.JSONLFile{Path: path}, func() error { return nil }, nil
}
