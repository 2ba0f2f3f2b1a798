package records

import (
	"errors"
	"fmt"
)

var (
	ErrCorrupt            = errors.New("corrupt build record")
	ErrUnsupportedVersion = errors.New("unsupported record schema version")
	ErrIOFailure          = errors.New("build record i/o failure")
)

// LoadError reports a failure to read or interpret a build record store. Kind is
// one of ErrCorrupt, ErrUnsupportedVersion or ErrIOFailure.
// Offset is -1 when the failure is not tied to a single record.
type LoadError struct {
	Kind     error
	Source   string
	Offset   int64
	RecordID string
	Msg      string
	Err      error
}

func (e *LoadError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Kind.Error(), e.Source)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.RecordID != "" {
		msg += fmt.Sprintf(" (record %q)", e.RecordID)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newLoadError(kind error, source string, offset int64, recordID string, err error) *LoadError {
	return &LoadError{Kind: kind, Source: source, Offset: offset, RecordID: recordID, Err: err}
}

func corruptf(source string, offset int64, recordID, format string, args ...any) *LoadError {
	return &LoadError{Kind: ErrCorrupt, Source: source, Offset: offset, RecordID: recordID, Msg: fmt.Sprintf(format, args...)}
}

// Corruptf builds a Corrupt LoadError for store implementations outside this package.
func Corruptf(source string, offset int64, recordID, format string, args ...any) error {
	return corruptf(source, offset, recordID, format, args...)
}

// IOFailure wraps an underlying read error as a LoadError.
func IOFailure(source string, offset int64, err error) error {
	return newLoadError(ErrIOFailure, source, offset, "", err)
}

// UnsupportedVersion reports a schema version outside [min, max].
func UnsupportedVersion(source string, version, min, max int) error {
	return &LoadError{
		Kind:   ErrUnsupportedVersion,
		Source: source,
		Offset: -1,
		Msg:    fmt.Sprintf("version %d, supported %d..%d", version, min, max),
	}
}
