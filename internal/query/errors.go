package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/buildscope/internal/graph"
	"github.com/aristath/buildscope/internal/records"
)

// Code is a stable identifier for a failure mode, safe to match on from
// scripts and other callers.
type Code string

const (
	LoadCorrupt            Code = "LOAD_CORRUPT"
	LoadUnsupportedVersion Code = "LOAD_UNSUPPORTED_VERSION"
	LoadIOFailure          Code = "LOAD_IO_FAILURE"
	GraphDuplicateID       Code = "GRAPH_DUPLICATE_ID"
	GraphCyclic            Code = "GRAPH_CYCLIC"
	QueryUnknownNode       Code = "QUERY_UNKNOWN_NODE"
	QueryCancelled         Code = "QUERY_CANCELLED"
	InternalError          Code = "INTERNAL_ERROR"
)

// Process exit codes for each class of failure.
const (
	ExitOK        = 0
	ExitInternal  = 1
	ExitLoad      = 2
	ExitBadTarget = 3
	ExitCyclic    = 4
	ExitCancelled = 130
)

// Error is the only error type the Engine returns.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) with(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ExitCode maps an error returned by the Engine to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var qerr *Error
	if !errors.As(err, &qerr) {
		qerr = classify(err)
	}
	switch qerr.Code {
	case LoadCorrupt, LoadUnsupportedVersion, LoadIOFailure, GraphDuplicateID:
		return ExitLoad
	case QueryUnknownNode:
		return ExitBadTarget
	case GraphCyclic:
		return ExitCyclic
	case QueryCancelled:
		return ExitCancelled
	default:
		return ExitInternal
	}
}

// classify maps internal error kinds to the external taxonomy. Location
// details (source, offset, node id) are copied into Details.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr
	}

	if errors.Is(err, graph.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: QueryCancelled, Message: "analysis cancelled", cause: err}
	}

	var lerr *records.LoadError
	if errors.As(err, &lerr) {
		out := &Error{Message: "cannot load build record", cause: err}
		switch {
		case errors.Is(err, records.ErrCorrupt):
			out.Code = LoadCorrupt
		case errors.Is(err, records.ErrUnsupportedVersion):
			out.Code = LoadUnsupportedVersion
		default:
			out.Code = LoadIOFailure
		}
		out.with("source", lerr.Source)
		if lerr.Offset >= 0 {
			out.with("offset", lerr.Offset)
		}
		if lerr.RecordID != "" {
			out.with("record_id", lerr.RecordID)
		}
		return out
	}

	var gerr *graph.GraphError
	if errors.As(err, &gerr) {
		out := &Error{cause: err}
		switch {
		case errors.Is(err, graph.ErrDuplicateID):
			out.Code, out.Message = GraphDuplicateID, "conflicting records share an id"
		case errors.Is(err, graph.ErrCyclicGraph):
			out.Code, out.Message = GraphCyclic, "dependency graph contains a cycle"
		case errors.Is(err, graph.ErrUnknownNode):
			out.Code, out.Message = QueryUnknownNode, "no such task"
		default:
			out.Code, out.Message = InternalError, "graph error"
		}
		if gerr.NodeID != "" {
			out.with("node_id", gerr.NodeID)
		}
		if gerr.Offset >= 0 {
			out.with("offset", gerr.Offset)
		}
		return out
	}

	return &Error{Code: InternalError, Message: "unexpected error", cause: err}
}
